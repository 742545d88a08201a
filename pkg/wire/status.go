package wire

// Status represents a reply status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusDeviceNotFound indicates the device is not exported by the server.
	StatusDeviceNotFound Status = 1

	// StatusAttributeNotFound indicates the attribute doesn't exist.
	StatusAttributeNotFound Status = 2

	// StatusCommandNotFound indicates the command doesn't exist.
	StatusCommandNotFound Status = 3

	// StatusInvalidArgument indicates a bad argument or value.
	StatusInvalidArgument Status = 4

	// StatusNotWritable indicates a write to a read-only attribute.
	StatusNotWritable Status = 5

	// StatusDevFailed indicates the device code raised an error.
	// Reply.Errors carries the stack.
	StatusDevFailed Status = 6

	// StatusPollingNotStarted indicates an event subscription needs polling.
	StatusPollingNotStarted Status = 7

	// StatusDeviceUnreachable indicates the device could not be contacted.
	StatusDeviceUnreachable Status = 8

	// StatusTimeout indicates the server-side operation timed out.
	StatusTimeout Status = 9

	// StatusUnsupported indicates the operation is not supported.
	StatusUnsupported Status = 10

	// StatusNotSubscribed indicates an unsubscribe for an unknown registration.
	StatusNotSubscribed Status = 11
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusDeviceNotFound:
		return "DEVICE_NOT_FOUND"
	case StatusAttributeNotFound:
		return "ATTRIBUTE_NOT_FOUND"
	case StatusCommandNotFound:
		return "COMMAND_NOT_FOUND"
	case StatusInvalidArgument:
		return "INVALID_ARGUMENT"
	case StatusNotWritable:
		return "NOT_WRITABLE"
	case StatusDevFailed:
		return "DEV_FAILED"
	case StatusPollingNotStarted:
		return "POLLING_NOT_STARTED"
	case StatusDeviceUnreachable:
		return "DEVICE_UNREACHABLE"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusUnsupported:
		return "UNSUPPORTED"
	case StatusNotSubscribed:
		return "NOT_SUBSCRIBED"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
