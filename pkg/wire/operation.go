package wire

// Operation represents a request operation.
type Operation uint8

const (
	// OpCommand executes a device command (command_inout).
	OpCommand Operation = 1

	// OpReadAttribute reads a single attribute.
	OpReadAttribute Operation = 2

	// OpWriteAttribute writes a single attribute.
	OpWriteAttribute Operation = 3

	// OpReadAttributes reads several attributes in one call.
	OpReadAttributes Operation = 4

	// OpWriteAttributes writes several attributes in one call.
	OpWriteAttributes Operation = 5

	// OpSubscribe registers interest in events for (device, name, kind).
	OpSubscribe Operation = 6

	// OpUnsubscribe removes one registration made with OpSubscribe.
	OpUnsubscribe Operation = 7

	// OpPing checks that the device is reachable.
	OpPing Operation = 8
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpCommand:
		return "Command"
	case OpReadAttribute:
		return "ReadAttribute"
	case OpWriteAttribute:
		return "WriteAttribute"
	case OpReadAttributes:
		return "ReadAttributes"
	case OpWriteAttributes:
		return "WriteAttributes"
	case OpSubscribe:
		return "Subscribe"
	case OpUnsubscribe:
		return "Unsubscribe"
	case OpPing:
		return "Ping"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is known.
func (o Operation) IsValid() bool {
	return o >= OpCommand && o <= OpPing
}

// IsAsync returns true if the operation can be issued asynchronously.
func (o Operation) IsAsync() bool {
	return o >= OpCommand && o <= OpWriteAttributes
}
