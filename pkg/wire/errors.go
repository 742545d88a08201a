package wire

import (
	"errors"
	"strings"
)

// ErrSeverity is the severity of a DevError.
type ErrSeverity uint8

const (
	SeverityWarn  ErrSeverity = 0
	SeverityErr   ErrSeverity = 1
	SeverityPanic ErrSeverity = 2
)

// Common error reasons.
const (
	ReasonAttrNotFound       = "API_AttrNotFound"
	ReasonCommandNotFound    = "API_CommandNotFound"
	ReasonDeviceNotFound     = "API_DeviceNotExported"
	ReasonCantConnect        = "API_CantConnectToDevice"
	ReasonNotWritable        = "API_AttrNotWritable"
	ReasonPollingNotStarted  = "API_AttributePollingNotStarted"
	ReasonPollObjNotFound    = "API_PollObjNotFound"
	ReasonPollingStopped     = "API_PollThreadOutOfSync"
	ReasonEventTimeout       = "API_EventTimeout"
	ReasonIncompatibleArg    = "API_IncompatibleCmdArgumentType"
	ReasonDeviceTimedOut     = "API_DeviceTimedOut"
	ReasonAttrValueNotSet    = "API_AttrValueNotSet"
	ReasonEventNotSubscribed = "API_EventNotFound"
)

// DevError is one entry of a device failure stack.
type DevError struct {
	Reason   string      `cbor:"1,keyasint"`
	Desc     string      `cbor:"2,keyasint"`
	Origin   string      `cbor:"3,keyasint,omitempty"`
	Severity ErrSeverity `cbor:"4,keyasint,omitempty"`
}

// DevFailed is a failure raised by device code or the device server.
// It travels inside replies and events as data.
type DevFailed struct {
	Status Status
	Errors []DevError
}

// NewDevFailed creates a DevFailed with a single entry.
func NewDevFailed(reason, desc, origin string) *DevFailed {
	return &DevFailed{
		Status: StatusDevFailed,
		Errors: []DevError{{Reason: reason, Desc: desc, Origin: origin, Severity: SeverityErr}},
	}
}

func (e *DevFailed) Error() string {
	if len(e.Errors) == 0 {
		return "device failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, de := range e.Errors {
		s := de.Reason + ": " + de.Desc
		if de.Origin != "" {
			s += " (" + de.Origin + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}

// Reason returns the reason of the outermost error.
func (e *DevFailed) Reason() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Reason
}

// Wrap pushes a new outermost entry onto the stack.
func (e *DevFailed) Wrap(reason, desc, origin string) *DevFailed {
	errs := make([]DevError, 0, len(e.Errors)+1)
	errs = append(errs, DevError{Reason: reason, Desc: desc, Origin: origin, Severity: SeverityErr})
	errs = append(errs, e.Errors...)
	return &DevFailed{Status: e.Status, Errors: errs}
}

// AsDevFailed unwraps err into a *DevFailed.
func AsDevFailed(err error) (*DevFailed, bool) {
	var df *DevFailed
	if errors.As(err, &df) {
		return df, true
	}
	return nil, false
}

// ToDevErrors converts any error to a DevError stack.
func ToDevErrors(err error, origin string) []DevError {
	if err == nil {
		return nil
	}
	if df, ok := AsDevFailed(err); ok {
		return df.Errors
	}
	return []DevError{{Reason: "API_DeviceError", Desc: err.Error(), Origin: origin, Severity: SeverityErr}}
}
