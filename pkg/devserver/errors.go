package devserver

import (
	"context"
	"errors"

	"github.com/tango-controls/tango-go/pkg/model"
	"github.com/tango-controls/tango-go/pkg/polling"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// Server errors.
var (
	ErrDeviceExists   = errors.New("device already hosted")
	ErrDeviceNotFound = errors.New("device not hosted")
	ErrOffline        = errors.New("server offline")
)

// failure converts an error from device code into a DevFailed stack with a
// status matching the cause. DevFailed values raised by device code are
// passed through.
func failure(err error, origin string) *wire.DevFailed {
	if df, ok := wire.AsDevFailed(err); ok {
		if df.Status == wire.StatusSuccess {
			return &wire.DevFailed{Status: wire.StatusDevFailed, Errors: df.Errors}
		}
		return df
	}

	status, reason := wire.StatusDevFailed, "API_DeviceError"
	switch {
	case errors.Is(err, model.ErrAttributeNotFound), errors.Is(err, model.ErrPipeNotFound):
		status, reason = wire.StatusAttributeNotFound, wire.ReasonAttrNotFound
	case errors.Is(err, model.ErrCommandNotFound):
		status, reason = wire.StatusCommandNotFound, wire.ReasonCommandNotFound
	case errors.Is(err, ErrDeviceNotFound):
		status, reason = wire.StatusDeviceNotFound, wire.ReasonDeviceNotFound
	case errors.Is(err, model.ErrAttributeNotWritable):
		status, reason = wire.StatusNotWritable, wire.ReasonNotWritable
	case errors.Is(err, model.ErrAttributeValueNotSet):
		reason = wire.ReasonAttrValueNotSet
	case errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, model.ErrAttributeValueType),
		errors.Is(err, model.ErrAttributeOutOfRange),
		errors.Is(err, wire.ErrSerializationMismatch),
		errors.Is(err, polling.ErrInvalidPeriod):
		status, reason = wire.StatusInvalidArgument, wire.ReasonIncompatibleArg
	case errors.Is(err, polling.ErrNotPolled):
		status, reason = wire.StatusInvalidArgument, wire.ReasonPollObjNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status, reason = wire.StatusTimeout, wire.ReasonDeviceTimedOut
	}
	return &wire.DevFailed{
		Status: status,
		Errors: []wire.DevError{{Reason: reason, Desc: err.Error(), Origin: origin, Severity: wire.SeverityErr}},
	}
}

func errorReply(requestID uint32, err error, origin string) *wire.Reply {
	df := failure(err, origin)
	return &wire.Reply{RequestID: requestID, Status: df.Status, Errors: df.Errors}
}
