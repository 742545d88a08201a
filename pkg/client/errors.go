package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Client errors.
var (
	ErrSessionClosed = errors.New("session is closed")
	ErrProxyClosed   = errors.New("device proxy is closed")

	// ErrBadAsynchID is returned when a reply is requested with an id that
	// belongs to another device, another kind of call or a callback-mode
	// request.
	ErrBadAsynchID = errors.New("asynchronous request id does not match the call")

	ErrNoDialer = errors.New("no default dialer set")
)

// transportFailure turns a transport error into the failure a device call
// reports. Cancellation by the caller is returned unchanged.
func transportFailure(device string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &wire.DevFailed{
			Status: wire.StatusTimeout,
			Errors: []wire.DevError{{
				Reason:   wire.ReasonDeviceTimedOut,
				Desc:     fmt.Sprintf("timeout waiting for a reply from %s", device),
				Origin:   device,
				Severity: wire.SeverityErr,
			}},
		}
	default:
		return &wire.DevFailed{
			Status: wire.StatusDeviceUnreachable,
			Errors: []wire.DevError{{
				Reason:   wire.ReasonCantConnect,
				Desc:     fmt.Sprintf("failed to connect to %s: %v", device, err),
				Origin:   device,
				Severity: wire.SeverityErr,
			}},
		}
	}
}

