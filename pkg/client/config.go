package client

import (
	"log/slog"
	"time"

	"github.com/tango-controls/tango-go/pkg/connection"
	"github.com/tango-controls/tango-go/pkg/log"
)

// Default timing.
const (
	DefaultTimeout         = 3 * time.Second
	DefaultKeepAlivePeriod = 10 * time.Second
)

// Config configures a Session.
type Config struct {
	// Timeout bounds synchronous calls. Proxies start with this value.
	Timeout time.Duration

	// KeepAlivePeriod is how often devices with event subscriptions are
	// checked. Negative disables the check.
	KeepAlivePeriod time.Duration

	// Link configures the reconnection of lost subscriptions.
	Link connection.LinkConfig

	// Logger receives operational logs. Nil disables them.
	Logger *slog.Logger

	// ProtocolLogger captures requests, replies and events.
	ProtocolLogger log.Logger

	// SessionID identifies the session to servers and in protocol logs.
	// A random UUID is used when empty.
	SessionID string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		KeepAlivePeriod: DefaultKeepAlivePeriod,
		Link: connection.LinkConfig{
			AttemptTimeout: connection.DefaultAttemptTimeout,
		},
	}
}
