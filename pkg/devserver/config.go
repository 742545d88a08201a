package devserver

import (
	"log/slog"
	"time"

	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/property"
)

// Config configures a Server.
type Config struct {
	// Instance is the server instance name. The admin device is
	// "dserver/<Instance>".
	Instance string

	// KeepAlivePeriod is how often error events are re-raised for
	// subscribed attributes whose polling stopped.
	KeepAlivePeriod time.Duration

	// Store persists polling periods and event properties.
	// If nil, an in-memory store is used.
	Store property.Store

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures handled requests and published events.
	ProtocolLogger log.Logger

	// SessionID tags protocol log events.
	SessionID string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Instance:        "test",
		KeepAlivePeriod: 10 * time.Second,
	}
}
