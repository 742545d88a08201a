package client

import (
	"sync"

	"github.com/tango-controls/tango-go/pkg/transport"
)

// Dialer opens the transport of the default session.
type Dialer func() (transport.Transport, error)

var (
	defaultMu      sync.Mutex
	defaultDialer  Dialer
	defaultConfig  = DefaultConfig()
	defaultSession *Session
)

// SetDefaultDialer sets how Default connects. It has no effect on a default
// session that already exists.
func SetDefaultDialer(d Dialer, cfg Config) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultDialer = d
	defaultConfig = cfg
}

// Default returns the process-wide session, creating it on first use.
func Default() (*Session, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultSession != nil {
		return defaultSession, nil
	}
	if defaultDialer == nil {
		return nil, ErrNoDialer
	}
	tr, err := defaultDialer()
	if err != nil {
		return nil, err
	}
	defaultSession = NewSession(tr, defaultConfig)
	return defaultSession, nil
}

// Cleanup closes the process-wide session. A later Default creates a new
// one.
func Cleanup() error {
	defaultMu.Lock()
	s := defaultSession
	defaultSession = nil
	defaultMu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close()
}
