package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tango-controls/tango-go/pkg/connection"
	"github.com/tango-controls/tango-go/pkg/devserver"
	"github.com/tango-controls/tango-go/pkg/event"
	"github.com/tango-controls/tango-go/pkg/transport"
)

const (
	testDev   = "sys/tg_test/1"
	eventWait = 2 * time.Second
)

// testEnv is a session connected to a device server over a loopback.
type testEnv struct {
	srv   *devserver.Server
	dev   *devserver.TestDevice
	lb    *transport.Loopback
	s     *Session
	proxy *DeviceProxy
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = time.Second
	cfg.KeepAlivePeriod = -1
	cfg.Link = connection.LinkConfig{
		Backoff:        connection.BackoffConfig{Initial: 20 * time.Millisecond, Max: 80 * time.Millisecond, Jitter: -1},
		AttemptTimeout: time.Second,
	}
	return cfg
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	srv := devserver.NewServer(devserver.DefaultConfig())
	td, err := srv.AddTestDevice(testDev)
	require.NoError(t, err)

	lb := transport.NewLoopback(srv, transport.LoopbackConfig{Codec: true})
	srv.SetPublisher(lb)

	s := NewSession(lb.Conn(), cfg)
	p, err := s.NewDeviceProxy(testDev)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, dev: td, lb: lb, s: s, proxy: p}
}

// eventSink records the events handed to its callback.
type eventSink struct {
	mu     sync.Mutex
	events []*event.Event
}

func (k *eventSink) callback(ctx context.Context, ev *event.Event) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, ev)
}

func (k *eventSink) all() []*event.Event {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]*event.Event(nil), k.events...)
}

func (k *eventSink) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.events)
}

// hasValue reports whether a value event carrying v was received.
func (k *eventSink) hasValue(v any) bool {
	for _, ev := range k.all() {
		if av, ok := ev.Value(); ok && av.Value == v {
			return true
		}
	}
	return false
}

// hasError reports whether an error event with the given first reason was
// received.
func (k *eventSink) hasError(reason string) bool {
	for _, ev := range k.all() {
		if f, ok := ev.Payload.(*event.Failed); ok && len(f.Errors) > 0 && f.Errors[0].Reason == reason {
			return true
		}
	}
	return false
}
