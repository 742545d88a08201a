package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Link errors.
var ErrLinkClosed = errors.New("link closed")

// DefaultAttemptTimeout bounds one probe.
const DefaultAttemptTimeout = 3 * time.Second

// State is the reachability of a device.
type State uint8

const (
	// StateUnknown means the device was never probed.
	StateUnknown State = iota

	// StateReachable means the last probe succeeded.
	StateReachable

	// StateRetrying means probes fail and are retried with backoff.
	StateRetrying

	// StateClosed means the link has been closed.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateReachable:
		return "REACHABLE"
	case StateRetrying:
		return "RETRYING"
	case StateClosed:
		return "CLOSED"
	default:
		return "INVALID"
	}
}

// ProbeFunc checks a device and restores what depends on it, such as
// event subscriptions. It returns nil once the device is usable.
type ProbeFunc func(ctx context.Context) error

// LinkConfig configures a Link.
type LinkConfig struct {
	Backoff        BackoffConfig
	AttemptTimeout time.Duration
}

// Link tracks the reachability of one device and re-runs the probe with
// backoff while the device is unreachable.
type Link struct {
	mu sync.RWMutex

	device  string
	state   State
	probe   ProbeFunc
	backoff *Backoff
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}

	onStateChange func(device string, old, new State)
	onRetry       func(device string, attempt int, delay time.Duration, err error)
}

// NewLink creates a link for device. Call Start to enable retries.
func NewLink(device string, probe ProbeFunc, cfg LinkConfig) *Link {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.Backoff.Jitter == 0 {
		cfg.Backoff.Jitter = JitterFactor
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Link{
		device:  device,
		probe:   probe,
		backoff: NewBackoffWithConfig(cfg.Backoff),
		timeout: cfg.AttemptTimeout,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
	}
}

// Device returns the device name.
func (l *Link) Device() string {
	return l.device
}

// State returns the current state.
func (l *Link) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Start starts the retry loop.
func (l *Link) Start() {
	l.wg.Add(1)
	go l.retryLoop()
}

// Check probes the device once. On failure the link starts retrying and
// the error is returned.
func (l *Link) Check(ctx context.Context) error {
	if l.State() == StateClosed {
		return ErrLinkClosed
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	err := l.probe(ctx)
	cancel()

	if err != nil {
		l.setState(StateRetrying)
		l.trigger()
		return err
	}
	l.backoff.Reset()
	l.setState(StateReachable)
	return nil
}

// MarkLost reports that the device stopped answering.
func (l *Link) MarkLost() {
	if l.State() == StateClosed {
		return
	}
	l.setState(StateRetrying)
	l.trigger()
}

// Close stops the retry loop.
func (l *Link) Close() {
	l.setState(StateClosed)
	l.cancel()
	l.wg.Wait()
}

// OnStateChange sets a callback for state changes.
func (l *Link) OnStateChange(fn func(device string, old, new State)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStateChange = fn
}

// OnRetry sets a callback for failed attempts.
func (l *Link) OnRetry(fn func(device string, attempt int, delay time.Duration, err error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRetry = fn
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	old := l.state
	if old == s || old == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = s
	fn := l.onStateChange
	l.mu.Unlock()

	if fn != nil {
		fn(l.device, old, s)
	}
}

func (l *Link) trigger() {
	select {
	case l.wake <- struct{}{}:
	default:
		// already pending
	}
}

func (l *Link) retryLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.wake:
			l.retry()
		}
	}
}

func (l *Link) retry() {
	for l.State() == StateRetrying {
		delay := l.backoff.Next()

		timer := time.NewTimer(delay)
		select {
		case <-l.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if l.State() != StateRetrying {
			return
		}

		ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
		err := l.probe(ctx)
		cancel()

		if err == nil {
			l.backoff.Reset()
			l.setState(StateReachable)
			return
		}

		l.mu.RLock()
		fn := l.onRetry
		l.mu.RUnlock()
		if fn != nil {
			fn(l.device, l.backoff.Attempts(), delay, err)
		}
	}
}
