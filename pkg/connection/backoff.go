package connection

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Retry timing for unreachable devices.
const (
	// InitialBackoff is the delay before the first retry.
	InitialBackoff = 500 * time.Millisecond

	// MaxBackoff caps the retry delay. It matches the event keep-alive period.
	MaxBackoff = 10 * time.Second

	// BackoffMultiplier is the growth factor between retries.
	BackoffMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of the delay.
	JitterFactor = 0.1
)

// BackoffConfig customizes a Backoff. Zero fields take the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Backoff computes exponential retry delays with jitter.
type Backoff struct {
	mu sync.Mutex

	cfg      BackoffConfig
	current  time.Duration
	attempts int
}

// NewBackoff creates a backoff with the default timing.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{Jitter: JitterFactor})
}

// NewBackoffWithConfig creates a backoff with custom timing.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = max(MaxBackoff, cfg.Initial)
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &Backoff{cfg: cfg, current: cfg.Initial}
}

// Next returns the next delay and advances the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	if b.cfg.Jitter > 0 {
		delay += time.Duration(float64(delay) * b.cfg.Jitter * rand.Float64())
	}

	b.attempts++
	b.current = min(time.Duration(float64(b.current)*b.cfg.Multiplier), b.cfg.Max)
	return delay
}

// Reset restarts the sequence. Call it after a successful attempt.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.cfg.Initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the next base delay, without jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
