package request

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Collector invokes the callbacks of arrived callback-mode requests.
// It is scoped to one device, or to the whole registry.
type Collector struct {
	reg    *Registry
	device string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCollector creates a collector for device. An empty device selects
// every request of the registry.
func NewCollector(reg *Registry, device string) *Collector {
	return &Collector{reg: reg, device: wire.NormalizeName(device)}
}

// GetAsynchReplies fires the callbacks of arrived requests in scope.
//
// A negative timeout only fires what has already arrived. A zero timeout
// waits until every callback request in scope has arrived. A positive
// timeout waits at most that long and returns ErrNotYetArrived if requests
// are still outstanding.
func (c *Collector) GetAsynchReplies(ctx context.Context, timeout time.Duration) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		signal := c.reg.arrivalSignal()
		pending := c.fire()
		if timeout < 0 || pending == 0 {
			return nil
		}

		select {
		case <-signal:
		case <-deadline:
			if pending = c.fire(); pending > 0 {
				return fmt.Errorf("%w: %d outstanding", ErrNotYetArrived, pending)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Start fires callbacks in the background as replies arrive, until Stop
// or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go c.run(ctx, c.done)
}

// Stop stops the background loop and waits for it to exit.
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the background loop is active.
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Collector) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		signal := c.reg.arrivalSignal()
		c.fire()

		select {
		case <-signal:
		case <-ctx.Done():
			return
		}
	}
}

// fire invokes the callbacks of the arrived requests it manages to take and
// returns the number of callback requests still pending.
func (c *Collector) fire() int {
	arrived, pending := c.reg.callbackRequests(c.device)
	for _, req := range arrived {
		if _, ok := c.reg.take(req.ID); !ok {
			// collected concurrently
			continue
		}
		if fn := req.Callbacks.forKind(req.Kind); fn != nil {
			fn(req.result())
		} else if c.reg.logger != nil {
			c.reg.logger.Debug("no callback for request kind", "request_id", req.ID, "kind", req.Kind.String())
		}
	}
	return pending
}
