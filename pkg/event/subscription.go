package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tango-controls/tango-go/pkg/filter"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// Subscription errors.
var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidKind          = errors.New("invalid event kind")
	ErrInvalidCapacity      = errors.New("invalid queue capacity")
)

// Queue capacities.
const (
	Unbounded = -1
	LastOnly  = 1
)

// Callback receives pushed events. The context identifies the delivery:
// unsubscribing the same subscription with it fails with
// ErrSubscriptionNotFound.
type Callback func(ctx context.Context, ev *Event)

// Key identifies the event source of a subscription. Names are normalized.
type Key struct {
	Device string
	Name   string
	Kind   wire.EventKind
}

// NewKey returns the normalized key of (device, name, kind).
func NewKey(device, name string, kind wire.EventKind) Key {
	return Key{Device: wire.NormalizeName(device), Name: wire.NormalizeName(name), Kind: kind}
}

// Topic returns the event topic of the key.
func (k Key) Topic() string {
	return wire.Topic(k.Device, k.Name, k.Kind)
}

// Options configures a new subscription.
type Options struct {
	// Callback is invoked for every accepted event. Optional.
	Callback Callback

	// Filter is an expression over the event metadata. Optional.
	Filter string

	// Capacity is the queue capacity: Unbounded, LastOnly or N > 0.
	// Zero means LastOnly.
	Capacity int

	// Stateless subscriptions survive an unreachable device.
	Stateless bool

	// Owner groups subscriptions for UnsubscribeOwner.
	Owner string
}

// Stats holds subscription counters.
type Stats struct {
	// Received counts events that reached the subscription.
	Received uint64
	// Executed counts callback invocations.
	Executed uint64
	// Filtered counts events rejected by the filter.
	Filtered uint64
	// Evicted counts events dropped from a full queue.
	Evicted uint64
}

// queue is a FIFO ring of events; capacity < 0 is unbounded.
type queue struct {
	capacity int
	items    []*Event
	head     int
	size     int
}

func newQueue(capacity int) *queue {
	q := &queue{capacity: capacity}
	if capacity > 0 {
		q.items = make([]*Event, capacity)
	}
	return q
}

// push appends ev and reports whether the oldest event was evicted.
func (q *queue) push(ev *Event) bool {
	if q.capacity < 0 {
		q.items = append(q.items, ev)
		q.size++
		return false
	}
	tail := (q.head + q.size) % q.capacity
	q.items[tail] = ev
	if q.size < q.capacity {
		q.size++
		return false
	}
	q.head = (q.head + 1) % q.capacity
	return true
}

// drain removes and returns all events in arrival order.
func (q *queue) drain() []*Event {
	out := make([]*Event, 0, q.size)
	if q.capacity < 0 {
		out = append(out, q.items...)
		q.items = nil
		q.size = 0
		return out
	}
	for i := 0; i < q.size; i++ {
		idx := (q.head + i) % q.capacity
		out = append(out, q.items[idx])
		q.items[idx] = nil
	}
	q.head = 0
	q.size = 0
	return out
}

func (q *queue) len() int {
	return q.size
}

// Subscription is one registration for (device, name, kind).
type Subscription struct {
	// ID is unique per dispatcher.
	ID uint32

	Key       Key
	Owner     string
	Stateless bool

	callback Callback
	filter   *filter.Filter

	// deliverMu serializes deliveries so queue and callback order match.
	deliverMu sync.Mutex

	mu        sync.Mutex
	queue     *queue
	active    bool
	priming   bool
	held      []*Event
	stats     Stats
	lastEvent time.Time
}

func newSubscription(id uint32, key Key, opts Options, f *filter.Filter) *Subscription {
	capacity := opts.Capacity
	if capacity == 0 {
		capacity = LastOnly
	}
	return &Subscription{
		ID:        id,
		Key:       key,
		Owner:     opts.Owner,
		Stateless: opts.Stateless,
		callback:  opts.Callback,
		filter:    f,
		queue:     newQueue(capacity),
		active:    true,
		priming:   key.Kind.HasCurrentValue(),
	}
}

// IsActive returns whether the subscription still receives events.
func (s *Subscription) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsPriming returns whether the subscription waits for its first event.
func (s *Subscription) IsPriming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priming
}

// HasCallback returns whether events are pushed to a callback.
func (s *Subscription) HasCallback() bool {
	return s.callback != nil
}

// Filter returns the filter expression, or "".
func (s *Subscription) Filter() string {
	if s.filter == nil {
		return ""
	}
	return s.filter.String()
}

// Capacity returns the queue capacity.
func (s *Subscription) Capacity() int {
	return s.queue.capacity
}

// Stats returns a snapshot of the counters.
func (s *Subscription) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Subscription) deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.held = nil
}

// hold stores ev while the subscription is priming. It returns false when
// the subscription is primed and ev must be delivered now.
func (s *Subscription) hold(ev *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.priming {
		return false
	}
	s.held = append(s.held, ev)
	return true
}

// primed ends priming and returns the events held back meanwhile.
func (s *Subscription) primed() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priming = false
	held := s.held
	s.held = nil
	return held
}

// deliver runs the filter, the callback and the queue for one event.
// The caller holds deliverMu.
func (s *Subscription) deliver(ctx context.Context, ev *Event, force bool) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	s.stats.Received++
	s.mu.Unlock()

	if !force && s.filter != nil && ev.Err() == nil {
		ok, err := s.filter.Match(ctx, ev.Meta)
		if err != nil || !ok {
			s.mu.Lock()
			s.stats.Filtered++
			s.mu.Unlock()
			return false
		}
	}

	ev = ev.Clone()
	ev.SubscriptionID = s.ID

	if s.callback != nil {
		s.callback(withDelivery(ctx, s.ID), ev.Clone())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callback != nil {
		s.stats.Executed++
	}
	if s.queue.push(ev) {
		s.stats.Evicted++
	}
	s.lastEvent = ev.Received
	return true
}

func (s *Subscription) drain() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.drain()
}

func (s *Subscription) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

func (s *Subscription) lastEventDate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEvent
}

type deliveryKey struct {
	id uint32
}

func withDelivery(ctx context.Context, id uint32) context.Context {
	return context.WithValue(ctx, deliveryKey{id: id}, true)
}

// inDelivery reports whether ctx belongs to a callback of subscription id.
func inDelivery(ctx context.Context, id uint32) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(deliveryKey{id: id}).(bool)
	return v
}
