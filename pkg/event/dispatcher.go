package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tango-controls/tango-go/pkg/filter"
	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// Config configures a Dispatcher.
type Config struct {
	// Logger receives operational logs. Nil disables them.
	Logger *slog.Logger

	// ProtocolLogger captures dispatched events. Nil disables capture.
	ProtocolLogger log.Logger

	// SessionID tags protocol log events.
	SessionID string
}

// Dispatcher routes incoming events to subscriptions.
type Dispatcher struct {
	mu sync.RWMutex

	subscriptions map[uint32]*Subscription
	index         map[Key][]*Subscription
	nextID        uint32

	logger    *slog.Logger
	protoLog  log.Logger
	sessionID string
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		subscriptions: make(map[uint32]*Subscription),
		index:         make(map[Key][]*Subscription),
		logger:        logger,
		protoLog:      log.OrNoop(cfg.ProtocolLogger),
		sessionID:     cfg.SessionID,
	}
}

// Subscribe registers a subscription for key.
func (d *Dispatcher) Subscribe(key Key, opts Options) (*Subscription, error) {
	if !key.Kind.IsValid() {
		return nil, ErrInvalidKind
	}
	if opts.Capacity < Unbounded {
		return nil, ErrInvalidCapacity
	}
	var f *filter.Filter
	if opts.Filter != "" {
		var err error
		if f, err = filter.Compile(opts.Filter); err != nil {
			return nil, err
		}
	}
	key = NewKey(key.Device, key.Name, key.Kind)

	d.mu.Lock()
	d.nextID++
	sub := newSubscription(d.nextID, key, opts, f)
	d.subscriptions[sub.ID] = sub
	d.index[key] = append(d.index[key], sub)
	d.mu.Unlock()

	d.logSubscription(sub, log.SubscriptionAdded)
	return sub, nil
}

// Deliver delivers the first event of a subscription, bypassing the filter,
// then releases the events held back while priming.
func (d *Dispatcher) Deliver(ctx context.Context, sub *Subscription, msg *wire.EventMessage) bool {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()

	delivered := sub.deliver(ctx, FromMessage(msg), true)
	for _, ev := range sub.primed() {
		sub.deliver(ctx, ev, false)
	}
	d.logEvent(msg, delivered)
	return delivered
}

// Release ends priming without a first event.
func (d *Dispatcher) Release(ctx context.Context, sub *Subscription) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()

	for _, ev := range sub.primed() {
		sub.deliver(ctx, ev, false)
	}
}

// Push delivers msg to every subscription of its (device, name, kind) and
// returns how many accepted it.
func (d *Dispatcher) Push(ctx context.Context, msg *wire.EventMessage) int {
	key := NewKey(msg.Device, msg.Name, msg.Kind)

	d.mu.RLock()
	subs := append([]*Subscription(nil), d.index[key]...)
	d.mu.RUnlock()

	if len(subs) == 0 {
		d.logger.Debug("event without subscriber", "topic", key.Topic())
		return 0
	}

	ev := FromMessage(msg)
	delivered := 0
	for _, sub := range subs {
		if d.pushTo(ctx, sub, ev) {
			delivered++
		}
	}
	d.logEvent(msg, delivered > 0)
	return delivered
}

// PushTo delivers msg to one subscription. A vanished subscription is
// logged and ignored.
func (d *Dispatcher) PushTo(ctx context.Context, id uint32, msg *wire.EventMessage) bool {
	sub, err := d.Get(id)
	if err != nil {
		d.logger.Debug("event for unknown subscription", "subscription_id", id, "topic", msg.Topic())
		return false
	}
	delivered := d.pushTo(ctx, sub, FromMessage(msg))
	d.logEvent(msg, delivered)
	return delivered
}

func (d *Dispatcher) pushTo(ctx context.Context, sub *Subscription, ev *Event) bool {
	if sub.hold(ev) {
		return false
	}
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	return sub.deliver(ctx, ev, false)
}

// Get returns a subscription by ID.
func (d *Dispatcher) Get(id uint32) (*Subscription, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sub, exists := d.subscriptions[id]
	if !exists {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// GetEvents drains the queue of a subscription.
func (d *Dispatcher) GetEvents(id uint32) ([]*Event, error) {
	sub, err := d.Get(id)
	if err != nil {
		return nil, err
	}
	return sub.drain(), nil
}

// GetEventsCB drains the queue of a subscription into cb, in arrival order.
func (d *Dispatcher) GetEventsCB(ctx context.Context, id uint32, cb Callback) error {
	sub, err := d.Get(id)
	if err != nil {
		return err
	}
	cbCtx := withDelivery(ctx, id)
	for _, ev := range sub.drain() {
		cb(cbCtx, ev)
	}
	return nil
}

// EventQueueSize returns the number of queued events without draining.
func (d *Dispatcher) EventQueueSize(id uint32) (int, error) {
	sub, err := d.Get(id)
	if err != nil {
		return 0, err
	}
	return sub.queueLen(), nil
}

// IsEventQueueEmpty reports whether the queue is empty.
func (d *Dispatcher) IsEventQueueEmpty(id uint32) (bool, error) {
	n, err := d.EventQueueSize(id)
	return n == 0, err
}

// LastEventDate returns the arrival time of the newest queued event.
func (d *Dispatcher) LastEventDate(id uint32) (time.Time, error) {
	sub, err := d.Get(id)
	if err != nil {
		return time.Time{}, err
	}
	return sub.lastEventDate(), nil
}

// Unsubscribe removes a subscription. It does not wait for a delivery in
// progress. Called from the subscription's own callback it fails with
// ErrSubscriptionNotFound.
func (d *Dispatcher) Unsubscribe(ctx context.Context, id uint32) error {
	if inDelivery(ctx, id) {
		return fmt.Errorf("%w: %d is delivering", ErrSubscriptionNotFound, id)
	}

	d.mu.Lock()
	sub, exists := d.subscriptions[id]
	if !exists {
		d.mu.Unlock()
		return ErrSubscriptionNotFound
	}
	d.removeLocked(sub)
	d.mu.Unlock()

	sub.deactivate()
	d.logSubscription(sub, log.SubscriptionRemoved)
	return nil
}

// UnsubscribeOwner removes all subscriptions of owner and waits for their
// deliveries in progress to end. It returns the removed subscriptions.
func (d *Dispatcher) UnsubscribeOwner(ctx context.Context, owner string) []*Subscription {
	d.mu.Lock()
	var removed []*Subscription
	for _, sub := range d.subscriptions {
		if sub.Owner == owner {
			d.removeLocked(sub)
			removed = append(removed, sub)
		}
	}
	d.mu.Unlock()

	for _, sub := range removed {
		sub.deactivate()
		if !inDelivery(ctx, sub.ID) {
			sub.deliverMu.Lock()
			//nolint:staticcheck // waits for the delivery in progress
			sub.deliverMu.Unlock()
		}
		d.logSubscription(sub, log.SubscriptionRemoved)
	}
	return removed
}

// HasSubscribers reports whether key has at least one subscription.
func (d *Dispatcher) HasSubscribers(key Key) bool {
	key = NewKey(key.Device, key.Name, key.Kind)

	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.index[key]) > 0
}

// Subscriptions returns the subscriptions of owner, or all if owner is "".
func (d *Dispatcher) Subscriptions(owner string) []*Subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*Subscription, 0, len(d.subscriptions))
	for _, sub := range d.subscriptions {
		if owner == "" || sub.Owner == owner {
			result = append(result, sub)
		}
	}
	return result
}

// Count returns the number of subscriptions.
func (d *Dispatcher) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscriptions)
}

// Close removes all subscriptions.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	subs := d.subscriptions
	d.subscriptions = make(map[uint32]*Subscription)
	d.index = make(map[Key][]*Subscription)
	d.mu.Unlock()

	for _, sub := range subs {
		sub.deactivate()
	}
}

func (d *Dispatcher) removeLocked(sub *Subscription) {
	delete(d.subscriptions, sub.ID)

	subs := d.index[sub.Key]
	for i, s := range subs {
		if s.ID == sub.ID {
			d.index[sub.Key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.index[sub.Key]) == 0 {
		delete(d.index, sub.Key)
	}
}

func (d *Dispatcher) logEvent(msg *wire.EventMessage, delivered bool) {
	kind := msg.Kind
	d.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: d.sessionID,
		Direction: log.DirectionIn,
		Layer:     log.LayerEvent,
		Category:  log.CategoryMessage,
		LocalRole: log.RoleClient,
		Device:    msg.Device,
		Message: &log.MessageEvent{
			Type:     log.MessageTypeEvent,
			Name:     msg.Name,
			Kind:     &kind,
			Callback: delivered,
		},
	})
}

func (d *Dispatcher) logSubscription(sub *Subscription, action log.SubscriptionAction) {
	d.logger.Debug("subscription "+action.String(),
		"subscription_id", sub.ID, "topic", sub.Key.Topic(), "owner", sub.Owner)
	d.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: d.sessionID,
		Layer:     log.LayerEvent,
		Category:  log.CategorySubscription,
		LocalRole: log.RoleClient,
		Device:    sub.Key.Device,
		Subscription: &log.SubscriptionEvent{
			Action:         action,
			SubscriptionID: sub.ID,
			Name:           sub.Key.Name,
			Kind:           sub.Key.Kind,
			Stateless:      sub.Stateless,
		},
	})
}
