package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tango-controls/tango-go/pkg/connection"
	"github.com/tango-controls/tango-go/pkg/event"
	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// SubscribeOptions configures SubscribeEvent.
type SubscribeOptions struct {
	// Callback receives the events. Without it events are queued for
	// GetEvents.
	Callback event.Callback

	// Filter is an expression over delta_change_abs, delta_change_rel,
	// delta_event, quality and counter.
	Filter string

	// Capacity is the queue capacity: event.Unbounded, event.LastOnly
	// (the default) or N > 0.
	Capacity int

	// Stateless subscriptions succeed while the device is unreachable and
	// are established once it answers.
	Stateless bool
}

// SubscribeEvent subscribes to events of kind on the attribute or pipe
// name. For kinds with a current value the first event carries it and is
// delivered before SubscribeEvent returns.
func (p *DeviceProxy) SubscribeEvent(ctx context.Context, name string, kind wire.EventKind, opts SubscribeOptions) (uint32, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	s := p.s
	key := event.NewKey(p.name, name, kind)
	sub, err := s.dispatcher.Subscribe(key, event.Options{
		Callback:  opts.Callback,
		Filter:    opts.Filter,
		Capacity:  opts.Capacity,
		Stateless: opts.Stateless,
		Owner:     p.owner,
	})
	if err != nil {
		return 0, err
	}

	// events published after the server's reply must not be missed
	if err := s.tr.Watch(key.Topic()); err != nil {
		_ = s.dispatcher.Unsubscribe(ctx, sub.ID)
		return 0, transportFailure(p.name, err)
	}

	reply, err := s.subscribeRemote(ctx, p.Timeout(), key)
	if err != nil {
		if !opts.Stateless {
			_ = s.tr.Unwatch(key.Topic())
			_ = s.dispatcher.Unsubscribe(ctx, sub.ID)
			return 0, err
		}
		rs := &remoteSub{sub: sub, lost: true}
		if !s.track(rs) {
			_ = s.tr.Unwatch(key.Topic())
			_ = s.dispatcher.Unsubscribe(ctx, sub.ID)
			return 0, ErrSessionClosed
		}
		s.dispatcher.Deliver(ctx, sub, failedEvent(key, err))
		s.logSubscription(sub, log.SubscriptionRetrying)
		if l, ok := s.link(p.name); ok {
			l.MarkLost()
		}
		return sub.ID, nil
	}

	if !s.track(&remoteSub{sub: sub}) {
		_ = s.dispatcher.Unsubscribe(ctx, sub.ID)
		return 0, ErrSessionClosed
	}
	if reply.Event != nil {
		s.dispatcher.Deliver(ctx, sub, reply.Event)
	} else {
		s.dispatcher.Release(ctx, sub)
	}
	return sub.ID, nil
}

// UnsubscribeEvent removes a subscription of this proxy. Called from the
// subscription's own callback it fails with event.ErrSubscriptionNotFound.
func (p *DeviceProxy) UnsubscribeEvent(ctx context.Context, id uint32) error {
	sub, err := p.subscription(id)
	if err != nil {
		return err
	}
	if err := p.s.dispatcher.Unsubscribe(ctx, id); err != nil {
		return err
	}
	p.s.release(ctx, sub)
	return nil
}

// GetEvents drains the queued events of a subscription without callback.
func (p *DeviceProxy) GetEvents(id uint32) ([]*event.Event, error) {
	if _, err := p.subscription(id); err != nil {
		return nil, err
	}
	return p.s.dispatcher.GetEvents(id)
}

// GetEventsCB drains the queued events of a subscription into cb.
func (p *DeviceProxy) GetEventsCB(ctx context.Context, id uint32, cb event.Callback) error {
	if _, err := p.subscription(id); err != nil {
		return err
	}
	return p.s.dispatcher.GetEventsCB(ctx, id, cb)
}

// EventQueueSize returns the number of queued events.
func (p *DeviceProxy) EventQueueSize(id uint32) (int, error) {
	if _, err := p.subscription(id); err != nil {
		return 0, err
	}
	return p.s.dispatcher.EventQueueSize(id)
}

// IsEventQueueEmpty reports whether no event is queued.
func (p *DeviceProxy) IsEventQueueEmpty(id uint32) (bool, error) {
	if _, err := p.subscription(id); err != nil {
		return false, err
	}
	return p.s.dispatcher.IsEventQueueEmpty(id)
}

// LastEventDate returns the arrival time of the newest queued event.
func (p *DeviceProxy) LastEventDate(id uint32) (time.Time, error) {
	if _, err := p.subscription(id); err != nil {
		return time.Time{}, err
	}
	return p.s.dispatcher.LastEventDate(id)
}

// EventStats returns the counters of a subscription.
func (p *DeviceProxy) EventStats(id uint32) (event.Stats, error) {
	sub, err := p.subscription(id)
	if err != nil {
		return event.Stats{}, err
	}
	return sub.Stats(), nil
}

// subscription returns a subscription made through this proxy.
func (p *DeviceProxy) subscription(id uint32) (*event.Subscription, error) {
	sub, err := p.s.dispatcher.Get(id)
	if err != nil {
		return nil, err
	}
	if sub.Owner != p.owner {
		return nil, fmt.Errorf("%w: %d", event.ErrSubscriptionNotFound, id)
	}
	return sub, nil
}

// subscribeRemote registers key with the device server.
func (s *Session) subscribeRemote(ctx context.Context, timeout time.Duration, key event.Key) (*wire.Reply, error) {
	return s.call(ctx, timeout, &wire.Request{
		Operation: wire.OpSubscribe,
		Device:    key.Device,
		Names:     []string{key.Name},
		Kind:      key.Kind,
	})
}

// release undoes the transport and server side of a removed subscription.
func (s *Session) release(ctx context.Context, sub *event.Subscription) {
	rs := s.untrack(sub.ID)
	if err := s.tr.Unwatch(sub.Key.Topic()); err != nil {
		s.logger.Debug("unwatch failed", "topic", sub.Key.Topic(), "error", err)
	}
	if rs != nil && !rs.lost {
		s.unsubscribeRemote(ctx, sub.Key)
	}
}

// unsubscribeRemote removes key from the device server, best effort.
func (s *Session) unsubscribeRemote(ctx context.Context, key event.Key) {
	req := &wire.Request{
		Operation: wire.OpUnsubscribe,
		Device:    key.Device,
		Names:     []string{key.Name},
		Kind:      key.Kind,
	}
	if _, err := s.call(ctx, s.cfg.Timeout, req); err != nil {
		s.logger.Debug("server unsubscribe failed", "topic", key.Topic(), "error", err)
	}
}

func (s *Session) track(rs *remoteSub) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.remote[rs.sub.ID] = rs
	return true
}

func (s *Session) untrack(id uint32) *remoteSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.remote[id]
	delete(s.remote, id)
	return rs
}

// link returns the reachability link of device, creating it on first use.
func (s *Session) link(device string) (*connection.Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	if l, ok := s.links[device]; ok {
		return l, true
	}

	l := connection.NewLink(device, func(ctx context.Context) error {
		return s.restore(ctx, device)
	}, s.cfg.Link)
	l.OnStateChange(func(device string, old, new connection.State) {
		s.logger.Info("device link state changed", "device", device, "from", old, "to", new)
		s.logState(device, old.String(), new.String(), "")
	})
	l.OnRetry(func(device string, attempt int, delay time.Duration, err error) {
		s.logger.Debug("device still unreachable", "device", device, "attempt", attempt, "delay", delay, "error", err)
	})
	l.Start()
	s.links[device] = l
	return l, true
}

// lostSubscriptions returns the subscriptions of device the server does
// not know about.
func (s *Session) lostSubscriptions(device string) []*remoteSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lost []*remoteSub
	for _, rs := range s.remote {
		if rs.lost && rs.sub.Key.Device == device {
			lost = append(lost, rs)
		}
	}
	return lost
}

// restore re-registers the lost subscriptions of device. It is the probe of
// the device's link: it fails while any subscription could not be restored.
func (s *Session) restore(ctx context.Context, device string) error {
	lost := s.lostSubscriptions(device)
	if len(lost) == 0 {
		_, err := s.call(ctx, 0, &wire.Request{Operation: wire.OpPing, Device: device})
		return err
	}

	var errs []error
	for _, rs := range lost {
		reply, err := s.subscribeRemote(ctx, 0, rs.sub.Key)
		if err != nil {
			errs = append(errs, err)
			s.logSubscription(rs.sub, log.SubscriptionRetrying)
			continue
		}

		s.mu.Lock()
		_, tracked := s.remote[rs.sub.ID]
		if tracked {
			rs.lost = false
		}
		s.mu.Unlock()
		if !tracked {
			// unsubscribed meanwhile
			s.unsubscribeRemote(ctx, rs.sub.Key)
			continue
		}

		s.logSubscription(rs.sub, log.SubscriptionRenewed)
		if reply.Event != nil {
			s.dispatcher.PushTo(ctx, rs.sub.ID, reply.Event)
		}
	}
	return errors.Join(errs...)
}

// markLost flags the established subscriptions of device as lost and
// returns them.
func (s *Session) markLost(device string) []*remoteSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lost []*remoteSub
	for _, rs := range s.remote {
		if !rs.lost && rs.sub.Key.Device == device {
			rs.lost = true
			lost = append(lost, rs)
		}
	}
	return lost
}

// deviceLost tells every subscriber of device that its events stopped and
// starts the reconnection.
func (s *Session) deviceLost(ctx context.Context, device string, cause error) {
	lost := s.markLost(device)
	if len(lost) == 0 {
		return
	}
	s.logger.Warn("event channel lost", "device", device, "subscriptions", len(lost), "error", cause)
	for _, rs := range lost {
		s.dispatcher.PushTo(ctx, rs.sub.ID, timeoutEvent(rs.sub.Key, cause))
	}
	if l, ok := s.link(device); ok {
		l.MarkLost()
	}
}

// subscribedDevices returns the devices with established subscriptions.
func (s *Session) subscribedDevices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var devices []string
	for _, rs := range s.remote {
		d := rs.sub.Key.Device
		if !rs.lost && !seen[d] {
			seen[d] = true
			devices = append(devices, d)
		}
	}
	return devices
}

func (s *Session) keepAliveLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.KeepAlivePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.keepAlive()
		}
	}
}

// keepAlive pings every device with established subscriptions.
func (s *Session) keepAlive() {
	for _, device := range s.subscribedDevices() {
		_, err := s.call(s.ctx, s.cfg.Timeout, &wire.Request{Operation: wire.OpPing, Device: device})
		if err == nil || s.ctx.Err() != nil {
			continue
		}
		s.deviceLost(s.ctx, device, err)
	}
}

func (s *Session) logSubscription(sub *event.Subscription, action log.SubscriptionAction) {
	s.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
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

// failedEvent is the error event of a subscription that could not be
// established.
func failedEvent(key event.Key, err error) *wire.EventMessage {
	return &wire.EventMessage{
		Device: key.Device,
		Name:   key.Name,
		Kind:   key.Kind,
		Time:   time.Now(),
		Errors: wire.ToDevErrors(err, key.Device),
	}
}

// timeoutEvent is the error event of a subscription whose device stopped
// answering.
func timeoutEvent(key event.Key, cause error) *wire.EventMessage {
	errs := []wire.DevError{{
		Reason:   wire.ReasonEventTimeout,
		Desc:     fmt.Sprintf("event channel for %s is not responding anymore, maybe the server or event system is down", key.Topic()),
		Origin:   key.Device,
		Severity: wire.SeverityErr,
	}}
	return &wire.EventMessage{
		Device: key.Device,
		Name:   key.Name,
		Kind:   key.Kind,
		Time:   time.Now(),
		Errors: append(errs, wire.ToDevErrors(cause, key.Device)...),
	}
}
