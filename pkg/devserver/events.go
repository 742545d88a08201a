package devserver

import (
	"context"
	"fmt"
	"time"

	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/model"
	"github.com/tango-controls/tango-go/pkg/polling"
	"github.com/tango-controls/tango-go/pkg/property"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// DeclarePushed marks (device, name, kind) as pushed by device code, so
// clients may subscribe to change or archive events without polling.
func (s *Server) DeclarePushed(device, name string, kind wire.EventKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushed == nil {
		s.pushed = make(map[string]bool)
	}
	s.pushed[wire.Topic(device, name, kind)] = true
}

func (s *Server) isPushed(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pushed[topic]
}

func (s *Server) handleSubscribe(ctx context.Context, h *hosted, req *wire.Request) *wire.Reply {
	msg, err := s.currentEvent(ctx, h, req.Name(), req.Kind)
	if err != nil {
		return errorReply(req.RequestID, err, h.dev.Name())
	}

	topic := wire.Topic(h.dev.Name(), req.Name(), req.Kind)
	n := s.addInterest(topic, req.Client)
	s.logSubscription(h.dev.Name(), req, log.SubscriptionAdded)
	s.debugLog("subscribed", "topic", topic, "client", req.Client, "count", n)

	return &wire.Reply{RequestID: req.RequestID, Status: wire.StatusSuccess, Event: msg}
}

func (s *Server) handleUnsubscribe(h *hosted, req *wire.Request) *wire.Reply {
	topic := wire.Topic(h.dev.Name(), req.Name(), req.Kind)
	if !s.dropInterest(topic, req.Client) {
		return &wire.Reply{
			RequestID: req.RequestID,
			Status:    wire.StatusNotSubscribed,
			Errors: []wire.DevError{{
				Reason:   wire.ReasonEventNotSubscribed,
				Desc:     "no subscription for " + topic,
				Origin:   h.dev.Name(),
				Severity: wire.SeverityErr,
			}},
		}
	}
	s.logSubscription(h.dev.Name(), req, log.SubscriptionRemoved)
	return &wire.Reply{RequestID: req.RequestID, Status: wire.StatusSuccess}
}

// currentEvent validates a subscription and returns the event carrying
// the current value, or nil for kinds without one.
func (s *Server) currentEvent(ctx context.Context, h *hosted, name string, kind wire.EventKind) (*wire.EventMessage, error) {
	dev := h.dev
	now := time.Now()

	switch kind {
	case wire.EventPipe:
		if !dev.HasPipe(name) {
			return nil, fmt.Errorf("%w: %s", model.ErrPipeNotFound, name)
		}
		return nil, nil
	case wire.EventInterfaceChange:
		if wire.NormalizeName(name) != wire.InterfaceEventName {
			return nil, fmt.Errorf("%w: interface events use the name %q", model.ErrInvalidArgument, wire.InterfaceEventName)
		}
		return nil, nil
	}

	attr, err := dev.GetAttribute(name)
	if err != nil {
		return nil, err
	}
	msg := &wire.EventMessage{Device: dev.Name(), Name: attr.Name(), Kind: kind, Time: now}

	switch kind {
	case wire.EventChange, wire.EventPeriodic, wire.EventArchive:
		_, polled := s.bridge.Period(dev.Name(), attr.Name())
		if !polled && !s.isPushed(wire.Topic(dev.Name(), attr.Name(), kind)) {
			return nil, &wire.DevFailed{
				Status: wire.StatusPollingNotStarted,
				Errors: []wire.DevError{{
					Reason:   wire.ReasonPollingNotStarted,
					Desc:     "the polling (necessary to send events) for the attribute " + attr.Name() + " is not started",
					Origin:   dev.Name(),
					Severity: wire.SeverityErr,
				}},
			}
		}
		av, err := dev.ReadAttribute(ctx, attr.Name())
		if err != nil {
			msg.Errors = failure(err, dev.Name()).Errors
		} else {
			msg.Value = av
			msg.Meta.Quality = av.Quality
		}
	case wire.EventAttrConf:
		cfg := attr.Config()
		msg.Config = &cfg
	case wire.EventDataReady:
		s.mu.RLock()
		counter := s.dataReady[polling.NewKey(dev.Name(), attr.Name())]
		s.mu.RUnlock()
		msg.DataReady = &wire.DataReadyInfo{AttrName: attr.Name(), DataType: attr.Metadata().Type, Counter: counter}
	default:
		return nil, nil
	}
	return msg, nil
}

// Interest returns the number of subscriptions to (device, name, kind).
func (s *Server) Interest(device, name string, kind wire.EventKind) int {
	topic := wire.Topic(device, name, kind)

	s.interestMu.Lock()
	defer s.interestMu.Unlock()
	n := 0
	for _, c := range s.interest[topic] {
		n += c
	}
	return n
}

// DropClient removes every subscription made by client.
func (s *Server) DropClient(client string) {
	s.interestMu.Lock()
	defer s.interestMu.Unlock()
	for topic, clients := range s.interest {
		delete(clients, client)
		if len(clients) == 0 {
			delete(s.interest, topic)
		}
	}
}

func (s *Server) addInterest(topic, client string) int {
	s.interestMu.Lock()
	defer s.interestMu.Unlock()
	clients, ok := s.interest[topic]
	if !ok {
		clients = make(map[string]int)
		s.interest[topic] = clients
	}
	clients[client]++
	return clients[client]
}

func (s *Server) dropInterest(topic, client string) bool {
	s.interestMu.Lock()
	defer s.interestMu.Unlock()
	clients := s.interest[topic]
	if clients[client] == 0 {
		return false
	}
	clients[client]--
	if clients[client] == 0 {
		delete(clients, client)
	}
	if len(clients) == 0 {
		delete(s.interest, topic)
	}
	return true
}

func (s *Server) hasInterest(topic string) bool {
	s.interestMu.Lock()
	defer s.interestMu.Unlock()
	return len(s.interest[topic]) > 0
}

// publish hands msg to the publisher if a client subscribed to its topic.
func (s *Server) publish(msg *wire.EventMessage) bool {
	s.mu.RLock()
	p, online := s.publisher, s.online
	s.mu.RUnlock()

	if p == nil || !online || !s.hasInterest(msg.Topic()) {
		return false
	}

	kind := msg.Kind
	s.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.cfg.SessionID,
		Direction: log.DirectionOut,
		Layer:     log.LayerServer,
		Category:  log.CategoryMessage,
		LocalRole: log.RoleServer,
		Device:    msg.Device,
		Message: &log.MessageEvent{
			Type: log.MessageTypeEvent,
			Name: msg.Name,
			Kind: &kind,
		},
	})
	p.Publish(msg)
	return true
}

// push stamps and publishes an event raised by device code.
func (s *Server) push(msg *wire.EventMessage) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	s.detector.Stamp(msg)
	s.publish(msg)
}

func (s *Server) pushAttribute(device string, kind wire.EventKind, av wire.AttributeValue) error {
	h, ok := s.lookup(device)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}
	attr, err := h.dev.GetAttribute(av.Name)
	if err != nil {
		return err
	}
	av.Name = attr.Name()
	if av.Time.IsZero() {
		av.Time = time.Now()
	}
	s.push(&wire.EventMessage{Device: h.dev.Name(), Name: attr.Name(), Kind: kind, Time: av.Time, Value: &av})
	return nil
}

// PushChangeEvent publishes a change event carrying av.
func (s *Server) PushChangeEvent(device string, av wire.AttributeValue) error {
	return s.pushAttribute(device, wire.EventChange, av)
}

// PushArchiveEvent publishes an archive event carrying av.
func (s *Server) PushArchiveEvent(device string, av wire.AttributeValue) error {
	return s.pushAttribute(device, wire.EventArchive, av)
}

// PushUserEvent publishes a user event carrying av.
func (s *Server) PushUserEvent(device string, av wire.AttributeValue) error {
	return s.pushAttribute(device, wire.EventUser, av)
}

// PushErrorEvent publishes an error event for (device, name, kind).
func (s *Server) PushErrorEvent(device, name string, kind wire.EventKind, cause error) error {
	h, ok := s.lookup(device)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}
	s.push(&wire.EventMessage{
		Device: h.dev.Name(),
		Name:   name,
		Kind:   kind,
		Errors: failure(cause, h.dev.Name()).Errors,
	})
	return nil
}

// PushDataReadyEvent publishes a data-ready event for attribute name.
func (s *Server) PushDataReadyEvent(device, name string, counter int64) error {
	h, ok := s.lookup(device)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}
	attr, err := h.dev.GetAttribute(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.dataReady[polling.NewKey(h.dev.Name(), attr.Name())] = counter
	s.mu.Unlock()

	s.push(&wire.EventMessage{
		Device:    h.dev.Name(),
		Name:      attr.Name(),
		Kind:      wire.EventDataReady,
		DataReady: &wire.DataReadyInfo{AttrName: attr.Name(), DataType: attr.Metadata().Type, Counter: counter},
	})
	return nil
}

// PushPipeEvent publishes a pipe event carrying blob.
func (s *Server) PushPipeEvent(device string, blob *wire.PipeBlob) error {
	h, ok := s.lookup(device)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}
	if !h.dev.HasPipe(blob.Name) {
		return fmt.Errorf("%w: %s", model.ErrPipeNotFound, blob.Name)
	}
	s.push(&wire.EventMessage{Device: h.dev.Name(), Name: blob.Name, Kind: wire.EventPipe, Pipe: blob.Copy()})
	return nil
}

// configChanged persists the event properties of an attribute and
// publishes its new configuration.
func (s *Server) configChanged(d *model.Device, cfg wire.AttributeConfig) {
	_, err := property.Update(s.store, d.Name(), cfg.Name, func(o *property.Object) {
		o.Type = property.ObjectAttribute
		o.Events = cfg.Events
		o.HasEvents = true
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("storing event properties failed", "device", d.Name(), "attribute", cfg.Name, "error", err)
	}
	s.push(&wire.EventMessage{Device: d.Name(), Name: cfg.Name, Kind: wire.EventAttrConf, Config: &cfg})
}

// interfaceChanged publishes the interface of h if it differs from the
// last one published, or unconditionally when force is set. Changes made
// while the device restarts are left to the restart itself, which compares
// against the interface from before the restart. Polling of removed
// attributes and commands stops.
func (s *Server) interfaceChanged(h *hosted, started, force bool) {
	cur := h.dev.Interface()

	h.mu.Lock()
	deferred := h.restarting && !started
	same := h.iface.SameAs(cur)
	if !deferred {
		h.iface = cur.Copy()
	}
	h.mu.Unlock()

	s.stopRemovedPolling(h)

	if deferred || (same && !force) {
		return
	}
	cur.DevStarted = started
	s.push(&wire.EventMessage{
		Device:    h.dev.Name(),
		Name:      wire.InterfaceEventName,
		Kind:      wire.EventInterfaceChange,
		Interface: cur,
	})
}

func (s *Server) stopRemovedPolling(h *hosted) {
	for _, c := range s.bridge.Cycles(h.dev.Name()) {
		var err error
		if c.Command {
			_, err = h.dev.GetCommand(c.Key.Name)
		} else {
			_, err = h.dev.GetAttribute(c.Key.Name)
		}
		if err != nil {
			s.debugLog("polled object removed", "device", h.dev.Name(), "name", c.Key.Name)
			_ = s.StopPolling(h.dev.Name(), c.Key.Name)
		}
	}
}

func (s *Server) keepAliveLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.KeepAlivePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.keepAlive()
		}
	}
}

// keepAlive re-raises error events for subscribed attributes whose polling
// stopped.
func (s *Server) keepAlive() {
	s.mu.Lock()
	keys := make([]polling.Key, 0, len(s.stopped))
	for k := range s.stopped {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, k := range keys {
		if !s.pollInterest(k.Device, k.Name) {
			s.mu.Lock()
			delete(s.stopped, k)
			s.mu.Unlock()
			continue
		}
		for _, msg := range s.detector.PollingStopped(k.Device, k.Name) {
			s.publish(msg)
		}
	}
}

func (s *Server) pollInterest(device, name string) bool {
	for _, kind := range []wire.EventKind{wire.EventChange, wire.EventPeriodic, wire.EventArchive} {
		if s.hasInterest(wire.Topic(device, name, kind)) {
			return true
		}
	}
	return false
}

func (s *Server) logSubscription(device string, req *wire.Request, action log.SubscriptionAction) {
	s.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.cfg.SessionID,
		Layer:     log.LayerServer,
		Category:  log.CategorySubscription,
		LocalRole: log.RoleServer,
		Device:    device,
		Subscription: &log.SubscriptionEvent{
			Action:         action,
			SubscriptionID: req.RequestID,
			Name:           req.Name(),
			Kind:           req.Kind,
		},
	})
}
