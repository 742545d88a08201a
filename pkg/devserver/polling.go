package devserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tango-controls/tango-go/pkg/event"
	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/model"
	"github.com/tango-controls/tango-go/pkg/polling"
	"github.com/tango-controls/tango-go/pkg/property"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// reading is the last result of polling one object.
type reading struct {
	value *wire.AttributeValue
	err   error
	at    time.Time
}

// StartPolling starts polling an attribute, or a command taking no
// argument, every period.
func (s *Server) StartPolling(device, name string, command bool, period time.Duration) error {
	h, ok := s.lookup(device)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}
	if command {
		cmd, err := h.dev.GetCommand(name)
		if err != nil {
			return err
		}
		if cmd.Metadata().InType != wire.DataTypeVoid {
			return fmt.Errorf("%w: polled command %s must not take an argument", model.ErrInvalidArgument, cmd.Name())
		}
		name = cmd.Name()
	} else {
		attr, err := h.dev.GetAttribute(name)
		if err != nil {
			return err
		}
		name = attr.Name()
	}

	if err := s.bridge.Add(h.dev.Name(), name, command, period); err != nil {
		return err
	}
	key := polling.NewKey(h.dev.Name(), name)
	s.mu.Lock()
	delete(s.stopped, key)
	s.mu.Unlock()

	s.persistPolling(h.dev.Name(), name, command, period)
	s.logState(log.StateEntityPolling, h.dev.Name(), "", period.String(), "polling started for "+name)
	s.debugLog("polling started", "device", h.dev.Name(), "name", name, "period", period)
	return nil
}

// UpdatePollingPeriod changes the period of a polled object.
func (s *Server) UpdatePollingPeriod(device, name string, period time.Duration) error {
	c, ok := s.bridge.Get(device, name)
	if !ok {
		return fmt.Errorf("%w: %s/%s", polling.ErrNotPolled, device, name)
	}
	if err := s.bridge.Update(device, name, period); err != nil {
		return err
	}
	s.persistPolling(device, name, c.Command, period)
	s.logState(log.StateEntityPolling, device, c.Period.String(), period.String(), "polling period updated for "+name)
	return nil
}

// StopPolling stops polling an object. Subscribers of its events get an
// error event.
func (s *Server) StopPolling(device, name string) error {
	c, ok := s.bridge.Get(device, name)
	if !ok {
		return fmt.Errorf("%w: %s/%s", polling.ErrNotPolled, device, name)
	}
	if err := s.bridge.Stop(device, name); err != nil {
		return err
	}
	s.persistPolling(device, name, c.Command, 0)
	s.logState(log.StateEntityPolling, device, c.Period.String(), "", "polling stopped for "+name)
	return nil
}

// PollPeriod returns the polling period of an object.
func (s *Server) PollPeriod(device, name string) (time.Duration, bool) {
	return s.bridge.Period(device, name)
}

// PolledDevices returns the names of the devices with at least one polled
// object, sorted.
func (s *Server) PolledDevices() []string {
	keys := s.bridge.Devices()
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if h, ok := s.lookup(k); ok {
			names = append(names, h.dev.Name())
		}
	}
	sort.Strings(names)
	return names
}

// PollStatus describes every polled object of device and its last reading.
func (s *Server) PollStatus(device string) ([]string, error) {
	h, ok := s.lookup(device)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}

	cycles := s.bridge.Cycles(h.dev.Name())
	out := make([]string, 0, len(cycles))
	for _, c := range cycles {
		var b strings.Builder
		kind := property.ObjectAttribute
		if c.Command {
			kind = property.ObjectCommand
		}
		fmt.Fprintf(&b, "Polled %s name = %s\n", kind, c.Key.Name)
		fmt.Fprintf(&b, "Polling period (mS) = %d\n", c.Period.Milliseconds())
		fmt.Fprintf(&b, "Polling ticks = %d", c.Ticks)

		s.mu.RLock()
		r, ok := s.readings[c.Key]
		s.mu.RUnlock()
		switch {
		case !ok:
		case r.err != nil:
			fmt.Fprintf(&b, "\nLast reading failed at %s: %v", r.at.Format(time.RFC3339Nano), r.err)
		default:
			fmt.Fprintf(&b, "\nLast reading at %s = %v", r.at.Format(time.RFC3339Nano), r.value.Value)
		}
		out = append(out, b.String())
	}
	return out, nil
}

// poll runs one polling tick: read the object, compare with the previous
// readings and publish the resulting events.
func (s *Server) poll(c polling.Cycle) {
	h, ok := s.lookup(c.Key.Device)
	if !ok {
		return
	}
	ctx := context.Background()
	now := time.Now()
	snap := event.Snapshot{Device: h.dev.Name(), Name: c.Key.Name, Time: now}

	if c.Command {
		cmd, err := h.dev.GetCommand(c.Key.Name)
		if err != nil {
			return
		}
		snap.Name = cmd.Name()
		out, err := cmd.Invoke(ctx, nil)
		if err != nil {
			snap.Err = err
		} else {
			snap.Value = &wire.AttributeValue{Name: cmd.Name(), Value: out, Quality: wire.QualityValid, Time: now}
		}
	} else {
		attr, err := h.dev.GetAttribute(c.Key.Name)
		if err != nil {
			return
		}
		snap.Name = attr.Name()
		snap.Props = attr.EventProperties()
		snap.Value, snap.Err = attr.Read(ctx)
	}
	if snap.Err != nil {
		snap.Err = failure(snap.Err, h.dev.Name())
	}

	s.mu.Lock()
	s.readings[c.Key] = reading{value: snap.Value, err: snap.Err, at: now}
	s.mu.Unlock()

	if c.Command {
		return
	}
	for _, msg := range s.detector.Poll(snap) {
		s.publish(msg)
	}
}

// pollingStopped raises error events for subscribers of an attribute whose
// polling stopped.
func (s *Server) pollingStopped(key polling.Key, command bool) {
	s.mu.Lock()
	delete(s.readings, key)
	s.mu.Unlock()

	if command {
		return
	}
	device, name := key.Device, key.Name
	if h, ok := s.lookup(key.Device); ok {
		device = h.dev.Name()
		if attr, err := h.dev.GetAttribute(key.Name); err == nil {
			name = attr.Name()
		}
	}

	msgs := s.detector.PollingStopped(device, name)
	if !s.pollInterest(device, name) {
		return
	}
	s.mu.Lock()
	s.stopped[polling.NewKey(device, name)] = true
	s.mu.Unlock()
	for _, msg := range msgs {
		s.publish(msg)
	}
}

func (s *Server) persistPolling(device, name string, command bool, period time.Duration) {
	_, err := property.Update(s.store, device, name, func(o *property.Object) {
		o.Type = property.ObjectAttribute
		if command {
			o.Type = property.ObjectCommand
		}
		o.PollPeriod = period
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("storing polling period failed", "device", device, "name", name, "error", err)
	}
}

// restore applies the stored event properties and polling periods of d.
func (s *Server) restore(d *model.Device) error {
	h, ok := s.lookup(d.Name())
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, d.Name())
	}
	objs, err := s.store.List(h.dev.Name())
	if err != nil {
		return fmt.Errorf("loading properties of %s: %w", h.dev.Name(), err)
	}

	var errs []error
	for _, obj := range objs {
		if obj.HasEvents && obj.Type == property.ObjectAttribute {
			if attr, err := h.dev.GetAttribute(obj.Name); err == nil {
				cfg := attr.Config()
				cfg.Events = obj.Events
				if err := h.dev.SetAttributeConfig(cfg); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if !obj.Polled() {
			continue
		}
		err := s.StartPolling(h.dev.Name(), obj.Name, obj.Type == property.ObjectCommand, obj.PollPeriod)
		if err != nil && !errors.Is(err, polling.ErrAlreadyPolled) {
			s.debugLog("restoring polling failed", "device", h.dev.Name(), "name", obj.Name, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restoring %s: %w", h.dev.Name(), errors.Join(errs...))
	}
	return nil
}
