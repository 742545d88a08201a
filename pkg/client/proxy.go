package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tango-controls/tango-go/pkg/request"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// DeviceProxy gives access to one device through a session.
type DeviceProxy struct {
	s         *Session
	name      string
	owner     string
	collector *request.Collector

	mu        sync.RWMutex
	timeout   time.Duration
	adminName string
	closed    bool
}

func newDeviceProxy(s *Session, device string) *DeviceProxy {
	return &DeviceProxy{
		s:         s,
		name:      device,
		owner:     uuid.NewString(),
		collector: request.NewCollector(s.registry, device),
		timeout:   s.cfg.Timeout,
	}
}

// Name returns the normalized device name.
func (p *DeviceProxy) Name() string {
	return p.name
}

// SetTimeout sets the timeout of synchronous calls.
func (p *DeviceProxy) SetTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
}

// Timeout returns the timeout of synchronous calls.
func (p *DeviceProxy) Timeout() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.timeout
}

// Close removes the proxy's event subscriptions. Outstanding asynchronous
// requests are dropped when no other proxy of the device is open.
func (p *DeviceProxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout())
	defer cancel()
	for _, sub := range p.s.dispatcher.UnsubscribeOwner(ctx, p.owner) {
		p.s.release(ctx, sub)
	}
	p.s.proxyClosed(p.name)
	return nil
}

func (p *DeviceProxy) check() error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrProxyClosed
	}
	if p.s.isClosed() {
		return ErrSessionClosed
	}
	return nil
}

func (p *DeviceProxy) call(ctx context.Context, req *wire.Request) (*wire.Reply, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	req.Device = p.name
	return p.s.call(ctx, p.Timeout(), req)
}

// Ping checks that the device answers and returns the round trip time.
func (p *DeviceProxy) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	reply, err := p.call(ctx, &wire.Request{Operation: wire.OpPing})
	if err != nil {
		return 0, err
	}
	if name, ok := reply.Value.(string); ok && name != "" {
		p.mu.Lock()
		p.adminName = name
		p.mu.Unlock()
	}
	return time.Since(start), nil
}

// AdmName returns the name of the admin device of the server hosting the
// device.
func (p *DeviceProxy) AdmName(ctx context.Context) (string, error) {
	p.mu.RLock()
	name := p.adminName
	p.mu.RUnlock()
	if name != "" {
		return name, nil
	}

	if _, err := p.Ping(ctx); err != nil {
		return "", err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.adminName == "" {
		return "", fmt.Errorf("%s did not report its admin device", p.name)
	}
	return p.adminName, nil
}

// CommandInout executes a command and returns its result.
func (p *DeviceProxy) CommandInout(ctx context.Context, name string, arg any) (any, error) {
	reply, err := p.call(ctx, &wire.Request{Operation: wire.OpCommand, Names: []string{name}, Args: arg})
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// ReadAttribute reads one attribute.
func (p *DeviceProxy) ReadAttribute(ctx context.Context, name string) (*wire.AttributeValue, error) {
	reply, err := p.call(ctx, &wire.Request{Operation: wire.OpReadAttribute, Names: []string{name}})
	if err != nil {
		return nil, err
	}
	return firstAttribute(reply, name)
}

// ReadAttributes reads several attributes. A failed reading does not fail
// the call; it carries its own error.
func (p *DeviceProxy) ReadAttributes(ctx context.Context, names []string) ([]wire.AttributeValue, error) {
	reply, err := p.call(ctx, &wire.Request{Operation: wire.OpReadAttributes, Names: names})
	if err != nil {
		return nil, err
	}
	return reply.Attributes, nil
}

// WriteAttribute writes one attribute.
func (p *DeviceProxy) WriteAttribute(ctx context.Context, name string, value any) error {
	_, err := p.call(ctx, &wire.Request{
		Operation: wire.OpWriteAttribute,
		Names:     []string{name},
		Values:    []wire.AttributeValue{{Name: name, Value: value}},
	})
	return err
}

// WriteAttributes writes several attributes.
func (p *DeviceProxy) WriteAttributes(ctx context.Context, values []wire.AttributeValue) error {
	_, err := p.call(ctx, &wire.Request{
		Operation: wire.OpWriteAttributes,
		Names:     valueNames(values),
		Values:    values,
	})
	return err
}

func firstAttribute(reply *wire.Reply, name string) (*wire.AttributeValue, error) {
	if len(reply.Attributes) == 0 {
		return nil, wire.NewDevFailed(wire.ReasonAttrValueNotSet, "no value returned for "+name, "")
	}
	av := reply.Attributes[0]
	return &av, nil
}

func valueNames(values []wire.AttributeValue) []string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = v.Name
	}
	return names
}
