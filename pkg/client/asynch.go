package client

import (
	"context"
	"fmt"
	"time"

	"github.com/tango-controls/tango-go/pkg/request"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// CommandInoutAsynch starts a command and returns the id to collect its
// result with CommandInoutReply.
func (p *DeviceProxy) CommandInoutAsynch(ctx context.Context, name string, arg any) (request.ID, error) {
	return p.submit(ctx, request.KindCommand, &wire.Request{Names: []string{name}, Args: arg}, nil)
}

// CommandInoutAsynchCB starts a command whose result is handed to
// cb.CmdEnded.
func (p *DeviceProxy) CommandInoutAsynchCB(ctx context.Context, name string, arg any, cb *request.Callbacks) error {
	_, err := p.submit(ctx, request.KindCommand, &wire.Request{Names: []string{name}, Args: arg}, cbOrEmpty(cb))
	return err
}

// ReadAttributeAsynch starts reading one attribute.
func (p *DeviceProxy) ReadAttributeAsynch(ctx context.Context, name string) (request.ID, error) {
	return p.submit(ctx, request.KindReadAttribute, &wire.Request{Names: []string{name}}, nil)
}

// ReadAttributeAsynchCB starts reading one attribute; cb.AttrRead receives
// the reading.
func (p *DeviceProxy) ReadAttributeAsynchCB(ctx context.Context, name string, cb *request.Callbacks) error {
	_, err := p.submit(ctx, request.KindReadAttribute, &wire.Request{Names: []string{name}}, cbOrEmpty(cb))
	return err
}

// ReadAttributesAsynch starts reading several attributes.
func (p *DeviceProxy) ReadAttributesAsynch(ctx context.Context, names []string) (request.ID, error) {
	return p.submit(ctx, request.KindReadAttributes, &wire.Request{Names: names}, nil)
}

// ReadAttributesAsynchCB starts reading several attributes; cb.AttrRead
// receives the readings.
func (p *DeviceProxy) ReadAttributesAsynchCB(ctx context.Context, names []string, cb *request.Callbacks) error {
	_, err := p.submit(ctx, request.KindReadAttributes, &wire.Request{Names: names}, cbOrEmpty(cb))
	return err
}

// WriteAttributeAsynch starts writing one attribute.
func (p *DeviceProxy) WriteAttributeAsynch(ctx context.Context, name string, value any) (request.ID, error) {
	return p.submit(ctx, request.KindWriteAttribute, writeRequest(name, value), nil)
}

// WriteAttributeAsynchCB starts writing one attribute; cb.AttrWritten is
// called when the write completed.
func (p *DeviceProxy) WriteAttributeAsynchCB(ctx context.Context, name string, value any, cb *request.Callbacks) error {
	_, err := p.submit(ctx, request.KindWriteAttribute, writeRequest(name, value), cbOrEmpty(cb))
	return err
}

// WriteAttributesAsynch starts writing several attributes.
func (p *DeviceProxy) WriteAttributesAsynch(ctx context.Context, values []wire.AttributeValue) (request.ID, error) {
	return p.submit(ctx, request.KindWriteAttributes, &wire.Request{Names: valueNames(values), Values: values}, nil)
}

// WriteAttributesAsynchCB starts writing several attributes.
func (p *DeviceProxy) WriteAttributesAsynchCB(ctx context.Context, values []wire.AttributeValue, cb *request.Callbacks) error {
	_, err := p.submit(ctx, request.KindWriteAttributes, &wire.Request{Names: valueNames(values), Values: values}, cbOrEmpty(cb))
	return err
}

// CommandInoutReply returns the result of CommandInoutAsynch.
//
// A negative timeout does not wait: ErrNotYetArrived is returned while the
// reply is outstanding. A zero timeout waits until the reply arrives. A
// positive timeout returns request.ErrTimeout when it elapses; the request
// can be collected later.
func (p *DeviceProxy) CommandInoutReply(ctx context.Context, id request.ID, timeout time.Duration) (any, error) {
	reply, err := p.collect(ctx, id, timeout, request.KindCommand)
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// ReadAttributeReply returns the reading of ReadAttributeAsynch.
func (p *DeviceProxy) ReadAttributeReply(ctx context.Context, id request.ID, timeout time.Duration) (*wire.AttributeValue, error) {
	reply, err := p.collect(ctx, id, timeout, request.KindReadAttribute)
	if err != nil {
		return nil, err
	}
	return firstAttribute(reply, fmt.Sprintf("request %d", id))
}

// ReadAttributesReply returns the readings of ReadAttributesAsynch.
func (p *DeviceProxy) ReadAttributesReply(ctx context.Context, id request.ID, timeout time.Duration) ([]wire.AttributeValue, error) {
	reply, err := p.collect(ctx, id, timeout, request.KindReadAttributes)
	if err != nil {
		return nil, err
	}
	return reply.Attributes, nil
}

// WriteAttributeReply waits for the completion of WriteAttributeAsynch.
func (p *DeviceProxy) WriteAttributeReply(ctx context.Context, id request.ID, timeout time.Duration) error {
	_, err := p.collect(ctx, id, timeout, request.KindWriteAttribute)
	return err
}

// WriteAttributesReply waits for the completion of WriteAttributesAsynch.
func (p *DeviceProxy) WriteAttributesReply(ctx context.Context, id request.ID, timeout time.Duration) error {
	_, err := p.collect(ctx, id, timeout, request.KindWriteAttributes)
	return err
}

// GetAsynchReplies fires the callbacks of the arrived callback-mode
// requests of this device. Timeout semantics are those of
// Session.GetAsynchReplies.
func (p *DeviceProxy) GetAsynchReplies(ctx context.Context, timeout time.Duration) error {
	if err := p.check(); err != nil {
		return err
	}
	return p.collector.GetAsynchReplies(ctx, timeout)
}

// submit registers and sends an asynchronous request. A request whose send
// fails is discarded and never reaches a callback.
func (p *DeviceProxy) submit(ctx context.Context, kind request.Kind, req *wire.Request, cb *request.Callbacks) (request.ID, error) {
	if err := p.check(); err != nil {
		return 0, err
	}
	req.Operation = kind.Operation()
	req.Device = p.name

	id := p.s.registry.Submit(kind, p.name, req.Names, cb)
	if err := p.s.send(ctx, id, req); err != nil {
		p.s.registry.Discard(id)
		return 0, err
	}
	return id, nil
}

// collect retrieves the reply of a polling-mode request of kind.
func (p *DeviceProxy) collect(ctx context.Context, id request.ID, timeout time.Duration, kind request.Kind) (*wire.Reply, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	req, ok := p.s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", request.ErrRequestNotFound, id)
	}
	if req.Kind != kind || wire.NormalizeName(req.Device) != p.name || req.HasCallback() {
		return nil, fmt.Errorf("%w: %d is a %s request on %s", ErrBadAsynchID, id, req.Kind, req.Device)
	}

	if timeout < 0 {
		reply, status, err := p.s.registry.TryCollect(id)
		if status == request.StatusPending {
			return nil, fmt.Errorf("%w: %d", request.ErrNotYetArrived, id)
		}
		return reply, err
	}
	reply, _, err := p.s.registry.Collect(ctx, id, timeout)
	return reply, err
}

func writeRequest(name string, value any) *wire.Request {
	return &wire.Request{Names: []string{name}, Values: []wire.AttributeValue{{Name: name, Value: value}}}
}

// cbOrEmpty keeps a request in callback mode when no callback is set.
func cbOrEmpty(cb *request.Callbacks) *request.Callbacks {
	if cb == nil {
		return &request.Callbacks{}
	}
	return cb
}
