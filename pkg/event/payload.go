package event

import (
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Payload is the content of an event. It is one of ValueChanged,
// ConfigChanged, Failed, DataReady, PipeValue or InterfaceChanged.
type Payload interface {
	clone() Payload
}

// ValueChanged carries an attribute value (change, periodic, archive, user).
type ValueChanged struct {
	Value wire.AttributeValue
}

// ConfigChanged carries an attribute configuration snapshot.
type ConfigChanged struct {
	Config wire.AttributeConfig
}

// Failed carries the error stack of a failed read or a lost event source.
type Failed struct {
	Errors []wire.DevError
}

// DataReady signals that new data can be read.
type DataReady struct {
	Info wire.DataReadyInfo
}

// PipeValue carries a pipe blob.
type PipeValue struct {
	Blob wire.PipeBlob
}

// InterfaceChanged carries the device interface after a change or a restart.
type InterfaceChanged struct {
	Interface wire.DeviceInterface
}

func (p *ValueChanged) clone() Payload {
	return &ValueChanged{Value: *p.Value.Copy()}
}

func (p *ConfigChanged) clone() Payload {
	c := *p
	return &c
}

func (p *Failed) clone() Payload {
	return &Failed{Errors: append([]wire.DevError(nil), p.Errors...)}
}

func (p *DataReady) clone() Payload {
	c := *p
	return &c
}

func (p *PipeValue) clone() Payload {
	return &PipeValue{Blob: *p.Blob.Copy()}
}

func (p *InterfaceChanged) clone() Payload {
	return &InterfaceChanged{Interface: *p.Interface.Copy()}
}

// Event is one event as seen by a subscriber.
type Event struct {
	SubscriptionID uint32
	Device         string
	Name           string
	Kind           wire.EventKind

	// Time is the source timestamp; Received is the local arrival time.
	Time     time.Time
	Received time.Time

	Meta    wire.EventMeta
	Payload Payload
}

// FromMessage converts a wire event message into an Event.
func FromMessage(msg *wire.EventMessage) *Event {
	ev := &Event{
		Device:   msg.Device,
		Name:     msg.Name,
		Kind:     msg.Kind,
		Time:     msg.Time,
		Received: time.Now(),
		Meta:     msg.Meta,
	}

	switch {
	case len(msg.Errors) > 0:
		ev.Payload = &Failed{Errors: msg.Errors}
	case msg.Value != nil:
		ev.Payload = &ValueChanged{Value: *msg.Value}
	case msg.Config != nil:
		ev.Payload = &ConfigChanged{Config: *msg.Config}
	case msg.DataReady != nil:
		ev.Payload = &DataReady{Info: *msg.DataReady}
	case msg.Pipe != nil:
		ev.Payload = &PipeValue{Blob: *msg.Pipe}
	case msg.Interface != nil:
		ev.Payload = &InterfaceChanged{Interface: *msg.Interface}
	}
	return ev
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	c := *e
	if e.Payload != nil {
		c.Payload = e.Payload.clone()
	}
	return &c
}

// Err returns the failure carried by the event, or nil.
func (e *Event) Err() error {
	if f, ok := e.Payload.(*Failed); ok {
		return &wire.DevFailed{Status: wire.StatusDevFailed, Errors: f.Errors}
	}
	return nil
}

// Value returns the attribute value carried by the event.
func (e *Event) Value() (*wire.AttributeValue, bool) {
	if v, ok := e.Payload.(*ValueChanged); ok {
		return &v.Value, true
	}
	return nil, false
}
