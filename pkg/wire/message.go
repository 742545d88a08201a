package wire

import (
	"fmt"
	"strings"
	"time"
)

// Request represents a request message from a client to a device server.
//
// CBOR encoding:
//
//	{
//	  1: requestId,    // uint32, never 0
//	  2: operation,    // uint8
//	  3: device,       // device name, e.g. "sys/tg_test/1"
//	  4: names,        // attribute or command names
//	  5: args,         // command argument (OpCommand)
//	  6: values,       // values to write (OpWrite*)
//	  7: kind,         // event kind (OpSubscribe/OpUnsubscribe)
//	  8: client        // client session id
//	}
type Request struct {
	RequestID uint32           `cbor:"1,keyasint"`
	Operation Operation        `cbor:"2,keyasint"`
	Device    string           `cbor:"3,keyasint"`
	Names     []string         `cbor:"4,keyasint,omitempty"`
	Args      any              `cbor:"5,keyasint,omitempty"`
	Values    []AttributeValue `cbor:"6,keyasint,omitempty"`
	Kind      EventKind        `cbor:"7,keyasint,omitempty"`
	Client    string           `cbor:"8,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.RequestID == 0 {
		return fmt.Errorf("requestId 0 is reserved")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	if r.Device == "" {
		return fmt.Errorf("missing device name")
	}
	switch r.Operation {
	case OpCommand, OpReadAttribute, OpWriteAttribute:
		if len(r.Names) != 1 {
			return fmt.Errorf("%s needs exactly one name, got %d", r.Operation, len(r.Names))
		}
	case OpSubscribe, OpUnsubscribe:
		if len(r.Names) != 1 || !r.Kind.IsValid() {
			return fmt.Errorf("%s needs one name and a valid event kind", r.Operation)
		}
	}
	return nil
}

// Name returns the first target name or "".
func (r *Request) Name() string {
	if len(r.Names) == 0 {
		return ""
	}
	return r.Names[0]
}

// Reply represents a reply message from a device server to a client.
//
// CBOR encoding:
//
//	{
//	  1: requestId,    // uint32: matches request
//	  2: status,       // uint8: 0=success, or error code
//	  3: value,        // command result
//	  4: attributes,   // attribute values read or written
//	  5: errors,       // DevFailed stack (if failed)
//	  6: event         // current value for OpSubscribe
//	}
type Reply struct {
	RequestID  uint32           `cbor:"1,keyasint"`
	Status     Status           `cbor:"2,keyasint"`
	Value      any              `cbor:"3,keyasint,omitempty"`
	Attributes []AttributeValue `cbor:"4,keyasint,omitempty"`
	Errors     []DevError       `cbor:"5,keyasint,omitempty"`
	Event      *EventMessage    `cbor:"6,keyasint,omitempty"`
}

// IsSuccess returns true if the reply indicates success.
func (r *Reply) IsSuccess() bool {
	return r.Status.IsSuccess() && len(r.Errors) == 0
}

// Err returns the device failure carried by the reply, or nil.
func (r *Reply) Err() error {
	if r.IsSuccess() {
		return nil
	}
	if len(r.Errors) == 0 {
		return &DevFailed{Status: r.Status, Errors: []DevError{{
			Reason:   "API_" + r.Status.String(),
			Desc:     "request failed with status " + r.Status.String(),
			Severity: SeverityErr,
		}}}
	}
	return &DevFailed{Status: r.Status, Errors: r.Errors}
}

// FailedReply builds a reply carrying err as a DevFailed stack.
func FailedReply(requestID uint32, status Status, err error) *Reply {
	if df, ok := AsDevFailed(err); ok {
		if df.Status != StatusSuccess {
			status = df.Status
		}
		return &Reply{RequestID: requestID, Status: status, Errors: df.Errors}
	}
	return &Reply{
		RequestID: requestID,
		Status:    status,
		Errors:    []DevError{{Reason: "API_" + status.String(), Desc: err.Error(), Severity: SeverityErr}},
	}
}

// AttributeValue is a single attribute reading.
type AttributeValue struct {
	Name    string     `cbor:"1,keyasint"`
	Value   any        `cbor:"2,keyasint,omitempty"`
	Quality Quality    `cbor:"3,keyasint"`
	Time    time.Time  `cbor:"4,keyasint"`
	DimX    int        `cbor:"5,keyasint,omitempty"`
	DimY    int        `cbor:"6,keyasint,omitempty"`
	Errors  []DevError `cbor:"7,keyasint,omitempty"`
}

// Err returns the per-attribute failure, or nil.
func (a *AttributeValue) Err() error {
	if len(a.Errors) == 0 {
		return nil
	}
	return &DevFailed{Status: StatusDevFailed, Errors: a.Errors}
}

// Copy returns a deep copy of the attribute value.
func (a *AttributeValue) Copy() *AttributeValue {
	if a == nil {
		return nil
	}
	c := *a
	c.Value = CloneValue(a.Value)
	c.Errors = append([]DevError(nil), a.Errors...)
	return &c
}

// EventProperties holds the per-attribute event configuration.
// A zero threshold or period means "not set".
type EventProperties struct {
	AbsChange        float64       `cbor:"1,keyasint,omitempty"`
	RelChange        float64       `cbor:"2,keyasint,omitempty"`
	ArchiveAbsChange float64       `cbor:"3,keyasint,omitempty"`
	ArchiveRelChange float64       `cbor:"4,keyasint,omitempty"`
	ArchivePeriod    time.Duration `cbor:"5,keyasint,omitempty"`
	PeriodicPeriod   time.Duration `cbor:"6,keyasint,omitempty"`
}

// AttributeConfig describes an attribute.
type AttributeConfig struct {
	Name        string          `cbor:"1,keyasint"`
	DataType    DataType        `cbor:"2,keyasint"`
	Format      DataFormat      `cbor:"3,keyasint"`
	Writable    bool            `cbor:"4,keyasint,omitempty"`
	Label       string          `cbor:"5,keyasint,omitempty"`
	Unit        string          `cbor:"6,keyasint,omitempty"`
	Description string          `cbor:"7,keyasint,omitempty"`
	MaxDimX     int             `cbor:"8,keyasint,omitempty"`
	MaxDimY     int             `cbor:"9,keyasint,omitempty"`
	Events      EventProperties `cbor:"10,keyasint"`
}

// CommandInfo describes a command.
type CommandInfo struct {
	Name    string   `cbor:"1,keyasint"`
	InType  DataType `cbor:"2,keyasint"`
	OutType DataType `cbor:"3,keyasint"`
}

// DeviceInterface is the set of commands and attributes a device exports.
type DeviceInterface struct {
	Commands   []CommandInfo     `cbor:"1,keyasint"`
	Attributes []AttributeConfig `cbor:"2,keyasint"`
	DevStarted bool              `cbor:"3,keyasint,omitempty"`
}

// Copy returns a deep copy of the interface.
func (d *DeviceInterface) Copy() *DeviceInterface {
	if d == nil {
		return nil
	}
	return &DeviceInterface{
		Commands:   append([]CommandInfo(nil), d.Commands...),
		Attributes: append([]AttributeConfig(nil), d.Attributes...),
		DevStarted: d.DevStarted,
	}
}

// SameAs reports whether two interfaces export the same commands and attributes,
// in any order. DevStarted is ignored.
func (d *DeviceInterface) SameAs(o *DeviceInterface) bool {
	if d == nil || o == nil {
		return d == o
	}
	if len(d.Commands) != len(o.Commands) || len(d.Attributes) != len(o.Attributes) {
		return false
	}
	cmds := make(map[string]CommandInfo, len(d.Commands))
	for _, c := range d.Commands {
		cmds[NormalizeName(c.Name)] = c
	}
	for _, c := range o.Commands {
		mine, ok := cmds[NormalizeName(c.Name)]
		if !ok || mine.InType != c.InType || mine.OutType != c.OutType {
			return false
		}
	}
	attrs := make(map[string]AttributeConfig, len(d.Attributes))
	for _, a := range d.Attributes {
		attrs[NormalizeName(a.Name)] = a
	}
	for _, b := range o.Attributes {
		a, ok := attrs[NormalizeName(b.Name)]
		if !ok || a.DataType != b.DataType || a.Format != b.Format || a.Writable != b.Writable {
			return false
		}
	}
	return true
}

// DataReadyInfo is the content of a data-ready event.
type DataReadyInfo struct {
	AttrName string   `cbor:"1,keyasint"`
	DataType DataType `cbor:"2,keyasint"`
	Counter  int64    `cbor:"3,keyasint"`
}

// PipeElement is one named element of a pipe blob.
type PipeElement struct {
	Name  string `cbor:"1,keyasint"`
	Value any    `cbor:"2,keyasint,omitempty"`
}

// PipeBlob is the content of a pipe.
type PipeBlob struct {
	Name     string        `cbor:"1,keyasint"`
	Elements []PipeElement `cbor:"2,keyasint"`
}

// Copy returns a deep copy of the blob.
func (p *PipeBlob) Copy() *PipeBlob {
	if p == nil {
		return nil
	}
	c := &PipeBlob{Name: p.Name, Elements: make([]PipeElement, len(p.Elements))}
	for i, e := range p.Elements {
		c.Elements[i] = PipeElement{Name: e.Name, Value: CloneValue(e.Value)}
	}
	return c
}

// Element returns the named element value.
func (p *PipeBlob) Element(name string) (any, bool) {
	for _, e := range p.Elements {
		if strings.EqualFold(e.Name, name) {
			return e.Value, true
		}
	}
	return nil, false
}

// EventMeta carries the values an event filter can reference.
type EventMeta struct {
	DeltaChangeAbs float64 `cbor:"1,keyasint,omitempty"`
	DeltaChangeRel float64 `cbor:"2,keyasint,omitempty"`
	// DeltaEvent is the time since the previous event on the same topic, in ms.
	DeltaEvent float64 `cbor:"3,keyasint,omitempty"`
	Counter    int64   `cbor:"4,keyasint,omitempty"`
	Quality    Quality `cbor:"5,keyasint,omitempty"`
}

// EventMessage is one event notification for (device, name, kind).
//
// Exactly one of Value, Config, DataReady, Pipe, Interface or Errors is set.
type EventMessage struct {
	Device    string           `cbor:"1,keyasint"`
	Name      string           `cbor:"2,keyasint"`
	Kind      EventKind        `cbor:"3,keyasint"`
	Time      time.Time        `cbor:"4,keyasint"`
	Value     *AttributeValue  `cbor:"5,keyasint,omitempty"`
	Config    *AttributeConfig `cbor:"6,keyasint,omitempty"`
	DataReady *DataReadyInfo   `cbor:"7,keyasint,omitempty"`
	Pipe      *PipeBlob        `cbor:"8,keyasint,omitempty"`
	Interface *DeviceInterface `cbor:"9,keyasint,omitempty"`
	Errors    []DevError       `cbor:"10,keyasint,omitempty"`
	Meta      EventMeta        `cbor:"11,keyasint"`
}

// Topic returns the event topic of the message.
func (m *EventMessage) Topic() string {
	return Topic(m.Device, m.Name, m.Kind)
}

// Err returns the failure carried by an error event, or nil.
func (m *EventMessage) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return &DevFailed{Status: StatusDevFailed, Errors: m.Errors}
}

// Topic returns the event topic for (device, name, kind).
// Device and attribute names are case-insensitive.
func Topic(device, name string, kind EventKind) string {
	return "tango://" + NormalizeName(device) + "/" + NormalizeName(name) + "." + kind.String()
}

// NormalizeName returns the canonical form of a device or attribute name.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
