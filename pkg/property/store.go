// Package property stores the persistent configuration of polled objects:
// polling periods and event properties per (device, attribute or command).
package property

import (
	"errors"
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// ErrNotFound is returned when no properties are stored for an object.
var ErrNotFound = errors.New("properties not found")

// ObjectType distinguishes attributes from commands.
type ObjectType uint8

const (
	ObjectAttribute ObjectType = 0
	ObjectCommand   ObjectType = 1
)

// String returns the object type name as used by the polling commands.
func (t ObjectType) String() string {
	if t == ObjectCommand {
		return "command"
	}
	return "attribute"
}

// ParseObjectType parses "attribute" or "command".
func ParseObjectType(s string) (ObjectType, bool) {
	switch s {
	case "attribute", "attr":
		return ObjectAttribute, true
	case "command", "cmd":
		return ObjectCommand, true
	}
	return 0, false
}

// Object holds the stored properties of one attribute or command.
type Object struct {
	Key    string     `storm:"id"`
	Device string     `storm:"index"`
	Name   string
	Type   ObjectType

	// PollPeriod is zero when the object is not polled.
	PollPeriod time.Duration

	// Events is only meaningful when HasEvents is true.
	Events    wire.EventProperties
	HasEvents bool
}

// Polled returns true if the object has a polling period.
func (o Object) Polled() bool {
	return o.PollPeriod > 0
}

// ObjectKey returns the storage key of (device, name).
func ObjectKey(device, name string) string {
	return wire.NormalizeName(device) + "/" + wire.NormalizeName(name)
}

// Store persists object properties.
type Store interface {
	// Get returns the properties of (device, name) or ErrNotFound.
	Get(device, name string) (Object, error)

	// Put creates or replaces the properties of one object.
	Put(obj Object) error

	// List returns all objects stored for device.
	List(device string) ([]Object, error)

	// Close releases the store.
	Close() error
}

// Update reads the properties of (device, name), applies fn and stores the
// result. Missing objects start from their zero value.
func Update(s Store, device, name string, fn func(*Object)) (Object, error) {
	obj, err := s.Get(device, name)
	if errors.Is(err, ErrNotFound) {
		obj = Object{Name: name}
	} else if err != nil {
		return Object{}, err
	}
	fn(&obj)
	obj.Key = ObjectKey(device, name)
	obj.Device = wire.NormalizeName(device)
	if err := s.Put(obj); err != nil {
		return Object{}, err
	}
	return obj, nil
}
