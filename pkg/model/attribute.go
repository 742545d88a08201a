package model

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Access flags for attributes.
type Access uint8

const (
	// AccessRead allows reading the attribute.
	AccessRead Access = 1 << iota

	// AccessWrite allows writing the attribute.
	AccessWrite

	// AccessReadOnly is read only.
	AccessReadOnly = AccessRead

	// AccessReadWrite is read and write.
	AccessReadWrite = AccessRead | AccessWrite
)

// CanRead returns true if reading is allowed.
func (a Access) CanRead() bool { return a&AccessRead != 0 }

// CanWrite returns true if writing is allowed.
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

// String returns the access flags as a string.
func (a Access) String() string {
	var s string
	if a.CanRead() {
		s += "R"
	}
	if a.CanWrite() {
		s += "W"
	}
	if s == "" {
		return "-"
	}
	return s
}

// AttributeMetadata describes an attribute's properties.
type AttributeMetadata struct {
	// Name is the attribute name.
	Name string

	// Type is the data type of the attribute value.
	Type wire.DataType

	// Format is the shape of the value.
	Format wire.DataFormat

	// Access defines the allowed operations.
	Access Access

	// MaxDimX and MaxDimY bound spectrum and image sizes.
	MaxDimX int
	MaxDimY int

	// MinValue is the minimum allowed value (for numeric scalars).
	MinValue any

	// MaxValue is the maximum allowed value (for numeric scalars).
	MaxValue any

	// Default is the initial value.
	Default any

	Label       string
	Unit        string
	Description string

	// Events holds the initial event thresholds and periods.
	Events wire.EventProperties
}

// ReadHook produces the attribute value on each read.
// A returned error is a device-side read failure.
type ReadHook func(ctx context.Context) (value any, quality wire.Quality, err error)

// WriteHook is called with the value being written, before it is stored.
type WriteHook func(ctx context.Context, value any) error

// Attribute represents an attribute instance with its current value.
type Attribute struct {
	mu        sync.RWMutex
	metadata  *AttributeMetadata
	value     any
	quality   wire.Quality
	set       time.Time
	events    wire.EventProperties
	label     string
	unit      string
	desc      string
	readHook  ReadHook
	writeHook WriteHook
}

// Attribute errors.
var (
	ErrAttributeNotWritable = errors.New("attribute is not writable")
	ErrAttributeNotReadable = errors.New("attribute is not readable")
	ErrAttributeValueType   = errors.New("invalid value type for attribute")
	ErrAttributeOutOfRange  = errors.New("value out of range")
	ErrAttributeValueNotSet = errors.New("attribute value not set")
)

// NewAttribute creates a new attribute with the given metadata.
func NewAttribute(meta *AttributeMetadata) *Attribute {
	if meta.Access == 0 {
		meta.Access = AccessReadOnly
	}
	return &Attribute{
		metadata: meta,
		value:    meta.Default,
		set:      time.Now(),
		events:   meta.Events,
		label:    meta.Label,
		unit:     meta.Unit,
		desc:     meta.Description,
	}
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.metadata.Name
}

// Metadata returns the attribute metadata.
func (a *Attribute) Metadata() *AttributeMetadata {
	return a.metadata
}

// SetReadHook installs a hook that produces the value on each read.
func (a *Attribute) SetReadHook(h ReadHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readHook = h
}

// SetWriteHook installs a hook called on each client write.
func (a *Attribute) SetWriteHook(h WriteHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writeHook = h
}

// Read returns the current reading of the attribute.
func (a *Attribute) Read(ctx context.Context) (*wire.AttributeValue, error) {
	if !a.metadata.Access.CanRead() {
		return nil, ErrAttributeNotReadable
	}

	a.mu.RLock()
	hook := a.readHook
	value, quality := a.value, a.quality
	a.mu.RUnlock()

	if hook != nil {
		var err error
		value, quality, err = hook(ctx)
		if err != nil {
			return nil, err
		}
	}
	if value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAttributeValueNotSet, a.metadata.Name)
	}

	av := &wire.AttributeValue{
		Name:    a.metadata.Name,
		Value:   wire.CloneValue(value),
		Quality: quality,
		Time:    time.Now(),
	}
	if a.metadata.Format != wire.FormatScalar {
		av.DimX = wire.Len(value)
	}
	return av, nil
}

// Value returns the stored attribute value.
func (a *Attribute) Value() any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Quality returns the stored attribute quality.
func (a *Attribute) Quality() wire.Quality {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.quality
}

// Write sets the value on behalf of a client.
// Returns an error if the attribute is not writable or the value is invalid.
func (a *Attribute) Write(ctx context.Context, value any) error {
	if !a.metadata.Access.CanWrite() {
		return ErrAttributeNotWritable
	}
	if err := a.validateValue(value); err != nil {
		return err
	}
	a.mu.RLock()
	hook := a.writeHook
	a.mu.RUnlock()
	if hook != nil {
		if err := hook(ctx, value); err != nil {
			return err
		}
	}
	return a.store(value, wire.QualityValid)
}

// SetValue sets the value without checking write access.
// Used by device implementations to update read-only attributes.
func (a *Attribute) SetValue(value any) error {
	if err := a.validateValue(value); err != nil {
		return err
	}
	return a.store(value, a.Quality())
}

// SetValueQuality sets both value and quality without checking write access.
func (a *Attribute) SetValueQuality(value any, q wire.Quality) error {
	if err := a.validateValue(value); err != nil {
		return err
	}
	return a.store(value, q)
}

func (a *Attribute) store(value any, q wire.Quality) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = wire.CloneValue(value)
	a.quality = q
	a.set = time.Now()
	return nil
}

// Config returns the attribute configuration.
func (a *Attribute) Config() wire.AttributeConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return wire.AttributeConfig{
		Name:        a.metadata.Name,
		DataType:    a.metadata.Type,
		Format:      a.metadata.Format,
		Writable:    a.metadata.Access.CanWrite(),
		Label:       a.label,
		Unit:        a.unit,
		Description: a.desc,
		MaxDimX:     a.metadata.MaxDimX,
		MaxDimY:     a.metadata.MaxDimY,
		Events:      a.events,
	}
}

// EventProperties returns the current event thresholds.
func (a *Attribute) EventProperties() wire.EventProperties {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.events
}

// applyConfig updates the mutable part of the configuration.
// Name, type, format and access cannot change.
func (a *Attribute) applyConfig(cfg wire.AttributeConfig) error {
	if cfg.Name != "" && !sameName(cfg.Name, a.metadata.Name) {
		return fmt.Errorf("config for %q applied to %q", cfg.Name, a.metadata.Name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.label = cfg.Label
	a.unit = cfg.Unit
	a.desc = cfg.Description
	a.events = cfg.Events
	return nil
}

// validateValue checks if the value matches the expected type and range.
func (a *Attribute) validateValue(value any) error {
	if value == nil {
		return fmt.Errorf("%w: nil", ErrAttributeValueType)
	}
	if a.metadata.Format != wire.FormatScalar {
		if wire.Len(value) > 0 && !isSlice(value) {
			return fmt.Errorf("%w: expected %s", ErrAttributeValueType, a.metadata.Format)
		}
		if a.metadata.MaxDimX > 0 && wire.Len(value) > a.metadata.MaxDimX*max(a.metadata.MaxDimY, 1) {
			return fmt.Errorf("%w: %d elements exceeds max dimension", ErrAttributeOutOfRange, wire.Len(value))
		}
	}

	switch a.metadata.Type {
	case wire.DataTypeBool:
		if !elementsAre[bool](value) {
			return fmt.Errorf("%w: expected bool", ErrAttributeValueType)
		}
	case wire.DataTypeInt32, wire.DataTypeInt64, wire.DataTypeFloat64:
		if _, ok := wire.Numbers(value); !ok {
			return fmt.Errorf("%w: expected number", ErrAttributeValueType)
		}
	case wire.DataTypeString:
		if !elementsAre[string](value) {
			return fmt.Errorf("%w: expected string", ErrAttributeValueType)
		}
	case wire.DataTypeState:
		if _, ok := value.(wire.DevState); !ok {
			return fmt.Errorf("%w: expected state", ErrAttributeValueType)
		}
	case wire.DataTypeEncoded:
		if _, ok := value.([]byte); !ok {
			return fmt.Errorf("%w: expected bytes", ErrAttributeValueType)
		}
	}

	if a.metadata.Format == wire.FormatScalar && (a.metadata.MinValue != nil || a.metadata.MaxValue != nil) {
		return a.checkRange(value)
	}
	return nil
}

// checkRange validates numeric range constraints.
func (a *Attribute) checkRange(value any) error {
	v, ok := wire.ToFloat64(value)
	if !ok {
		return nil
	}
	if a.metadata.MinValue != nil {
		min, _ := wire.ToFloat64(a.metadata.MinValue)
		if v < min {
			return fmt.Errorf("%w: %v < %v", ErrAttributeOutOfRange, value, a.metadata.MinValue)
		}
	}
	if a.metadata.MaxValue != nil {
		max, _ := wire.ToFloat64(a.metadata.MaxValue)
		if v > max {
			return fmt.Errorf("%w: %v > %v", ErrAttributeOutOfRange, value, a.metadata.MaxValue)
		}
	}
	return nil
}

func isSlice(v any) bool {
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// elementsAre reports whether v is a T or a slice whose elements are all T.
func elementsAre[T any](v any) bool {
	if _, ok := v.(T); ok {
		return true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if _, ok := rv.Index(i).Interface().(T); !ok {
			return false
		}
	}
	return true
}
