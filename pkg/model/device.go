package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Device errors.
var (
	ErrAttributeNotFound  = errors.New("attribute not found")
	ErrPipeNotFound       = errors.New("pipe not found")
	ErrDuplicateAttribute = errors.New("duplicate attribute name")
	ErrDuplicateCommand   = errors.New("duplicate command name")
	ErrBuiltinResource    = errors.New("built-in resource cannot be removed")
)

// Built-in resources present on every device.
const (
	AttrState  = "State"
	AttrStatus = "Status"
	CmdState   = "State"
	CmdStatus  = "Status"
	CmdInit    = "Init"
)

// DeviceSubscriber is notified of interface and configuration changes.
type DeviceSubscriber interface {
	// OnInterfaceChanged is called after attributes or commands were added or removed.
	OnInterfaceChanged(d *Device)

	// OnAttributeConfigChanged is called after an attribute configuration change.
	OnAttributeConfigChanged(d *Device, cfg wire.AttributeConfig)
}

// InitHook is run by Init. It may add and remove dynamic resources.
type InitHook func(ctx context.Context, d *Device) error

// Device is a named container of attributes, commands and pipes.
type Device struct {
	mu sync.RWMutex

	name  string
	class string

	state  wire.DevState
	status string

	// Resources indexed by lower-case name; the order slices keep
	// declaration order for interface listings.
	attributes map[string]*Attribute
	attrOrder  []string
	commands   map[string]*Command
	cmdOrder   []string
	pipes      map[string]*Pipe

	initHook     InitHook
	initializing bool
	changed      bool

	subscribers []DeviceSubscriber
}

// NewDevice creates a device with the built-in State/Status attributes and
// State/Status/Init commands.
func NewDevice(name, class string) *Device {
	d := &Device{
		name:       name,
		class:      class,
		state:      wire.StateUnknown,
		attributes: make(map[string]*Attribute),
		commands:   make(map[string]*Command),
		pipes:      make(map[string]*Pipe),
	}

	state := NewAttribute(&AttributeMetadata{Name: AttrState, Type: wire.DataTypeState})
	state.SetReadHook(func(ctx context.Context) (any, wire.Quality, error) {
		return d.State(), wire.QualityValid, nil
	})
	status := NewAttribute(&AttributeMetadata{Name: AttrStatus, Type: wire.DataTypeString})
	status.SetReadHook(func(ctx context.Context) (any, wire.Quality, error) {
		return d.Status(), wire.QualityValid, nil
	})
	d.addAttributeLocked(state)
	d.addAttributeLocked(status)

	d.addCommandLocked(NewCommand(&CommandMetadata{Name: CmdState, OutType: wire.DataTypeState},
		func(ctx context.Context, _ any) (any, error) { return d.State(), nil }))
	d.addCommandLocked(NewCommand(&CommandMetadata{Name: CmdStatus, OutType: wire.DataTypeString},
		func(ctx context.Context, _ any) (any, error) { return d.Status(), nil }))
	d.addCommandLocked(NewCommand(&CommandMetadata{Name: CmdInit},
		func(ctx context.Context, _ any) (any, error) { return nil, d.Init(ctx) }))
	return d
}

// Name returns the device name.
func (d *Device) Name() string {
	return d.name
}

// Class returns the device class name.
func (d *Device) Class() string {
	return d.class
}

// State returns the device state.
func (d *Device) State() wire.DevState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// SetState sets the device state.
func (d *Device) SetState(s wire.DevState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

// Status returns the device status string.
func (d *Device) Status() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.status == "" {
		return "The device is in " + d.state.String() + " state."
	}
	return d.status
}

// SetStatus sets the device status string.
func (d *Device) SetStatus(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = s
}

// SetInitHook sets the hook run by Init.
func (d *Device) SetInitHook(h InitHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initHook = h
}

// Init re-initializes the device. Interface changes made by the hook are
// reported once, after the hook returns.
func (d *Device) Init(ctx context.Context) error {
	d.mu.Lock()
	hook := d.initHook
	d.initializing = true
	d.changed = false
	d.mu.Unlock()

	var err error
	if hook != nil {
		err = hook(ctx, d)
	}

	d.mu.Lock()
	d.initializing = false
	changed := d.changed
	d.changed = false
	d.mu.Unlock()

	if changed {
		d.notifyInterfaceChanged()
	}
	return err
}

// AddAttribute adds an attribute to the device.
func (d *Device) AddAttribute(attr *Attribute) error {
	d.mu.Lock()
	if _, exists := d.attributes[key(attr.Name())]; exists {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateAttribute, attr.Name())
	}
	d.addAttributeLocked(attr)
	d.mu.Unlock()

	d.interfaceMutated()
	return nil
}

func (d *Device) addAttributeLocked(attr *Attribute) {
	k := key(attr.Name())
	d.attributes[k] = attr
	d.attrOrder = append(d.attrOrder, k)
}

// RemoveAttribute removes an attribute by name.
func (d *Device) RemoveAttribute(name string) error {
	k := key(name)
	if k == key(AttrState) || k == key(AttrStatus) {
		return fmt.Errorf("%w: %s", ErrBuiltinResource, name)
	}
	d.mu.Lock()
	if _, exists := d.attributes[k]; !exists {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAttributeNotFound, name)
	}
	delete(d.attributes, k)
	d.attrOrder = without(d.attrOrder, k)
	d.mu.Unlock()

	d.interfaceMutated()
	return nil
}

// GetAttribute returns an attribute by name.
func (d *Device) GetAttribute(name string) (*Attribute, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	attr, exists := d.attributes[key(name)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrAttributeNotFound, name)
	}
	return attr, nil
}

// ReadAttribute reads an attribute by name.
func (d *Device) ReadAttribute(ctx context.Context, name string) (*wire.AttributeValue, error) {
	attr, err := d.GetAttribute(name)
	if err != nil {
		return nil, err
	}
	return attr.Read(ctx)
}

// WriteAttribute writes an attribute by name on behalf of a client.
func (d *Device) WriteAttribute(ctx context.Context, name string, value any) error {
	attr, err := d.GetAttribute(name)
	if err != nil {
		return err
	}
	return attr.Write(ctx, value)
}

// SetAttributeConfig updates an attribute configuration and notifies subscribers.
func (d *Device) SetAttributeConfig(cfg wire.AttributeConfig) error {
	attr, err := d.GetAttribute(cfg.Name)
	if err != nil {
		return err
	}
	if err := attr.applyConfig(cfg); err != nil {
		return err
	}

	applied := attr.Config()
	for _, sub := range d.subscribersSnapshot() {
		sub.OnAttributeConfigChanged(d, applied)
	}
	return nil
}

// AddCommand adds a command to the device.
func (d *Device) AddCommand(cmd *Command) error {
	d.mu.Lock()
	if _, exists := d.commands[key(cmd.Name())]; exists {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, cmd.Name())
	}
	d.addCommandLocked(cmd)
	d.mu.Unlock()

	d.interfaceMutated()
	return nil
}

func (d *Device) addCommandLocked(cmd *Command) {
	k := key(cmd.Name())
	d.commands[k] = cmd
	d.cmdOrder = append(d.cmdOrder, k)
}

// RemoveCommand removes a command by name.
func (d *Device) RemoveCommand(name string) error {
	k := key(name)
	if k == key(CmdState) || k == key(CmdStatus) || k == key(CmdInit) {
		return fmt.Errorf("%w: %s", ErrBuiltinResource, name)
	}
	d.mu.Lock()
	if _, exists := d.commands[k]; !exists {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	delete(d.commands, k)
	d.cmdOrder = without(d.cmdOrder, k)
	d.mu.Unlock()

	d.interfaceMutated()
	return nil
}

// GetCommand returns a command by name.
func (d *Device) GetCommand(name string) (*Command, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cmd, exists := d.commands[key(name)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotFound, name)
	}
	return cmd, nil
}

// InvokeCommand invokes a command by name.
func (d *Device) InvokeCommand(ctx context.Context, name string, arg any) (any, error) {
	cmd, err := d.GetCommand(name)
	if err != nil {
		return nil, err
	}
	return cmd.Invoke(ctx, arg)
}

// AddPipe adds a pipe to the device. Pipes are not part of the interface.
func (d *Device) AddPipe(p *Pipe) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipes[key(p.Name())] = p
}

// ReadPipe reads a pipe by name.
func (d *Device) ReadPipe(ctx context.Context, name string) (*wire.PipeBlob, error) {
	d.mu.RLock()
	p, exists := d.pipes[key(name)]
	d.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPipeNotFound, name)
	}
	return p.Read(ctx)
}

// HasPipe returns true if the device has the named pipe.
func (d *Device) HasPipe(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, exists := d.pipes[key(name)]
	return exists
}

// AttributeNames returns the attribute names in declaration order.
func (d *Device) AttributeNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.attrOrder))
	for _, k := range d.attrOrder {
		names = append(names, d.attributes[k].Name())
	}
	return names
}

// Interface returns the current command and attribute set.
func (d *Device) Interface() *wire.DeviceInterface {
	d.mu.RLock()
	defer d.mu.RUnlock()

	di := &wire.DeviceInterface{
		Commands:   make([]wire.CommandInfo, 0, len(d.cmdOrder)),
		Attributes: make([]wire.AttributeConfig, 0, len(d.attrOrder)),
	}
	for _, k := range d.cmdOrder {
		di.Commands = append(di.Commands, d.commands[k].Info())
	}
	for _, k := range d.attrOrder {
		di.Attributes = append(di.Attributes, d.attributes[k].Config())
	}
	return di
}

// Subscribe adds a subscriber for interface and configuration changes.
func (d *Device) Subscribe(sub DeviceSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers = append(d.subscribers, sub)
}

// Unsubscribe removes a subscriber.
func (d *Device) Unsubscribe(sub DeviceSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, s := range d.subscribers {
		if s == sub {
			d.subscribers = append(d.subscribers[:i], d.subscribers[i+1:]...)
			return
		}
	}
}

func (d *Device) interfaceMutated() {
	d.mu.Lock()
	if d.initializing {
		d.changed = true
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.notifyInterfaceChanged()
}

// notifyInterfaceChanged notifies all subscribers of an interface change.
func (d *Device) notifyInterfaceChanged() {
	for _, sub := range d.subscribersSnapshot() {
		sub.OnInterfaceChanged(d)
	}
}

func (d *Device) subscribersSnapshot() []DeviceSubscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	subs := make([]DeviceSubscriber, len(d.subscribers))
	copy(subs, d.subscribers)
	return subs
}

func key(name string) string {
	return strings.ToLower(name)
}

func sameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

func without(list []string, k string) []string {
	out := list[:0]
	for _, v := range list {
		if v != k {
			out = append(out, v)
		}
	}
	return out
}
