package devserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tango-controls/tango-go/pkg/model"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// TestDeviceClass is the class of simulated test devices.
const TestDeviceClass = "TangoTest"

// Test device attribute, command and pipe names.
const (
	AttrDoubleScalar   = "double_scalar"
	AttrLongScalar     = "long_scalar"
	AttrStringScalar   = "string_scalar"
	AttrBooleanScalar  = "boolean_scalar"
	AttrDoubleSpectrum = "double_spectrum"
	AttrEventChange    = "event_change_tst"
	AttrDataReady      = "data_ready_tst"

	CmdDevVoid           = "DevVoid"
	CmdDevDouble         = "DevDouble"
	CmdDevString         = "DevString"
	CmdIOSleep           = "IOSleep"
	CmdIOThrow           = "IOThrow"
	CmdIOAttrThrowEx     = "IOAttrThrowEx"
	CmdIOIncValue        = "IOIncValue"
	CmdIODecValue        = "IODecValue"
	CmdIOPushEvent       = "IOPushEvent"
	CmdIOPushDataReady   = "IOPushDataReady"
	CmdIOPushPipe        = "IOPushPipe"
	CmdIOAddAttribute    = "IOAddAttribute"
	CmdIORemoveAttribute = "IORemoveAttribute"

	PipeTest = "test_pipe"

	// ReasonTestFailure is the reason of failures raised by the test device.
	ReasonTestFailure = "TEST_Failure"
)

// TestDevice is a simulated device with scalar and spectrum attributes, an
// attribute whose reading can be switched to fail, a slow command, a
// data-ready counter and a pipe. Commands that push events need the device
// to be hosted with Server.AddTestDevice.
type TestDevice struct {
	*model.Device

	mu        sync.Mutex
	server    *Server
	failing   bool
	readyCtr  int64
	pipeCtr   int64
	dynamic   []string
	eventAttr *model.Attribute
}

// NewTestDevice creates a test device.
func NewTestDevice(name string) *TestDevice {
	t := &TestDevice{Device: model.NewDevice(name, TestDeviceClass)}
	t.SetState(wire.StateOn)

	attrs := []*model.AttributeMetadata{
		{Name: AttrDoubleScalar, Type: wire.DataTypeFloat64, Access: model.AccessReadWrite, Default: 0.0},
		{Name: AttrLongScalar, Type: wire.DataTypeInt64, Access: model.AccessReadWrite, Default: int64(0)},
		{Name: AttrStringScalar, Type: wire.DataTypeString, Access: model.AccessReadWrite, Default: ""},
		{Name: AttrBooleanScalar, Type: wire.DataTypeBool, Access: model.AccessReadWrite, Default: false},
		{
			Name: AttrDoubleSpectrum, Type: wire.DataTypeFloat64, Format: wire.FormatSpectrum,
			Access: model.AccessReadWrite, MaxDimX: 4096, Default: []float64{},
		},
		{Name: AttrDataReady, Type: wire.DataTypeInt64, Default: int64(0)},
	}
	for _, meta := range attrs {
		_ = t.AddAttribute(model.NewAttribute(meta))
	}

	t.eventAttr = model.NewAttribute(&model.AttributeMetadata{
		Name: AttrEventChange, Type: wire.DataTypeFloat64, Access: model.AccessReadWrite, Default: 0.0,
	})
	t.eventAttr.SetReadHook(t.readEventAttr)
	_ = t.AddAttribute(t.eventAttr)

	cmds := []struct {
		name    string
		in, out wire.DataType
		handler model.CommandHandler
	}{
		{CmdDevVoid, wire.DataTypeVoid, wire.DataTypeVoid, func(context.Context, any) (any, error) { return nil, nil }},
		{CmdDevDouble, wire.DataTypeFloat64, wire.DataTypeFloat64, echo},
		{CmdDevString, wire.DataTypeString, wire.DataTypeString, echo},
		{CmdIOSleep, wire.DataTypeInt64, wire.DataTypeVoid, t.ioSleep},
		{CmdIOThrow, wire.DataTypeString, wire.DataTypeVoid, t.ioThrow},
		{CmdIOAttrThrowEx, wire.DataTypeBool, wire.DataTypeVoid, t.ioAttrThrowEx},
		{CmdIOIncValue, wire.DataTypeVoid, wire.DataTypeVoid, t.step(1)},
		{CmdIODecValue, wire.DataTypeVoid, wire.DataTypeVoid, t.step(-1)},
		{CmdIOPushEvent, wire.DataTypeVoid, wire.DataTypeVoid, t.ioPushEvent},
		{CmdIOPushDataReady, wire.DataTypeVoid, wire.DataTypeInt64, t.ioPushDataReady},
		{CmdIOPushPipe, wire.DataTypeVoid, wire.DataTypeVoid, t.ioPushPipe},
		{CmdIOAddAttribute, wire.DataTypeString, wire.DataTypeVoid, t.ioAddAttribute},
		{CmdIORemoveAttribute, wire.DataTypeString, wire.DataTypeVoid, t.ioRemoveAttribute},
	}
	for _, c := range cmds {
		_ = t.AddCommand(model.NewCommand(&model.CommandMetadata{Name: c.name, InType: c.in, OutType: c.out}, c.handler))
	}

	t.AddPipe(model.NewPipe(PipeTest, t.readPipe))
	t.SetInitHook(t.init)
	return t
}

// AddTestDevice creates a test device and starts serving it.
func (s *Server) AddTestDevice(name string) (*TestDevice, error) {
	t := NewTestDevice(name)
	t.mu.Lock()
	t.server = s
	t.mu.Unlock()
	if err := s.AddDevice(t.Device); err != nil {
		return nil, err
	}
	return t, nil
}

// SetFailing switches the reading of event_change_tst to fail.
func (t *TestDevice) SetFailing(failing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failing = failing
}

// init drops the dynamic attributes and clears the failure switch.
func (t *TestDevice) init(ctx context.Context, d *model.Device) error {
	t.mu.Lock()
	dynamic := t.dynamic
	t.dynamic = nil
	t.failing = false
	t.mu.Unlock()

	for _, name := range dynamic {
		_ = d.RemoveAttribute(name)
	}
	d.SetState(wire.StateOn)
	return nil
}

func (t *TestDevice) readEventAttr(ctx context.Context) (any, wire.Quality, error) {
	t.mu.Lock()
	failing := t.failing
	t.mu.Unlock()
	if failing {
		return nil, wire.QualityInvalid, wire.NewDevFailed(ReasonTestFailure,
			"reading "+AttrEventChange+" failed on request", t.Name())
	}
	return t.eventAttr.Value(), t.eventAttr.Quality(), nil
}

func (t *TestDevice) readPipe(ctx context.Context) (*wire.PipeBlob, error) {
	t.mu.Lock()
	ctr := t.pipeCtr
	t.mu.Unlock()
	return &wire.PipeBlob{
		Name: PipeTest,
		Elements: []wire.PipeElement{
			{Name: "counter", Value: ctr},
			{Name: "state", Value: t.State().String()},
		},
	}, nil
}

func echo(ctx context.Context, arg any) (any, error) {
	return arg, nil
}

func (t *TestDevice) ioSleep(ctx context.Context, arg any) (any, error) {
	ms, err := wire.As[int64](arg)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *TestDevice) ioThrow(ctx context.Context, arg any) (any, error) {
	desc, err := wire.As[string](arg)
	if err != nil {
		return nil, err
	}
	return nil, wire.NewDevFailed(ReasonTestFailure, desc, t.Name())
}

func (t *TestDevice) ioAttrThrowEx(ctx context.Context, arg any) (any, error) {
	on, err := wire.As[bool](arg)
	if err != nil {
		return nil, err
	}
	t.SetFailing(on)
	return nil, nil
}

func (t *TestDevice) step(delta float64) model.CommandHandler {
	return func(ctx context.Context, _ any) (any, error) {
		v, _ := wire.ToFloat64(t.eventAttr.Value())
		return nil, t.eventAttr.SetValue(v + delta)
	}
}

func (t *TestDevice) hostingServer() (*Server, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server == nil {
		return nil, wire.NewDevFailed(ReasonTestFailure, "device is not hosted by a server", t.Name())
	}
	return t.server, nil
}

func (t *TestDevice) ioPushEvent(ctx context.Context, _ any) (any, error) {
	s, err := t.hostingServer()
	if err != nil {
		return nil, err
	}
	av, err := t.ReadAttribute(ctx, AttrEventChange)
	if err != nil {
		return nil, s.PushErrorEvent(t.Name(), AttrEventChange, wire.EventUser, err)
	}
	return nil, s.PushUserEvent(t.Name(), *av)
}

func (t *TestDevice) ioPushDataReady(ctx context.Context, _ any) (any, error) {
	s, err := t.hostingServer()
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.readyCtr++
	ctr := t.readyCtr
	t.mu.Unlock()

	attr, err := t.GetAttribute(AttrDataReady)
	if err != nil {
		return nil, err
	}
	if err := attr.SetValue(ctr); err != nil {
		return nil, err
	}
	return ctr, s.PushDataReadyEvent(t.Name(), AttrDataReady, ctr)
}

func (t *TestDevice) ioPushPipe(ctx context.Context, _ any) (any, error) {
	s, err := t.hostingServer()
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.pipeCtr++
	t.mu.Unlock()

	blob, err := t.ReadPipe(ctx, PipeTest)
	if err != nil {
		return nil, err
	}
	return nil, s.PushPipeEvent(t.Name(), blob)
}

func (t *TestDevice) ioAddAttribute(ctx context.Context, arg any) (any, error) {
	name, err := wire.As[string](arg)
	if err != nil {
		return nil, err
	}
	attr := model.NewAttribute(&model.AttributeMetadata{
		Name: name, Type: wire.DataTypeFloat64, Access: model.AccessReadWrite, Default: 0.0,
	})
	if err := t.AddAttribute(attr); err != nil {
		return nil, fmt.Errorf("adding %s: %w", name, err)
	}
	t.mu.Lock()
	t.dynamic = append(t.dynamic, name)
	t.mu.Unlock()
	return nil, nil
}

func (t *TestDevice) ioRemoveAttribute(ctx context.Context, arg any) (any, error) {
	name, err := wire.As[string](arg)
	if err != nil {
		return nil, err
	}
	if err := t.RemoveAttribute(name); err != nil {
		return nil, err
	}
	t.mu.Lock()
	for i, n := range t.dynamic {
		if wire.NormalizeName(n) == wire.NormalizeName(name) {
			t.dynamic = append(t.dynamic[:i], t.dynamic[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
	return nil, nil
}
