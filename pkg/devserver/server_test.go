package devserver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/tango-controls/tango-go/pkg/model"
	"github.com/tango-controls/tango-go/pkg/wire"
)

const testDev = "sys/tg_test/1"

var nextRequestID atomic.Uint32

func newRequest(op wire.Operation, device string, names ...string) *wire.Request {
	return &wire.Request{
		RequestID: nextRequestID.Add(1),
		Operation: op,
		Device:    device,
		Names:     names,
		Client:    "client-1",
	}
}

// recorder is a Publisher keeping every published event.
type recorder struct {
	mu   sync.Mutex
	msgs []*wire.EventMessage
}

func (r *recorder) Publish(msg *wire.EventMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) of(kind wire.EventKind) []*wire.EventMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*wire.EventMessage
	for _, m := range r.msgs {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func newTestServer(t *testing.T, cfg Config) (*Server, *TestDevice, *recorder) {
	t.Helper()
	s := NewServer(cfg)
	rec := &recorder{}
	s.SetPublisher(rec)
	td, err := s.AddTestDevice(testDev)
	if err != nil {
		t.Fatalf("AddTestDevice: %v", err)
	}
	t.Cleanup(s.Close)
	return s, td, rec
}

func TestServerCommands(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	t.Run("Echo", func(t *testing.T) {
		req := newRequest(wire.OpCommand, testDev, CmdDevDouble)
		req.Args = 3.5
		reply := s.HandleRequest(ctx, req)

		if reply.RequestID != req.RequestID {
			t.Errorf("expected requestId %d, got %d", req.RequestID, reply.RequestID)
		}
		if !reply.IsSuccess() {
			t.Fatalf("expected success, got %s", reply.Status)
		}
		if reply.Value != 3.5 {
			t.Errorf("expected 3.5, got %v", reply.Value)
		}
	})

	t.Run("DeviceFailure", func(t *testing.T) {
		req := newRequest(wire.OpCommand, testDev, CmdIOThrow)
		req.Args = "boom"
		reply := s.HandleRequest(ctx, req)

		if reply.Status != wire.StatusDevFailed {
			t.Fatalf("expected DEV_FAILED, got %s", reply.Status)
		}
		df, ok := wire.AsDevFailed(reply.Err())
		if !ok {
			t.Fatalf("expected DevFailed, got %v", reply.Err())
		}
		if df.Reason() != ReasonTestFailure {
			t.Errorf("expected reason %s, got %s", ReasonTestFailure, df.Reason())
		}
	})

	t.Run("UnknownCommand", func(t *testing.T) {
		reply := s.HandleRequest(ctx, newRequest(wire.OpCommand, testDev, "NoSuchCommand"))
		if reply.Status != wire.StatusCommandNotFound {
			t.Errorf("expected COMMAND_NOT_FOUND, got %s", reply.Status)
		}
	})

	t.Run("UnknownDevice", func(t *testing.T) {
		reply := s.HandleRequest(ctx, newRequest(wire.OpPing, "sys/none/1"))
		if reply.Status != wire.StatusDeviceNotFound {
			t.Errorf("expected DEVICE_NOT_FOUND, got %s", reply.Status)
		}
	})

	t.Run("InvalidRequest", func(t *testing.T) {
		req := newRequest(wire.OpCommand, testDev, CmdDevVoid)
		req.RequestID = 0
		reply := s.HandleRequest(ctx, req)
		if reply.Status != wire.StatusInvalidArgument {
			t.Errorf("expected INVALID_ARGUMENT, got %s", reply.Status)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		reply := s.HandleRequest(ctx, newRequest(wire.OpPing, testDev))
		if !reply.IsSuccess() {
			t.Errorf("expected success, got %s", reply.Status)
		}
		if reply.Value != s.AdminName() {
			t.Errorf("expected admin name %s, got %v", s.AdminName(), reply.Value)
		}
	})
}

func TestServerAttributes(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	t.Run("WriteThenRead", func(t *testing.T) {
		w := newRequest(wire.OpWriteAttribute, testDev, AttrDoubleScalar)
		w.Values = []wire.AttributeValue{{Name: AttrDoubleScalar, Value: 2.5}}
		if reply := s.HandleRequest(ctx, w); !reply.IsSuccess() {
			t.Fatalf("write failed: %v", reply.Err())
		}

		reply := s.HandleRequest(ctx, newRequest(wire.OpReadAttribute, testDev, AttrDoubleScalar))
		if !reply.IsSuccess() || len(reply.Attributes) != 1 {
			t.Fatalf("unexpected reply: %+v", reply)
		}
		if reply.Attributes[0].Value != 2.5 {
			t.Errorf("expected 2.5, got %v", reply.Attributes[0].Value)
		}
	})

	t.Run("ReadManyKeepsPerAttributeErrors", func(t *testing.T) {
		reply := s.HandleRequest(ctx, newRequest(wire.OpReadAttributes, testDev, AttrLongScalar, "missing"))
		if !reply.IsSuccess() {
			t.Fatalf("expected success, got %s", reply.Status)
		}
		if len(reply.Attributes) != 2 {
			t.Fatalf("expected 2 readings, got %d", len(reply.Attributes))
		}
		if reply.Attributes[0].Err() != nil {
			t.Errorf("unexpected error on %s: %v", AttrLongScalar, reply.Attributes[0].Err())
		}
		if len(reply.Attributes[1].Errors) == 0 || reply.Attributes[1].Errors[0].Reason != wire.ReasonAttrNotFound {
			t.Errorf("expected %s on missing attribute, got %+v", wire.ReasonAttrNotFound, reply.Attributes[1].Errors)
		}
	})

	t.Run("ReadOnly", func(t *testing.T) {
		w := newRequest(wire.OpWriteAttribute, testDev, AttrDataReady)
		w.Values = []wire.AttributeValue{{Name: AttrDataReady, Value: int64(1)}}
		if reply := s.HandleRequest(ctx, w); reply.Status != wire.StatusNotWritable {
			t.Errorf("expected NOT_WRITABLE, got %s", reply.Status)
		}
	})

	t.Run("WriteManyReportsFirstFailure", func(t *testing.T) {
		w := newRequest(wire.OpWriteAttributes, testDev, AttrLongScalar, AttrDoubleScalar)
		w.Values = []wire.AttributeValue{
			{Name: AttrLongScalar, Value: int64(7)},
			{Name: AttrDoubleScalar, Value: "not a number"},
		}
		reply := s.HandleRequest(ctx, w)
		if reply.Status != wire.StatusInvalidArgument {
			t.Fatalf("expected INVALID_ARGUMENT, got %s", reply.Status)
		}
		if len(reply.Attributes) != 2 || reply.Attributes[0].Err() != nil || reply.Attributes[1].Err() == nil {
			t.Errorf("unexpected per-attribute results: %+v", reply.Attributes)
		}
		dev, _ := s.Device(testDev)
		attr, _ := dev.GetAttribute(AttrLongScalar)
		if attr.Value() != int64(7) {
			t.Errorf("expected first write to be applied, got %v", attr.Value())
		}
	})

	t.Run("FailingRead", func(t *testing.T) {
		on := newRequest(wire.OpCommand, testDev, CmdIOAttrThrowEx)
		on.Args = true
		s.HandleRequest(ctx, on)

		reply := s.HandleRequest(ctx, newRequest(wire.OpReadAttribute, testDev, AttrEventChange))
		if reply.Status != wire.StatusDevFailed {
			t.Errorf("expected DEV_FAILED, got %s", reply.Status)
		}

		off := newRequest(wire.OpCommand, testDev, CmdIOAttrThrowEx)
		off.Args = false
		s.HandleRequest(ctx, off)
		if reply := s.HandleRequest(ctx, newRequest(wire.OpReadAttribute, testDev, AttrEventChange)); !reply.IsSuccess() {
			t.Errorf("expected success after switching failure off, got %v", reply.Err())
		}
	})
}

func TestServerOffline(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	sub := newRequest(wire.OpSubscribe, testDev, AttrDoubleScalar)
	sub.Kind = wire.EventAttrConf
	if reply := s.HandleRequest(ctx, sub); !reply.IsSuccess() {
		t.Fatalf("subscribe failed: %v", reply.Err())
	}

	s.SetOnline(false)
	reply := s.HandleRequest(ctx, newRequest(wire.OpPing, testDev))
	if reply.Status != wire.StatusDeviceUnreachable {
		t.Errorf("expected DEVICE_UNREACHABLE, got %s", reply.Status)
	}
	if len(reply.Errors) == 0 || reply.Errors[0].Reason != wire.ReasonCantConnect {
		t.Errorf("expected %s, got %+v", wire.ReasonCantConnect, reply.Errors)
	}

	s.SetOnline(true)
	if n := s.Interest(testDev, AttrDoubleScalar, wire.EventAttrConf); n != 0 {
		t.Errorf("expected subscriptions to be dropped, got %d", n)
	}
}

func TestServerDevices(t *testing.T) {
	s, _, _ := newTestServer(t, Config{Instance: "Unit"})

	if s.AdminName() != "dserver/unit" {
		t.Errorf("expected dserver/unit, got %s", s.AdminName())
	}
	if err := s.AddDevice(model.NewDevice(testDev, "Other")); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("expected ErrDeviceExists, got %v", err)
	}
	if err := s.AddDevice(model.NewDevice("dserver/other", "Other")); !errors.Is(err, ErrDeviceExists) {
		t.Errorf("expected admin names to be reserved, got %v", err)
	}

	if err := s.AddDevice(model.NewDevice("sys/other/1", "Other")); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	got := s.Devices()
	if len(got) != 2 || got[0] != testDev || got[1] != "sys/other/1" {
		t.Errorf("unexpected devices %v", got)
	}

	if err := s.RemoveDevice("SYS/OTHER/1"); err != nil {
		t.Errorf("RemoveDevice: %v", err)
	}
	if err := s.RemoveDevice(s.AdminName()); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("expected the admin device to stay, got %v", err)
	}
	if _, ok := s.Device("sys/other/1"); ok {
		t.Error("expected device to be removed")
	}
}

func TestFailureMapping(t *testing.T) {
	tests := []struct {
		err    error
		status wire.Status
		reason string
	}{
		{model.ErrAttributeNotFound, wire.StatusAttributeNotFound, wire.ReasonAttrNotFound},
		{model.ErrCommandNotFound, wire.StatusCommandNotFound, wire.ReasonCommandNotFound},
		{model.ErrAttributeNotWritable, wire.StatusNotWritable, wire.ReasonNotWritable},
		{model.ErrAttributeOutOfRange, wire.StatusInvalidArgument, wire.ReasonIncompatibleArg},
		{context.DeadlineExceeded, wire.StatusTimeout, wire.ReasonDeviceTimedOut},
		{errors.New("anything"), wire.StatusDevFailed, "API_DeviceError"},
		{wire.NewDevFailed("MY_Reason", "raised", "dev"), wire.StatusDevFailed, "MY_Reason"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			df := failure(tt.err, testDev)
			if df.Status != tt.status {
				t.Errorf("expected status %s, got %s", tt.status, df.Status)
			}
			if df.Reason() != tt.reason {
				t.Errorf("expected reason %s, got %s", tt.reason, df.Reason())
			}
		})
	}
}
