package request

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

const dev = "sys/tg_test/1"

func okReply(id ID, value any) *wire.Reply {
	return &wire.Reply{RequestID: uint32(id), Status: wire.StatusSuccess, Value: value}
}

func TestSubmitAllocatesUniqueIDs(t *testing.T) {
	reg := NewRegistry(Config{})

	seen := make(map[ID]bool)
	for i := 0; i < 100; i++ {
		id := reg.Submit(KindCommand, dev, []string{"State"}, nil)
		if seen[id] {
			t.Fatalf("id %d allocated twice", id)
		}
		seen[id] = true
	}
	if got := reg.PendingCount(ModeAll); got != 100 {
		t.Errorf("PendingCount(ModeAll) = %d, want 100", got)
	}
}

func TestPendingCountByMode(t *testing.T) {
	reg := NewRegistry(Config{})

	reg.Submit(KindCommand, dev, []string{"State"}, nil)
	reg.Submit(KindReadAttribute, dev, []string{"double_scalar"}, nil)
	reg.Submit(KindReadAttribute, dev, []string{"double_scalar"}, &Callbacks{})

	if got := reg.PendingCount(ModePolling); got != 2 {
		t.Errorf("PendingCount(ModePolling) = %d, want 2", got)
	}
	if got := reg.PendingCount(ModeCallback); got != 1 {
		t.Errorf("PendingCount(ModeCallback) = %d, want 1", got)
	}
}

func TestTryCollect(t *testing.T) {
	reg := NewRegistry(Config{})
	id := reg.Submit(KindCommand, dev, []string{"DevDouble"}, nil)

	reply, status, err := reg.TryCollect(id)
	if status != StatusPending || err != nil || reply != nil {
		t.Fatalf("TryCollect() before arrival = %v, %v, %v; want nil, PENDING, nil", reply, status, err)
	}

	reg.MarkArrived(okReply(id, 3.14))

	reply, status, err = reg.TryCollect(id)
	if err != nil {
		t.Fatalf("TryCollect() error = %v", err)
	}
	if status != StatusArrived {
		t.Errorf("status = %v, want ARRIVED", status)
	}
	if reply.Value != 3.14 {
		t.Errorf("Value = %v, want 3.14", reply.Value)
	}

	// Collected requests are gone.
	if _, _, err := reg.TryCollect(id); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("second TryCollect() error = %v, want ErrRequestNotFound", err)
	}
	if reg.PendingCount(ModeAll) != 0 {
		t.Errorf("PendingCount() = %d, want 0", reg.PendingCount(ModeAll))
	}
}

func TestTryCollectDeviceFailure(t *testing.T) {
	reg := NewRegistry(Config{})
	id := reg.Submit(KindReadAttribute, dev, []string{"throw_exception"}, nil)

	df := wire.NewDevFailed("API_Test", "read failed", dev)
	reg.MarkArrived(wire.FailedReply(uint32(id), wire.StatusDevFailed, df))

	_, status, err := reg.TryCollect(id)
	if status != StatusFailed {
		t.Errorf("status = %v, want FAILED", status)
	}
	got, ok := wire.AsDevFailed(err)
	if !ok || got.Reason() != "API_Test" {
		t.Errorf("error = %v, want DevFailed API_Test", err)
	}
	if _, exists := reg.Get(id); exists {
		t.Error("failed request should be removed")
	}
}

func TestCollectTimeoutKeepsRequest(t *testing.T) {
	reg := NewRegistry(Config{})
	id := reg.Submit(KindCommand, dev, []string{"IOSleep"}, nil)

	start := time.Now()
	_, status, err := reg.Collect(context.Background(), id, 100*time.Millisecond)
	elapsed := time.Since(start)

	if status != StatusTimeout || !errors.Is(err, ErrTimeout) {
		t.Fatalf("Collect() = %v, %v; want TIMEOUT, ErrTimeout", status, err)
	}
	if elapsed < 100*time.Millisecond || elapsed > time.Second {
		t.Errorf("Collect() returned after %v, want ~100ms", elapsed)
	}

	// The reply can still arrive and be collected.
	reg.MarkArrived(okReply(id, "done"))
	reply, status, err := reg.TryCollect(id)
	if err != nil || status != StatusArrived || reply.Value != "done" {
		t.Errorf("TryCollect() after timeout = %v, %v, %v", reply, status, err)
	}
}

func TestCollectWaitsForArrival(t *testing.T) {
	reg := NewRegistry(Config{})
	id := reg.Submit(KindCommand, dev, []string{"DevLong"}, nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		reg.MarkArrived(okReply(id, int32(7)))
	}()

	reply, status, err := reg.Collect(context.Background(), id, 0)
	if err != nil || status != StatusArrived {
		t.Fatalf("Collect() = %v, %v", status, err)
	}
	if reply.Value != int32(7) {
		t.Errorf("Value = %v, want 7", reply.Value)
	}
}

func TestCollectContextCancelled(t *testing.T) {
	reg := NewRegistry(Config{})
	id := reg.Submit(KindCommand, dev, []string{"DevLong"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, status, err := reg.Collect(ctx, id, 0)
	if !errors.Is(err, context.DeadlineExceeded) || status != StatusPending {
		t.Errorf("Collect() = %v, %v; want PENDING, DeadlineExceeded", status, err)
	}
}

func TestMarkArrivedUnknownIsLogged(t *testing.T) {
	var buf bytes.Buffer
	reg := NewRegistry(Config{Logger: slog.New(slog.NewTextHandler(&buf, nil))})

	reg.MarkArrived(okReply(42, nil))

	if !strings.Contains(buf.String(), "unknown request") {
		t.Errorf("log = %q, want unknown request warning", buf.String())
	}
}

func TestMarkArrivedTwice(t *testing.T) {
	reg := NewRegistry(Config{})
	id := reg.Submit(KindCommand, dev, nil, nil)

	reg.MarkArrived(okReply(id, 1))
	reg.MarkArrived(okReply(id, 2))

	reply, _, err := reg.TryCollect(id)
	if err != nil {
		t.Fatalf("TryCollect() error = %v", err)
	}
	if reply.Value != 1 {
		t.Errorf("Value = %v, want first reply", reply.Value)
	}
}

func TestMarkFailed(t *testing.T) {
	reg := NewRegistry(Config{})
	id := reg.Submit(KindWriteAttribute, dev, []string{"double_scalar"}, nil)

	reg.MarkFailed(id, wire.StatusDeviceUnreachable, errors.New("connection refused"))

	reply, status, err := reg.TryCollect(id)
	if status != StatusFailed || err == nil {
		t.Fatalf("TryCollect() = %v, %v; want FAILED with error", status, err)
	}
	if reply.Status != wire.StatusDeviceUnreachable {
		t.Errorf("reply status = %v, want DEVICE_UNREACHABLE", reply.Status)
	}
}

func TestCancel(t *testing.T) {
	reg := NewRegistry(Config{})
	reg.Submit(KindCommand, "a/b/c", nil, nil)
	reg.Submit(KindCommand, "A/B/C", nil, nil)
	reg.Submit(KindCommand, "x/y/z", nil, nil)

	if n := reg.Cancel("a/b/c"); n != 2 {
		t.Errorf("Cancel() = %d, want 2", n)
	}
	if n := reg.PendingCount(ModeAll); n != 1 {
		t.Errorf("PendingCount() = %d, want 1", n)
	}
}

func TestCancelReleasesWaiters(t *testing.T) {
	reg := NewRegistry(Config{})
	fired := make(chan struct{}, 1)
	reg.Submit(KindReadAttribute, "a/b/c", []string{"x"}, &Callbacks{
		AttrRead: func(*Result) { fired <- struct{}{} },
	})
	pid := reg.Submit(KindCommand, "a/b/c", []string{"State"}, nil)

	collected := make(chan error, 1)
	go func() {
		_, _, err := reg.Collect(context.Background(), pid, 0)
		collected <- err
	}()
	replied := make(chan error, 1)
	go func() {
		replied <- NewCollector(reg, "a/b/c").GetAsynchReplies(context.Background(), 0)
	}()

	time.Sleep(20 * time.Millisecond)
	if n := reg.Cancel("a/b/c"); n != 2 {
		t.Fatalf("Cancel() = %d, want 2", n)
	}

	select {
	case err := <-collected:
		if !errors.Is(err, ErrRequestNotFound) {
			t.Errorf("Collect() error = %v, want ErrRequestNotFound", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Collect() still blocked after Cancel")
	}
	select {
	case err := <-replied:
		if err != nil {
			t.Errorf("GetAsynchReplies() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("GetAsynchReplies() still blocked after Cancel")
	}
	select {
	case <-fired:
		t.Error("callback fired for a cancelled request")
	default:
	}
}

func TestDiscard(t *testing.T) {
	reg := NewRegistry(Config{})
	id := reg.Submit(KindReadAttribute, "a/b/c", []string{"x"}, &Callbacks{})

	if !reg.Discard(id) {
		t.Fatal("Discard() = false for a registered request")
	}
	if reg.Discard(id) {
		t.Error("second Discard() = true")
	}
	if _, status, err := reg.TryCollect(id); status != StatusFailed || !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("TryCollect() = %v, %v; want failed, ErrRequestNotFound", status, err)
	}
}
