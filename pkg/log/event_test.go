package log

import (
	"testing"
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

func TestDirectionString(t *testing.T) {
	tests := []struct {
		dir  Direction
		want string
	}{
		{DirectionIn, "IN"},
		{DirectionOut, "OUT"},
		{Direction(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.dir.String()
		if got != tt.want {
			t.Errorf("Direction(%d).String() = %q, want %q", tt.dir, got, tt.want)
		}
	}
}

func TestLayerString(t *testing.T) {
	tests := []struct {
		layer Layer
		want  string
	}{
		{LayerTransport, "TRANSPORT"},
		{LayerRequest, "REQUEST"},
		{LayerEvent, "EVENT"},
		{LayerServer, "SERVER"},
		{Layer(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.layer.String()
		if got != tt.want {
			t.Errorf("Layer(%d).String() = %q, want %q", tt.layer, got, tt.want)
		}
	}
}

func TestCategoryString(t *testing.T) {
	tests := []struct {
		cat  Category
		want string
	}{
		{CategoryMessage, "MESSAGE"},
		{CategorySubscription, "SUBSCRIPTION"},
		{CategoryState, "STATE"},
		{CategoryError, "ERROR"},
		{Category(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		got := tt.cat.String()
		if got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.cat, got, tt.want)
		}
	}
}

func TestSubscriptionActionString(t *testing.T) {
	if got := SubscriptionRetrying.String(); got != "RETRYING" {
		t.Errorf("SubscriptionRetrying.String() = %q", got)
	}
	if got := SubscriptionAction(42).String(); got != "UNKNOWN" {
		t.Errorf("SubscriptionAction(42).String() = %q", got)
	}
}

func TestEventEncodeDecode(t *testing.T) {
	op := wire.OpReadAttribute
	status := wire.StatusDevFailed
	took := 12 * time.Millisecond
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

	in := Event{
		Timestamp: ts,
		SessionID: "session-1",
		Direction: DirectionIn,
		Layer:     LayerRequest,
		Category:  CategoryMessage,
		Device:    "sys/tg_test/1",
		Message: &MessageEvent{
			Type:           MessageTypeReply,
			RequestID:      9,
			Operation:      &op,
			Name:           "double_scalar",
			Status:         &status,
			Callback:       true,
			ProcessingTime: &took,
		},
	}

	data, err := EncodeEvent(in)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	out, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if !out.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", out.Timestamp, ts)
	}
	if out.Message == nil || out.Message.RequestID != 9 || *out.Message.Status != status {
		t.Fatalf("Message = %+v", out.Message)
	}
	if *out.Message.ProcessingTime != took {
		t.Errorf("ProcessingTime = %v, want %v", *out.Message.ProcessingTime, took)
	}
	if out.Subscription != nil || out.Error != nil {
		t.Error("unexpected payload variants set")
	}
}
