package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

func logJSON(t *testing.T, event Event) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	NewSlogAdapter(slog.New(handler)).Log(event)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterLogsMessageEvent(t *testing.T) {
	op := wire.OpCommand
	entry := logJSON(t, Event{
		Timestamp: time.Now(),
		SessionID: "s-123",
		Direction: DirectionOut,
		Layer:     LayerRequest,
		Category:  CategoryMessage,
		Device:    "sys/tg_test/1",
		Message:   &MessageEvent{Type: MessageTypeRequest, RequestID: 5, Operation: &op, Name: "IOSleep", Callback: true},
	})

	checks := map[string]any{
		"msg":        "protocol",
		"session_id": "s-123",
		"direction":  "OUT",
		"layer":      "REQUEST",
		"device":     "sys/tg_test/1",
		"msg_type":   "REQUEST",
		"request_id": float64(5),
		"operation":  "Command",
		"name":       "IOSleep",
		"callback":   true,
	}
	for k, want := range checks {
		if entry[k] != want {
			t.Errorf("%s: got %v, want %v", k, entry[k], want)
		}
	}
}

func TestSlogAdapterLogsSubscriptionEvent(t *testing.T) {
	entry := logJSON(t, Event{
		Category:     CategorySubscription,
		Layer:        LayerEvent,
		Subscription: &SubscriptionEvent{Action: SubscriptionAdded, SubscriptionID: 3, Name: "double_scalar", Kind: wire.EventChange},
	})
	if entry["action"] != "ADDED" || entry["kind"] != "change" || entry["subscription_id"] != float64(3) {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestSlogAdapterLogsErrorEvent(t *testing.T) {
	entry := logJSON(t, Event{
		Category: CategoryError,
		Error:    &ErrorEventData{Layer: LayerRequest, Message: "unknown request id", Reason: "API_Unknown", Context: "mark arrived"},
	})
	if entry["error_msg"] != "unknown request id" || entry["error_reason"] != "API_Unknown" {
		t.Errorf("unexpected entry: %v", entry)
	}
}
