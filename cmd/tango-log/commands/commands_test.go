package commands

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/wire"
)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tlog")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func sampleEvents() []log.Event {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	op := wire.OpReadAttributes
	status := wire.StatusSuccess
	took := 1500 * time.Microsecond
	return []log.Event{
		{
			Timestamp: ts, SessionID: "c0ffee00-1111", Direction: log.DirectionOut,
			Layer: log.LayerTransport, Category: log.CategoryMessage, Device: "sys/tg_test/1",
			Message: &log.MessageEvent{Type: log.MessageTypeRequest, RequestID: 7, Operation: &op, Name: "double_scalar"},
		},
		{
			Timestamp: ts.Add(took), SessionID: "c0ffee00-1111", Direction: log.DirectionIn,
			Layer: log.LayerRequest, Category: log.CategoryMessage, Device: "sys/tg_test/1",
			Message: &log.MessageEvent{Type: log.MessageTypeReply, RequestID: 7, Status: &status, ProcessingTime: &took},
		},
		{
			Timestamp: ts.Add(time.Second), SessionID: "c0ffee00-1111",
			Layer: log.LayerEvent, Category: log.CategorySubscription, Device: "sys/tg_test/1",
			Subscription: &log.SubscriptionEvent{Action: log.SubscriptionAdded, SubscriptionID: 3, Name: "double_scalar", Kind: wire.EventChange},
		},
		{
			Timestamp: ts.Add(2 * time.Second), SessionID: "deadbeef-2222", LocalRole: log.RoleServer,
			Layer: log.LayerServer, Category: log.CategoryError, Device: "sys/tg_test/2",
			Error: &log.ErrorEventData{Layer: log.LayerServer, Message: "read failed", Reason: wire.ReasonAttrNotFound},
		},
	}
}

func TestRunView(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunView(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"2026-03-02T09:30:00.000000Z [c0ffee00] CLIENT OUT TRANSPORT REQUEST sys/tg_test/1",
		"RequestID: 7",
		"Name: double_scalar",
		"Duration: 1.500ms",
		"ADDED #3",
		"Reason: API_AttrNotFound",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}

func TestRunViewFiltered(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	filter, err := FilterFlags{Device: "SYS/TG_TEST/2"}.Build()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := RunView(path, filter, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()
	if strings.Contains(output, "sys/tg_test/1") {
		t.Error("filtered view contains another device")
	}
	if !strings.Contains(output, "read failed") {
		t.Error("filtered view misses the matching event")
	}
}

func TestFilterFlagsBuild(t *testing.T) {
	tests := []struct {
		name    string
		flags   FilterFlags
		wantErr bool
	}{
		{"empty", FilterFlags{}, false},
		{"all", FilterFlags{Layer: "Event", Direction: "in", Category: "subscription", TimeStart: "2026-03-02T09:00:00Z"}, false},
		{"bad layer", FilterFlags{Layer: "wire"}, true},
		{"bad direction", FilterFlags{Direction: "sideways"}, true},
		{"bad category", FilterFlags{Category: "control"}, true},
		{"bad time", FilterFlags{TimeEnd: "yesterday"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.flags.Build()
			if (err != nil) != tt.wantErr {
				t.Errorf("Build() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := export(path, log.Filter{}, "jsonl", &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	var first log.Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if first.Device != "sys/tg_test/1" || first.Message == nil || first.Message.RequestID != 7 {
		t.Errorf("unexpected first event: %+v", first)
	}
}

func TestExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	cat := log.CategoryMessage
	var buf bytes.Buffer
	if err := export(path, log.Filter{Category: &cat}, "csv", &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp,session_id") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[2], "REPLY,7,") {
		t.Errorf("unexpected reply row: %s", lines[2])
	}

	if err := export(path, log.Filter{}, "xml", &buf); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, log.Filter{}, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 4",
		"TRANSPORT:",
		"SUBSCRIPTION:",
		"Sessions: 2",
		"Requests: 1  Replies: 1  Events: 0",
		"Mean reply time: 1.500ms",
		"[sys/tg_test/2]",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
}
