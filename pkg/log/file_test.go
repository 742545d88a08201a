package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.tlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestFileLoggerWritesCBOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.tlog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Log(Event{
		Timestamp: time.Now(),
		SessionID: "s-123",
		Category:  CategoryError,
		Error:     &ErrorEventData{Layer: LayerEvent, Message: "push to vanished subscription"},
	})
	logger.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	event, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if event.Error == nil || event.Error.Message != "push to vanished subscription" {
		t.Errorf("Error = %+v", event.Error)
	}
}

func TestFileLoggerWritesTaggedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.tlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		logger.Log(Event{Timestamp: time.Now(), Layer: LayerRequest})
	}
	if got := logger.Written(); got != 3 {
		t.Errorf("Written() = %d, want 3", got)
	}
	if got := logger.Dropped(); got != 0 {
		t.Errorf("Dropped() = %d, want 0", got)
	}
	logger.Close()
	logger.Log(Event{Timestamp: time.Now()})
	if got := logger.Written(); got != 3 {
		t.Errorf("Written() after Close = %d, want 3", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	// Major type 6 with a two-byte tag number.
	if len(data) < 3 || data[0] != 0xd9 || data[1] != RecordTag>>8 || data[2] != RecordTag&0xff {
		t.Fatalf("record does not start with tag %#x: % x", RecordTag, data)
	}
}

func TestDecodeEventRejectsUntagged(t *testing.T) {
	untagged, err := cbor.Marshal(map[string]any{"SessionID": "s-1"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := DecodeEvent(untagged); err == nil {
		t.Error("DecodeEvent accepted an untagged record")
	}
}

func TestFileLoggerCloseIsIdempotent(t *testing.T) {
	logger, err := NewFileLogger(filepath.Join(t.TempDir(), "test.tlog"))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	// Log after close is ignored
	logger.Log(Event{Timestamp: time.Now()})
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.tlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				logger.Log(Event{Timestamp: time.Now(), Category: CategoryMessage, Message: &MessageEvent{RequestID: uint32(j + 1)}})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()
	count := 0
	for {
		if _, err := reader.Next(); err != nil {
			break
		}
		count++
	}
	if count != 200 {
		t.Errorf("read %d events, want 200", count)
	}
}
