package log

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
)

// RecordTag is the CBOR tag wrapping every Event in a protocol log file
// ("TG"). A stream of tagged records is a .tlog file.
const RecordTag = 0x5447

var encMode, decMode = recordModes()

// recordModes builds the codec for .tlog records: canonical maps,
// nanosecond RFC 3339 timestamps, and the record tag required both ways.
func recordModes() (cbor.EncMode, cbor.DecMode) {
	tags := cbor.NewTagSet()
	opts := cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired}
	if err := tags.Add(opts, reflect.TypeOf(Event{}), RecordTag); err != nil {
		panic(fmt.Sprintf("log: registering record tag: %v", err))
	}

	enc, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("log: record encoder: %v", err))
	}
	dec, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}.DecModeWithTags(tags)
	if err != nil {
		panic(fmt.Sprintf("log: record decoder: %v", err))
	}
	return enc, dec
}

// EncodeEvent encodes one tagged record.
func EncodeEvent(event Event) ([]byte, error) {
	return encMode.Marshal(event)
}

// DecodeEvent decodes one tagged record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := decMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// NewDecoder returns a record stream decoder over r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// FileLogger appends records to a .tlog file. It is safe for concurrent use.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	enc     *cbor.Encoder
	closed  bool
	written atomic.Uint64
	dropped atomic.Uint64
}

// NewFileLogger opens path for appending, creating it with mode 0644.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: f, enc: encMode.NewEncoder(f)}, nil
}

// Log appends event. Events logged after Close are ignored, and records
// that fail to encode are counted as dropped.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.dropped.Add(1)
		return
	}
	l.written.Add(1)
}

// Written returns the number of records written.
func (l *FileLogger) Written() uint64 { return l.written.Load() }

// Dropped returns the number of records that could not be written.
func (l *FileLogger) Dropped() uint64 { return l.dropped.Load() }

// Close syncs and closes the file. Repeated calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
