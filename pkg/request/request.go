package request

import (
	"errors"
	"sync"
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Request errors.
var (
	ErrRequestNotFound = errors.New("asynchronous request not found")
	ErrNotYetArrived   = errors.New("asynchronous reply not yet arrived")
	ErrTimeout         = errors.New("timed out waiting for asynchronous reply")
)

// ID identifies an asynchronous request.
type ID uint32

// Kind is the kind of an asynchronous call.
type Kind uint8

const (
	KindCommand Kind = iota + 1
	KindReadAttribute
	KindReadAttributes
	KindWriteAttribute
	KindWriteAttributes
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "COMMAND"
	case KindReadAttribute:
		return "READ_ATTRIBUTE"
	case KindReadAttributes:
		return "READ_ATTRIBUTES"
	case KindWriteAttribute:
		return "WRITE_ATTRIBUTE"
	case KindWriteAttributes:
		return "WRITE_ATTRIBUTES"
	default:
		return "UNKNOWN"
	}
}

// Operation returns the wire operation of the kind.
func (k Kind) Operation() wire.Operation {
	switch k {
	case KindCommand:
		return wire.OpCommand
	case KindReadAttribute:
		return wire.OpReadAttribute
	case KindReadAttributes:
		return wire.OpReadAttributes
	case KindWriteAttribute:
		return wire.OpWriteAttribute
	case KindWriteAttributes:
		return wire.OpWriteAttributes
	default:
		return 0
	}
}

// IsRead reports whether the kind reads attributes.
func (k Kind) IsRead() bool {
	return k == KindReadAttribute || k == KindReadAttributes
}

// IsWrite reports whether the kind writes attributes.
func (k Kind) IsWrite() bool {
	return k == KindWriteAttribute || k == KindWriteAttributes
}

// Status is the outcome of a collection attempt.
type Status uint8

const (
	StatusPending Status = iota
	StatusArrived
	StatusTimeout
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusArrived:
		return "ARRIVED"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Mode selects requests by delivery mode.
type Mode uint8

const (
	ModeAll Mode = iota
	ModeCallback
	ModePolling
)

// Result is handed to a callback when its request completes.
type Result struct {
	ID     ID
	Kind   Kind
	Device string
	Names  []string

	// Reply is the reply as received; nil only if Err comes from the client.
	Reply *wire.Reply

	// Err is the failure, typically a *wire.DevFailed.
	Err error
}

// Value returns the command result.
func (r *Result) Value() any {
	if r.Reply == nil {
		return nil
	}
	return r.Reply.Value
}

// Attributes returns the attribute values of a read.
func (r *Result) Attributes() []wire.AttributeValue {
	if r.Reply == nil {
		return nil
	}
	return r.Reply.Attributes
}

// Callbacks holds the functions invoked when a callback-mode request
// completes. Only the function matching the request kind is used.
type Callbacks struct {
	CmdEnded    func(*Result)
	AttrRead    func(*Result)
	AttrWritten func(*Result)
}

func (c *Callbacks) forKind(k Kind) func(*Result) {
	switch {
	case k == KindCommand:
		return c.CmdEnded
	case k.IsRead():
		return c.AttrRead
	case k.IsWrite():
		return c.AttrWritten
	default:
		return nil
	}
}

// Request is an outstanding asynchronous call.
type Request struct {
	ID        ID
	Kind      Kind
	Device    string
	Names     []string
	Callbacks *Callbacks
	Submitted time.Time

	// done is closed when the reply arrives; reply is immutable after.
	mu    sync.Mutex
	done  chan struct{}
	reply *wire.Reply
}

func newRequest(id ID, kind Kind, device string, names []string, cb *Callbacks) *Request {
	return &Request{
		ID:        id,
		Kind:      kind,
		Device:    device,
		Names:     names,
		Callbacks: cb,
		Submitted: time.Now(),
		done:      make(chan struct{}),
	}
}

// setReply stores the reply. It returns false if one was already stored.
func (r *Request) setReply(reply *wire.Reply) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reply != nil {
		return false
	}
	r.reply = reply
	close(r.done)
	return true
}

// HasCallback reports whether the request is in callback mode.
func (r *Request) HasCallback() bool {
	return r.Callbacks != nil
}

func (r *Request) arrived() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Request) result() *Result {
	res := &Result{
		ID:     r.ID,
		Kind:   r.Kind,
		Device: r.Device,
		Names:  r.Names,
		Reply:  r.reply,
	}
	if !r.reply.IsSuccess() {
		res.Err = r.reply.Err()
	}
	return res
}
