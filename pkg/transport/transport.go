package transport

import (
	"context"
	"errors"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Transport errors.
var (
	ErrClosed      = errors.New("transport closed")
	ErrNoHandler   = errors.New("no handler set")
	ErrInvalidTag  = errors.New("invalid frame tag")
	ErrShortFrames = errors.New("message has too few frames")
)

// Frame tags of request and reply messages.
const (
	TagSync  = "S"
	TagAsync = "A"
)

// Handler receives asynchronous replies and events.
// Calls are made from a single goroutine per transport.
type Handler interface {
	HandleReply(reply *wire.Reply)
	HandleEvent(msg *wire.EventMessage)
}

// Transport connects a client session to device servers.
type Transport interface {
	// Invoke sends req and waits for the reply or ctx.
	Invoke(ctx context.Context, req *wire.Request) (*wire.Reply, error)

	// Send sends req without waiting. The reply goes to the Handler.
	Send(ctx context.Context, req *wire.Request) error

	// Watch starts delivering events of topic to the Handler.
	Watch(topic string) error

	// Unwatch stops delivering events of topic.
	Unwatch(topic string) error

	// SetHandler sets the receiver of replies and events.
	SetHandler(h Handler)

	// Close releases the transport. Pending Invoke calls fail with ErrClosed.
	Close() error
}

// RequestHandler serves requests on the device-server side.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req *wire.Request) *wire.Reply
}

// ClientDropper is implemented by servers that track per-client state.
type ClientDropper interface {
	DropClient(client string)
}

// HandlerFuncs adapts functions to a Handler. Nil functions drop the message.
type HandlerFuncs struct {
	Reply func(*wire.Reply)
	Event func(*wire.EventMessage)
}

// HandleReply implements Handler.
func (h HandlerFuncs) HandleReply(reply *wire.Reply) {
	if h.Reply != nil {
		h.Reply(reply)
	}
}

// HandleEvent implements Handler.
func (h HandlerFuncs) HandleEvent(msg *wire.EventMessage) {
	if h.Event != nil {
		h.Event(msg)
	}
}

// EncodeRequestFrames returns the frames of a request message.
func EncodeRequestFrames(tag string, req *wire.Request) ([][]byte, error) {
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	return [][]byte{[]byte(tag), data}, nil
}

// DecodeRequestFrames parses [tag, cbor] request frames.
func DecodeRequestFrames(frames [][]byte) (string, *wire.Request, error) {
	if len(frames) < 2 {
		return "", nil, ErrShortFrames
	}
	tag := string(frames[len(frames)-2])
	if tag != TagSync && tag != TagAsync {
		return "", nil, ErrInvalidTag
	}
	req, err := wire.DecodeRequest(frames[len(frames)-1])
	return tag, req, err
}

// DecodeReplyFrames parses [tag, cbor] reply frames.
func DecodeReplyFrames(frames [][]byte) (string, *wire.Reply, error) {
	if len(frames) < 2 {
		return "", nil, ErrShortFrames
	}
	tag := string(frames[len(frames)-2])
	if tag != TagSync && tag != TagAsync {
		return "", nil, ErrInvalidTag
	}
	reply, err := wire.DecodeReply(frames[len(frames)-1])
	return tag, reply, err
}

// DecodeEventFrames parses [topic, cbor] event frames.
func DecodeEventFrames(frames [][]byte) (*wire.EventMessage, error) {
	if len(frames) < 2 {
		return nil, ErrShortFrames
	}
	msg, err := wire.DecodeEvent(frames[1])
	if err != nil {
		return nil, err
	}
	if msg.Topic() != string(frames[0]) {
		return nil, errors.New("event topic does not match its frame")
	}
	return msg, nil
}
