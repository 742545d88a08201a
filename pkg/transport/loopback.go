package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// LoopbackConfig configures a Loopback.
type LoopbackConfig struct {
	// Codec passes every message through the CBOR wire codec, so values
	// arrive in the form a remote client would see.
	Codec bool

	// Logger receives operational logs. Nil disables them.
	Logger *slog.Logger
}

// Loopback connects in-process clients to a device server. It is the
// server's event publisher and hands out one Conn per client session.
type Loopback struct {
	server RequestHandler
	cfg    LoopbackConfig
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[*Conn]struct{}
}

// NewLoopback creates a loopback for server. Install it as the server's
// publisher to receive events.
func NewLoopback(server RequestHandler, cfg LoopbackConfig) *Loopback {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loopback{
		server: server,
		cfg:    cfg,
		logger: logger,
		conns:  make(map[*Conn]struct{}),
	}
}

// Publish forwards msg to every connection watching its topic.
func (l *Loopback) Publish(msg *wire.EventMessage) {
	if l.cfg.Codec {
		data, err := wire.EncodeEvent(msg)
		if err != nil {
			l.logger.Warn("dropping unencodable event", "topic", msg.Topic(), "error", err)
			return
		}
		decoded, err := wire.DecodeEvent(data)
		if err != nil {
			l.logger.Warn("dropping undecodable event", "topic", msg.Topic(), "error", err)
			return
		}
		msg = decoded
	}

	topic := msg.Topic()
	l.mu.RLock()
	conns := make([]*Conn, 0, len(l.conns))
	for c := range l.conns {
		conns = append(conns, c)
	}
	l.mu.RUnlock()

	for _, c := range conns {
		if c.watching(topic) {
			c.queue.Event(msg)
		}
	}
}

// Conn opens a new client connection.
func (l *Loopback) Conn() *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		lb:      l,
		ctx:     ctx,
		cancel:  cancel,
		queue:   NewQueue(),
		watched: make(map[string]int),
		clients: make(map[string]bool),
	}
	l.mu.Lock()
	l.conns[c] = struct{}{}
	l.mu.Unlock()
	return c
}

// ConnectionCount returns the number of open connections.
func (l *Loopback) ConnectionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.conns)
}

func (l *Loopback) remove(c *Conn) {
	l.mu.Lock()
	delete(l.conns, c)
	l.mu.Unlock()
}

// Conn is a loopback client connection. Replies and events are handed to
// the handler in order from a single goroutine.
type Conn struct {
	lb     *Loopback
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	queue  *Queue

	mu      sync.Mutex
	watched map[string]int
	clients map[string]bool
	closed  bool
}

var _ Transport = (*Conn)(nil)

// Invoke implements Transport.
func (c *Conn) Invoke(ctx context.Context, req *wire.Request) (*wire.Reply, error) {
	req, err := c.outgoing(req)
	if err != nil {
		return nil, err
	}

	result := make(chan *wire.Reply, 1)
	go func() {
		defer c.wg.Done()
		sctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(c.ctx, cancel)
		defer stop()
		result <- c.serve(sctx, req)
	}()

	select {
	case reply := <-result:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

// Send implements Transport.
func (c *Conn) Send(ctx context.Context, req *wire.Request) error {
	req, err := c.outgoing(req)
	if err != nil {
		return err
	}

	go func() {
		defer c.wg.Done()
		if reply := c.serve(c.ctx, req); reply != nil {
			c.queue.Reply(reply)
		}
	}()
	return nil
}

// Watch implements Transport. Watches are counted per topic.
func (c *Conn) Watch(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.watched[topic]++
	return nil
}

// Unwatch implements Transport.
func (c *Conn) Unwatch(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.watched[topic] <= 1 {
		delete(c.watched, topic)
	} else {
		c.watched[topic]--
	}
	return nil
}

// SetHandler implements Transport.
func (c *Conn) SetHandler(h Handler) {
	c.queue.SetHandler(h)
}

// Close implements Transport. The server forgets the clients seen on
// this connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	clients := make([]string, 0, len(c.clients))
	for id := range c.clients {
		clients = append(clients, id)
	}
	c.mu.Unlock()

	c.lb.remove(c)
	c.cancel()
	c.wg.Wait()
	c.queue.Close()

	if d, ok := c.lb.server.(ClientDropper); ok {
		for _, id := range clients {
			d.DropClient(id)
		}
	}
	return nil
}

// outgoing checks the connection and applies the codec to req. On success
// the request is counted in wg and the caller must call wg.Done.
func (c *Conn) outgoing(req *wire.Request) (*wire.Request, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if req.Client != "" {
		c.clients[req.Client] = true
	}
	c.wg.Add(1)
	c.mu.Unlock()

	if !c.lb.cfg.Codec {
		return req, nil
	}
	decoded, err := c.roundTrip(req)
	if err != nil {
		c.wg.Done()
		return nil, err
	}
	return decoded, nil
}

func (c *Conn) roundTrip(req *wire.Request) (*wire.Request, error) {
	data, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	return wire.DecodeRequest(data)
}

func (c *Conn) serve(ctx context.Context, req *wire.Request) *wire.Reply {
	reply := c.lb.server.HandleRequest(ctx, req)
	if reply == nil || !c.lb.cfg.Codec {
		return reply
	}
	data, err := wire.EncodeReply(reply)
	if err == nil {
		var decoded *wire.Reply
		if decoded, err = wire.DecodeReply(data); err == nil {
			return decoded
		}
	}
	c.lb.logger.Warn("reply failed the codec", "request_id", req.RequestID, "error", err)
	return wire.FailedReply(req.RequestID, wire.StatusDevFailed, err)
}

func (c *Conn) watching(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.watched[topic] > 0
}
