package zmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	zmq4 "github.com/pebbe/zmq4"

	"github.com/tango-controls/tango-go/pkg/transport"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// DefaultPollInterval bounds how long queued commands wait for the socket
// loop.
const DefaultPollInterval = 10 * time.Millisecond

// ClientConfig configures a Client.
type ClientConfig struct {
	// Endpoint is the server's request endpoint, e.g. "tcp://host:10000".
	Endpoint string

	// EventEndpoint is the server's event endpoint, e.g. "tcp://host:10001".
	EventEndpoint string

	// PollInterval is the socket loop period (default: 10ms).
	PollInterval time.Duration

	// QueueSize is the capacity of the outgoing queue (default: 256).
	QueueSize int

	// Logger receives operational logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint:      "tcp://localhost:10000",
		EventEndpoint: "tcp://localhost:10001",
		PollInterval:  DefaultPollInterval,
		QueueSize:     256,
	}
}

// command is work for the socket loop.
type command struct {
	frames      [][]byte
	subscribe   string
	unsubscribe string
}

// Client is a Transport over a DEALER socket for requests and a SUB socket
// for events. Both sockets are owned by one loop goroutine.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	dealer *zmq4.Socket
	sub    *zmq4.Socket

	queue *transport.Queue

	mu       sync.Mutex
	pending  map[uint32]chan *wire.Reply
	nextSync uint32
	watched  map[string]int
	closed   bool

	cmds   chan command
	cancel context.CancelFunc
	done   chan struct{}
}

var _ transport.Transport = (*Client)(nil)

// Dial connects a client to a server and starts its socket loop.
func Dial(cfg ClientConfig) (*Client, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dealer, err := zmq4.NewSocket(zmq4.DEALER)
	if err != nil {
		return nil, fmt.Errorf("creating dealer socket: %w", err)
	}
	dealer.SetLinger(0)
	dealer.SetReconnectIvl(100 * time.Millisecond)
	if err := dealer.Connect(cfg.Endpoint); err != nil {
		dealer.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Endpoint, err)
	}

	sub, err := zmq4.NewSocket(zmq4.SUB)
	if err != nil {
		dealer.Close()
		return nil, fmt.Errorf("creating sub socket: %w", err)
	}
	sub.SetLinger(0)
	if err := sub.Connect(cfg.EventEndpoint); err != nil {
		dealer.Close()
		sub.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.EventEndpoint, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:     cfg,
		logger:  logger,
		dealer:  dealer,
		sub:     sub,
		queue:   transport.NewQueue(),
		pending: make(map[uint32]chan *wire.Reply),
		watched: make(map[string]int),
		cmds:    make(chan command, cfg.QueueSize),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.run(ctx)
	return c, nil
}

// Invoke implements transport.Transport. The request travels with a
// transport-local id; the reply carries the caller's id.
func (c *Client) Invoke(ctx context.Context, req *wire.Request) (*wire.Reply, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, transport.ErrClosed
	}
	c.nextSync++
	if c.nextSync == 0 {
		c.nextSync = 1
	}
	id := c.nextSync
	ch := make(chan *wire.Reply, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	local := *req
	local.RequestID = id
	frames, err := transport.EncodeRequestFrames(transport.TagSync, &local)
	if err != nil {
		return nil, err
	}
	if err := c.enqueue(ctx, command{frames: frames}); err != nil {
		return nil, err
	}

	select {
	case reply := <-ch:
		reply.RequestID = req.RequestID
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, transport.ErrClosed
	}
}

// Send implements transport.Transport.
func (c *Client) Send(ctx context.Context, req *wire.Request) error {
	frames, err := transport.EncodeRequestFrames(transport.TagAsync, req)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, command{frames: frames})
}

// Watch implements transport.Transport.
func (c *Client) Watch(topic string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	c.watched[topic]++
	first := c.watched[topic] == 1
	c.mu.Unlock()

	if !first {
		return nil
	}
	return c.enqueue(context.Background(), command{subscribe: topic})
}

// Unwatch implements transport.Transport.
func (c *Client) Unwatch(topic string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	n := c.watched[topic]
	if n <= 1 {
		delete(c.watched, topic)
	} else {
		c.watched[topic] = n - 1
	}
	c.mu.Unlock()

	if n != 1 {
		return nil
	}
	return c.enqueue(context.Background(), command{unsubscribe: topic})
}

// SetHandler implements transport.Transport.
func (c *Client) SetHandler(h transport.Handler) {
	c.queue.SetHandler(h)
}

// Close implements transport.Transport.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	<-c.done
	c.queue.Close()
	return nil
}

func (c *Client) enqueue(ctx context.Context, cmd command) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	select {
	case c.cmds <- cmd:
		return nil
	case <-c.done:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.dealer.Close()
	defer c.sub.Close()

	poller := zmq4.NewPoller()
	poller.Add(c.dealer, zmq4.POLLIN)
	poller.Add(c.sub, zmq4.POLLIN)

	for {
		if ctx.Err() != nil {
			return
		}
		c.flush()

		polled, err := poller.Poll(c.cfg.PollInterval)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.ETERM {
				return
			}
			c.logger.Debug("poll failed", "error", err)
			continue
		}
		for _, p := range polled {
			switch p.Socket {
			case c.dealer:
				c.readReply()
			case c.sub:
				c.readEvent()
			}
		}
	}
}

// flush executes the queued commands without blocking.
func (c *Client) flush() {
	for {
		select {
		case cmd := <-c.cmds:
			c.execute(cmd)
		default:
			return
		}
	}
}

func (c *Client) execute(cmd command) {
	var err error
	switch {
	case cmd.subscribe != "":
		err = c.sub.SetSubscribe(cmd.subscribe)
	case cmd.unsubscribe != "":
		err = c.sub.SetUnsubscribe(cmd.unsubscribe)
	default:
		_, err = c.dealer.SendMessageDontwait(cmd.frames)
	}
	if err != nil {
		c.logger.Warn("socket command failed", "error", err)
	}
}

func (c *Client) readReply() {
	frames, err := c.dealer.RecvMessageBytes(zmq4.DONTWAIT)
	if err != nil {
		return
	}
	tag, reply, err := transport.DecodeReplyFrames(frames)
	if err != nil {
		c.logger.Warn("dropping malformed reply", "error", err)
		return
	}

	c.mu.Lock()
	var ch chan *wire.Reply
	if tag == transport.TagSync {
		ch = c.pending[reply.RequestID]
		delete(c.pending, reply.RequestID)
	}
	c.mu.Unlock()

	switch {
	case tag == transport.TagSync && ch != nil:
		ch <- reply
	case tag == transport.TagSync:
		c.logger.Debug("late synchronous reply", "request_id", reply.RequestID)
	default:
		c.queue.Reply(reply)
	}
}

func (c *Client) readEvent() {
	frames, err := c.sub.RecvMessageBytes(zmq4.DONTWAIT)
	if err != nil {
		return
	}
	msg, err := transport.DecodeEventFrames(frames)
	if err != nil {
		c.logger.Warn("dropping malformed event", "error", err)
		return
	}

	// subscriptions match by prefix
	c.mu.Lock()
	watched := c.watched[msg.Topic()] > 0
	c.mu.Unlock()

	if watched {
		c.queue.Event(msg)
	}
}
