package zmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	zmq4 "github.com/pebbe/zmq4"

	"github.com/tango-controls/tango-go/pkg/transport"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// ErrServing is returned when Serve is called twice.
var ErrServing = errors.New("server is already serving")

// ServerConfig configures a Server.
type ServerConfig struct {
	// Endpoint is the request bind address, e.g. "tcp://*:10000".
	Endpoint string

	// EventEndpoint is the event bind address, e.g. "tcp://*:10001".
	EventEndpoint string

	// RequestTimeout bounds the handling of one request. Zero disables it.
	RequestTimeout time.Duration

	// SendTimeout bounds a reply send to a gone client (default: 1s).
	SendTimeout time.Duration

	// PollInterval is the socket loop period (default: 10ms).
	PollInterval time.Duration

	// QueueSize is the capacity of the reply and event queues (default: 1024).
	QueueSize int

	// Logger receives operational logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Endpoint:      "tcp://*:10000",
		EventEndpoint: "tcp://*:10001",
		SendTimeout:   time.Second,
		PollInterval:  DefaultPollInterval,
		QueueSize:     1024,
	}
}

// Server serves requests on a ROUTER socket and publishes events on a PUB
// socket. Requests are handled concurrently; the sockets are only touched
// by the Serve loop.
type Server struct {
	cfg     ServerConfig
	handler transport.RequestHandler
	logger  *slog.Logger

	router *zmq4.Socket
	pub    *zmq4.Socket

	replies chan [][]byte
	events  chan *wire.EventMessage

	mu      sync.Mutex
	serving bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewServer creates the sockets and binds them.
func NewServer(handler transport.RequestHandler, cfg ServerConfig) (*Server, error) {
	def := DefaultServerConfig()
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	router, err := zmq4.NewSocket(zmq4.ROUTER)
	if err != nil {
		return nil, fmt.Errorf("creating router socket: %w", err)
	}
	router.SetRouterMandatory(1)
	router.SetSndtimeo(cfg.SendTimeout)
	router.SetLinger(0)
	if err := router.Bind(cfg.Endpoint); err != nil {
		router.Close()
		return nil, fmt.Errorf("binding %s: %w", cfg.Endpoint, err)
	}

	pub, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		router.Close()
		return nil, fmt.Errorf("creating pub socket: %w", err)
	}
	pub.SetLinger(0)
	if err := pub.Bind(cfg.EventEndpoint); err != nil {
		router.Close()
		pub.Close()
		return nil, fmt.Errorf("binding %s: %w", cfg.EventEndpoint, err)
	}

	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		router:  router,
		pub:     pub,
		replies: make(chan [][]byte, cfg.QueueSize),
		events:  make(chan *wire.EventMessage, cfg.QueueSize),
		done:    make(chan struct{}),
	}, nil
}

// Publish queues an event for publication. Events are dropped when the
// queue is full.
func (s *Server) Publish(msg *wire.EventMessage) {
	select {
	case s.events <- msg:
	default:
		s.logger.Warn("event queue full, dropping event", "topic", msg.Topic())
	}
}

// Serve runs the socket loop until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	if s.serving {
		s.mu.Unlock()
		return ErrServing
	}
	s.serving = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer close(s.done)
	defer s.closeSockets()

	poller := zmq4.NewPoller()
	poller.Add(s.router, zmq4.POLLIN)

	s.logger.Info("serving", "endpoint", s.cfg.Endpoint, "events", s.cfg.EventEndpoint)
	for {
		if ctx.Err() != nil {
			s.wg.Wait()
			return nil
		}
		s.flush()

		polled, err := poller.Poll(s.cfg.PollInterval)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.ETERM {
				return err
			}
			s.logger.Debug("poll failed", "error", err)
			continue
		}
		if len(polled) > 0 {
			s.readRequest(ctx)
		}
	}
}

// Close stops the loop and releases the sockets.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	serving := s.serving
	cancel := s.cancel
	s.mu.Unlock()

	if !serving {
		s.closeSockets()
		return nil
	}
	cancel()
	<-s.done
	return nil
}

func (s *Server) closeSockets() {
	s.router.Close()
	s.pub.Close()
}

func (s *Server) readRequest(ctx context.Context) {
	frames, err := s.router.RecvMessageBytes(zmq4.DONTWAIT)
	if err != nil {
		return
	}
	if len(frames) < 3 {
		s.logger.Warn("dropping short request", "frames", len(frames))
		return
	}
	identity := frames[0]
	tag, req, err := transport.DecodeRequestFrames(frames[1:])
	if err != nil {
		s.logger.Warn("dropping malformed request", "error", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rctx := ctx
		if s.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
			defer cancel()
		}
		reply := s.handler.HandleRequest(rctx, req)
		if reply == nil {
			return
		}
		data, err := wire.EncodeReply(reply)
		if err != nil {
			s.logger.Warn("reply not encodable", "request_id", req.RequestID, "error", err)
			data, _ = wire.EncodeReply(wire.FailedReply(req.RequestID, wire.StatusDevFailed, err))
		}
		select {
		case s.replies <- [][]byte{identity, []byte(tag), data}:
		case <-ctx.Done():
		}
	}()
}

// flush sends queued replies and events without blocking.
func (s *Server) flush() {
	for {
		select {
		case frames := <-s.replies:
			if _, err := s.router.SendMessage(frames); err != nil {
				s.logger.Debug("reply not delivered", "error", err)
			}
		case msg := <-s.events:
			data, err := wire.EncodeEvent(msg)
			if err != nil {
				s.logger.Warn("event not encodable", "topic", msg.Topic(), "error", err)
				continue
			}
			if _, err := s.pub.SendMessage(msg.Topic(), data); err != nil {
				s.logger.Debug("event not published", "topic", msg.Topic(), "error", err)
			}
		default:
			return
		}
	}
}
