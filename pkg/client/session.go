package client

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tango-controls/tango-go/pkg/connection"
	"github.com/tango-controls/tango-go/pkg/event"
	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/request"
	"github.com/tango-controls/tango-go/pkg/transport"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// CallbackModel selects how replies of callback-mode requests are
// delivered.
type CallbackModel uint8

const (
	// CallbackPull fires callbacks from GetAsynchReplies only.
	CallbackPull CallbackModel = iota
	// CallbackPush fires callbacks from a background loop as replies arrive.
	CallbackPush
)

// Session is a client context: one transport, the asynchronous request
// registry and the event dispatcher shared by its device proxies.
type Session struct {
	cfg      Config
	id       string
	tr       transport.Transport
	logger   *slog.Logger
	protoLog log.Logger

	registry   *request.Registry
	dispatcher *event.Dispatcher
	collector  *request.Collector

	syncID atomic.Uint32

	mu      sync.Mutex
	closed  bool
	model   CallbackModel
	proxies map[string]int
	remote  map[uint32]*remoteSub
	links   map[string]*connection.Link

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// remoteSub is an event subscription registered with a device server.
type remoteSub struct {
	sub *event.Subscription

	// lost is set while the server does not know the subscription.
	lost bool
}

var _ transport.Handler = (*Session)(nil)

// NewSession creates a session on tr. The session becomes the transport's
// handler and owns it: Close closes the transport.
func NewSession(tr transport.Transport, cfg Config) *Session {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.KeepAlivePeriod == 0 {
		cfg.KeepAlivePeriod = def.KeepAlivePeriod
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("session", cfg.SessionID)

	s := &Session{
		cfg:      cfg,
		id:       cfg.SessionID,
		tr:       tr,
		logger:   logger,
		protoLog: log.OrNoop(cfg.ProtocolLogger),
		registry: request.NewRegistry(request.Config{
			Logger:         logger,
			ProtocolLogger: cfg.ProtocolLogger,
			SessionID:      cfg.SessionID,
		}),
		dispatcher: event.NewDispatcher(event.Config{
			Logger:         logger,
			ProtocolLogger: cfg.ProtocolLogger,
			SessionID:      cfg.SessionID,
		}),
		proxies: make(map[string]int),
		remote:  make(map[uint32]*remoteSub),
		links:   make(map[string]*connection.Link),
	}
	s.collector = request.NewCollector(s.registry, "")
	s.ctx, s.cancel = context.WithCancel(context.Background())

	tr.SetHandler(s)
	if cfg.KeepAlivePeriod > 0 {
		s.wg.Add(1)
		go s.keepAliveLoop()
	}
	s.logState("", "", "OPEN", "")
	return s
}

// ID returns the session id sent with every request.
func (s *Session) ID() string {
	return s.id
}

// NewDeviceProxy returns a proxy for device. No request is sent.
func (s *Session) NewDeviceProxy(device string) (*DeviceProxy, error) {
	device = wire.NormalizeName(device)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.proxies[device]++
	return newDeviceProxy(s, device), nil
}

// HandleReply implements transport.Handler.
func (s *Session) HandleReply(reply *wire.Reply) {
	s.registry.MarkArrived(reply)
}

// HandleEvent implements transport.Handler.
func (s *Session) HandleEvent(msg *wire.EventMessage) {
	s.dispatcher.Push(s.ctx, msg)
}

// GetAsynchReplies fires the callbacks of every arrived callback-mode
// request of the session. A negative timeout only handles replies that
// already arrived, zero waits until no request is pending.
func (s *Session) GetAsynchReplies(ctx context.Context, timeout time.Duration) error {
	return s.collector.GetAsynchReplies(ctx, timeout)
}

// PendingAsynchCount returns the number of outstanding asynchronous
// requests of the given mode.
func (s *Session) PendingAsynchCount(mode request.Mode) int {
	return s.registry.PendingCount(mode)
}

// SetCallbackModel selects how callback-mode replies are delivered.
func (s *Session) SetCallbackModel(m CallbackModel) {
	s.mu.Lock()
	if s.closed || s.model == m {
		s.mu.Unlock()
		return
	}
	s.model = m
	s.mu.Unlock()

	if m == CallbackPush {
		s.collector.Start(s.ctx)
	} else {
		s.collector.Stop()
	}
}

// CallbackModel returns the current callback model.
func (s *Session) CallbackModel() CallbackModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Close removes all subscriptions, drops outstanding requests and closes
// the transport.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	links := s.links
	s.links = make(map[string]*connection.Link)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	for _, l := range links {
		l.Close()
	}
	s.collector.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	for _, sub := range s.dispatcher.Subscriptions("") {
		if err := s.dispatcher.Unsubscribe(ctx, sub.ID); err == nil {
			s.release(ctx, sub)
		}
	}
	s.dispatcher.Close()

	if n := s.registry.Cancel(""); n > 0 {
		s.logger.Debug("dropped outstanding requests", "count", n)
	}
	s.logState("", "OPEN", "CLOSED", "")
	return s.tr.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// proxyClosed forgets a proxy. The outstanding requests of its device are
// dropped with the last proxy.
func (s *Session) proxyClosed(device string) {
	s.mu.Lock()
	s.proxies[device]--
	last := s.proxies[device] <= 0
	if last {
		delete(s.proxies, device)
	}
	s.mu.Unlock()

	if last {
		if n := s.registry.Cancel(device); n > 0 {
			s.logger.Debug("dropped outstanding requests", "device", device, "count", n)
		}
	}
}

// invoke sends a synchronous request and returns the reply. Transport
// errors are returned as device failures.
func (s *Session) invoke(ctx context.Context, timeout time.Duration, req *wire.Request) (*wire.Reply, error) {
	req.RequestID = s.nextSyncID()
	req.Client = s.id

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	s.logMessage(log.DirectionOut, log.MessageTypeRequest, req, nil, nil)
	reply, err := s.tr.Invoke(ctx, req)
	if err != nil {
		s.logger.Debug("request failed", "device", req.Device, "operation", req.Operation, "error", err)
		return nil, transportFailure(req.Device, err)
	}
	elapsed := time.Since(start)
	s.logMessage(log.DirectionIn, log.MessageTypeReply, req, &reply.Status, &elapsed)
	return reply, nil
}

// call is invoke returning the device failure carried by the reply.
func (s *Session) call(ctx context.Context, timeout time.Duration, req *wire.Request) (*wire.Reply, error) {
	reply, err := s.invoke(ctx, timeout, req)
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return reply, err
	}
	return reply, nil
}

// send sends an asynchronous request under its registry id.
func (s *Session) send(ctx context.Context, id request.ID, req *wire.Request) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	req.RequestID = uint32(id)
	req.Client = s.id
	if err := s.tr.Send(ctx, req); err != nil {
		return transportFailure(req.Device, err)
	}
	return nil
}

func (s *Session) nextSyncID() uint32 {
	for {
		if id := s.syncID.Add(1); id != 0 {
			return id
		}
	}
}

func (s *Session) logMessage(dir log.Direction, typ log.MessageType, req *wire.Request, status *wire.Status, elapsed *time.Duration) {
	op := req.Operation
	msg := &log.MessageEvent{
		Type:           typ,
		RequestID:      req.RequestID,
		Operation:      &op,
		Name:           req.Name(),
		Status:         status,
		ProcessingTime: elapsed,
	}
	if req.Kind != 0 {
		kind := req.Kind
		msg.Kind = &kind
	}
	s.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Direction: dir,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		LocalRole: log.RoleClient,
		Device:    req.Device,
		Message:   msg,
	})
}

func (s *Session) logState(device, old, new, reason string) {
	entity := log.StateEntitySession
	if device != "" {
		entity = log.StateEntityDevice
	}
	s.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Layer:     log.LayerTransport,
		Category:  log.CategoryState,
		LocalRole: log.RoleClient,
		Device:    device,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: old,
			NewState: new,
			Reason:   reason,
		},
	})
}
