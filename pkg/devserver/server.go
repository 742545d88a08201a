package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tango-controls/tango-go/pkg/event"
	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/model"
	"github.com/tango-controls/tango-go/pkg/polling"
	"github.com/tango-controls/tango-go/pkg/property"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// Publisher sends event messages to subscribed clients.
type Publisher interface {
	Publish(msg *wire.EventMessage)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(msg *wire.EventMessage)

// Publish calls f(msg).
func (f PublisherFunc) Publish(msg *wire.EventMessage) { f(msg) }

// Server hosts devices and handles client requests.
type Server struct {
	mu sync.RWMutex

	cfg     Config
	devices map[string]*hosted
	order   []string
	admin   *model.Device
	online  bool

	publisher Publisher

	// interest counts subscriptions per topic and client.
	interestMu sync.Mutex
	interest   map[string]map[string]int

	// stopped holds polled objects whose polling stopped while subscribed.
	stopped   map[polling.Key]bool
	dataReady map[polling.Key]int64
	readings  map[polling.Key]reading
	pushed    map[string]bool

	bridge   *polling.Bridge
	detector *event.Detector
	store    property.Store

	logger   *slog.Logger
	protoLog log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// hosted is a device served by the server. It receives the device's
// interface and configuration notifications.
type hosted struct {
	s   *Server
	dev *model.Device

	mu         sync.Mutex
	iface      *wire.DeviceInterface
	restarting bool
}

func (h *hosted) OnInterfaceChanged(d *model.Device) {
	h.s.interfaceChanged(h, false, false)
}

func (h *hosted) OnAttributeConfigChanged(d *model.Device, cfg wire.AttributeConfig) {
	h.s.configChanged(d, cfg)
}

// NewServer creates a server with its admin device.
func NewServer(cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Instance == "" {
		cfg.Instance = def.Instance
	}
	if cfg.KeepAlivePeriod <= 0 {
		cfg.KeepAlivePeriod = def.KeepAlivePeriod
	}
	if cfg.Store == nil {
		cfg.Store = property.NewMemoryStore()
	}

	s := &Server{
		cfg:       cfg,
		devices:   make(map[string]*hosted),
		online:    true,
		interest:  make(map[string]map[string]int),
		stopped:   make(map[polling.Key]bool),
		dataReady: make(map[polling.Key]int64),
		readings:  make(map[polling.Key]reading),
		detector:  event.NewDetector(),
		store:     cfg.Store,
		logger:    cfg.Logger,
		protoLog:  log.OrNoop(cfg.ProtocolLogger),
	}
	s.bridge = polling.NewBridge(s.poll)
	s.bridge.OnStop(s.pollingStopped)

	s.admin = s.newAdminDevice()
	h := &hosted{s: s, dev: s.admin, iface: s.admin.Interface()}
	s.devices[wire.NormalizeName(s.admin.Name())] = h
	return s
}

// Instance returns the server instance name.
func (s *Server) Instance() string {
	return s.cfg.Instance
}

// AdminName returns the name of the admin device.
func (s *Server) AdminName() string {
	return s.admin.Name()
}

// SetPublisher sets the destination of published events.
func (s *Server) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// Start starts the event keep-alive loop.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.keepAliveLoop(ctx)
}

// Close stops polling and the keep-alive loop.
func (s *Server) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	hosts := make([]*hosted, 0, len(s.devices))
	for _, h := range s.devices {
		hosts = append(hosts, h)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.bridge.Close()
	for _, h := range hosts {
		h.dev.Unsubscribe(h)
	}
}

// AddDevice starts serving d. Polling periods and event properties stored
// for d are restored.
func (s *Server) AddDevice(d *model.Device) error {
	key := wire.NormalizeName(d.Name())
	if wire.IsAdminName(key) {
		return fmt.Errorf("%w: %s is reserved", ErrDeviceExists, d.Name())
	}

	s.mu.Lock()
	if _, exists := s.devices[key]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceExists, d.Name())
	}
	h := &hosted{s: s, dev: d, iface: d.Interface()}
	s.devices[key] = h
	s.order = append(s.order, key)
	s.mu.Unlock()

	d.Subscribe(h)
	s.debugLog("device added", "device", d.Name())
	return s.restore(d)
}

// RemoveDevice stops serving the named device.
func (s *Server) RemoveDevice(name string) error {
	key := wire.NormalizeName(name)

	s.mu.Lock()
	h, exists := s.devices[key]
	if !exists || h.dev == s.admin {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	delete(s.devices, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	h.dev.Unsubscribe(h)
	for _, c := range s.bridge.Cycles(key) {
		_ = s.bridge.Stop(c.Key.Device, c.Key.Name)
	}
	s.detector.Reset(key)
	s.debugLog("device removed", "device", name)
	return nil
}

// Device returns a hosted device.
func (s *Server) Device(name string) (*model.Device, bool) {
	h, ok := s.lookup(name)
	if !ok {
		return nil, false
	}
	return h.dev, true
}

// Devices returns the names of the hosted devices in the order they were
// added. The admin device is not included.
func (s *Server) Devices() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.order))
	for _, k := range s.order {
		names = append(names, s.devices[k].dev.Name())
	}
	return names
}

// SetOnline simulates the server going down or coming back. While offline
// every request fails with StatusDeviceUnreachable and no event is
// published. Going offline drops all client subscriptions.
func (s *Server) SetOnline(online bool) {
	s.mu.Lock()
	old := s.online
	s.online = online
	s.mu.Unlock()

	if old == online {
		return
	}
	if !online {
		s.interestMu.Lock()
		s.interest = make(map[string]map[string]int)
		s.interestMu.Unlock()
	}
	s.logState(log.StateEntityDevice, s.AdminName(), onlineName(old), onlineName(online), "")
	s.debugLog("server online state changed", "online", online)
}

// Online reports whether the server answers requests.
func (s *Server) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// HandleRequest processes a request and returns its reply.
func (s *Server) HandleRequest(ctx context.Context, req *wire.Request) *wire.Reply {
	if err := req.Validate(); err != nil {
		return errorReply(req.RequestID, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err), s.AdminName())
	}
	if !s.Online() {
		return &wire.Reply{
			RequestID: req.RequestID,
			Status:    wire.StatusDeviceUnreachable,
			Errors: []wire.DevError{{
				Reason:   wire.ReasonCantConnect,
				Desc:     "failed to connect to device " + req.Device,
				Origin:   s.AdminName(),
				Severity: wire.SeverityErr,
			}},
		}
	}

	s.logMessage(log.DirectionIn, log.MessageTypeRequest, req, nil)

	h, ok := s.lookup(req.Device)
	var reply *wire.Reply
	if !ok {
		reply = errorReply(req.RequestID, fmt.Errorf("%w: %s", ErrDeviceNotFound, req.Device), s.AdminName())
	} else {
		reply = s.dispatch(ctx, h, req)
	}

	s.logMessage(log.DirectionOut, log.MessageTypeReply, req, &reply.Status)
	return reply
}

func (s *Server) dispatch(ctx context.Context, h *hosted, req *wire.Request) *wire.Reply {
	switch req.Operation {
	case wire.OpCommand:
		return s.handleCommand(ctx, h, req)
	case wire.OpReadAttribute:
		return s.handleRead(ctx, h, req)
	case wire.OpReadAttributes:
		return s.handleReadMany(ctx, h, req)
	case wire.OpWriteAttribute:
		return s.handleWrite(ctx, h, req)
	case wire.OpWriteAttributes:
		return s.handleWriteMany(ctx, h, req)
	case wire.OpSubscribe:
		return s.handleSubscribe(ctx, h, req)
	case wire.OpUnsubscribe:
		return s.handleUnsubscribe(h, req)
	case wire.OpPing:
		// the value names the admin device of the hosting server
		return &wire.Reply{RequestID: req.RequestID, Status: wire.StatusSuccess, Value: s.AdminName()}
	default:
		return &wire.Reply{RequestID: req.RequestID, Status: wire.StatusUnsupported}
	}
}

func (s *Server) handleCommand(ctx context.Context, h *hosted, req *wire.Request) *wire.Reply {
	result, err := h.dev.InvokeCommand(ctx, req.Name(), req.Args)
	if err != nil {
		return errorReply(req.RequestID, err, h.dev.Name())
	}
	return &wire.Reply{RequestID: req.RequestID, Status: wire.StatusSuccess, Value: result}
}

func (s *Server) handleRead(ctx context.Context, h *hosted, req *wire.Request) *wire.Reply {
	av, err := h.dev.ReadAttribute(ctx, req.Name())
	if err != nil {
		return errorReply(req.RequestID, err, h.dev.Name())
	}
	return &wire.Reply{RequestID: req.RequestID, Status: wire.StatusSuccess, Attributes: []wire.AttributeValue{*av}}
}

// handleReadMany reads several attributes. A failing attribute does not
// fail the call; its reading carries the error.
func (s *Server) handleReadMany(ctx context.Context, h *hosted, req *wire.Request) *wire.Reply {
	values := make([]wire.AttributeValue, 0, len(req.Names))
	for _, name := range req.Names {
		av, err := h.dev.ReadAttribute(ctx, name)
		if err != nil {
			values = append(values, wire.AttributeValue{
				Name:    name,
				Quality: wire.QualityInvalid,
				Time:    time.Now(),
				Errors:  failure(err, h.dev.Name()).Errors,
			})
			continue
		}
		values = append(values, *av)
	}
	return &wire.Reply{RequestID: req.RequestID, Status: wire.StatusSuccess, Attributes: values}
}

func (s *Server) handleWrite(ctx context.Context, h *hosted, req *wire.Request) *wire.Reply {
	if len(req.Values) != 1 {
		return errorReply(req.RequestID,
			fmt.Errorf("%w: write needs exactly one value, got %d", model.ErrInvalidArgument, len(req.Values)), h.dev.Name())
	}
	if err := h.dev.WriteAttribute(ctx, req.Name(), req.Values[0].Value); err != nil {
		return errorReply(req.RequestID, err, h.dev.Name())
	}
	return &wire.Reply{
		RequestID:  req.RequestID,
		Status:     wire.StatusSuccess,
		Attributes: []wire.AttributeValue{{Name: req.Name(), Time: time.Now()}},
	}
}

// handleWriteMany writes every value. The reply lists one entry per value;
// if any write failed the reply fails with the first failure.
func (s *Server) handleWriteMany(ctx context.Context, h *hosted, req *wire.Request) *wire.Reply {
	reply := &wire.Reply{RequestID: req.RequestID, Status: wire.StatusSuccess}
	for _, v := range req.Values {
		written := wire.AttributeValue{Name: v.Name, Time: time.Now()}
		if err := h.dev.WriteAttribute(ctx, v.Name, v.Value); err != nil {
			df := failure(err, h.dev.Name())
			written.Errors = df.Errors
			if reply.Status == wire.StatusSuccess {
				reply.Status = df.Status
				reply.Errors = df.Errors
			}
		}
		reply.Attributes = append(reply.Attributes, written)
	}
	return reply
}

func (s *Server) lookup(name string) (*hosted, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.devices[wire.NormalizeName(name)]
	return h, ok
}

// debugLog logs a debug message if logging is enabled.
func (s *Server) debugLog(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Server) logMessage(dir log.Direction, typ log.MessageType, req *wire.Request, status *wire.Status) {
	op := req.Operation
	s.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.cfg.SessionID,
		Direction: dir,
		Layer:     log.LayerServer,
		Category:  log.CategoryMessage,
		LocalRole: log.RoleServer,
		Device:    req.Device,
		Message: &log.MessageEvent{
			Type:      typ,
			RequestID: req.RequestID,
			Operation: &op,
			Name:      req.Name(),
			Status:    status,
		},
	})
}

func (s *Server) logState(entity log.StateEntity, device, old, new, reason string) {
	s.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.cfg.SessionID,
		Layer:     log.LayerServer,
		Category:  log.CategoryState,
		LocalRole: log.RoleServer,
		Device:    device,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: old,
			NewState: new,
			Reason:   reason,
		},
	})
}

func onlineName(online bool) string {
	if online {
		return "ONLINE"
	}
	return "OFFLINE"
}
