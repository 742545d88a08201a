package request

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// Config configures a Registry.
type Config struct {
	// Logger receives operational logs. Nil disables them.
	Logger *slog.Logger

	// ProtocolLogger captures submitted and arrived requests.
	ProtocolLogger log.Logger

	// SessionID tags protocol log events.
	SessionID string
}

// Registry tracks outstanding asynchronous requests.
type Registry struct {
	mu       sync.RWMutex
	requests map[ID]*Request
	nextID   ID

	// arrival is closed and replaced on every arrival.
	arrival chan struct{}

	logger    *slog.Logger
	protoLog  log.Logger
	sessionID string
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		requests:  make(map[ID]*Request),
		arrival:   make(chan struct{}),
		logger:    cfg.Logger,
		protoLog:  log.OrNoop(cfg.ProtocolLogger),
		sessionID: cfg.SessionID,
	}
}

// Submit registers a new pending request and returns its ID.
// With cb set the request is in callback mode.
func (r *Registry) Submit(kind Kind, device string, names []string, cb *Callbacks) ID {
	r.mu.Lock()
	r.nextID++
	if r.nextID == 0 {
		r.nextID = 1
	}
	for r.requests[r.nextID] != nil {
		r.nextID++
	}
	req := newRequest(r.nextID, kind, device, names, cb)
	r.requests[req.ID] = req
	r.mu.Unlock()

	op := kind.Operation()
	r.protoLog.Log(log.Event{
		Timestamp: req.Submitted,
		SessionID: r.sessionID,
		Direction: log.DirectionOut,
		Layer:     log.LayerRequest,
		Category:  log.CategoryMessage,
		LocalRole: log.RoleClient,
		Device:    device,
		Message: &log.MessageEvent{
			Type:      log.MessageTypeRequest,
			RequestID: uint32(req.ID),
			Operation: &op,
			Name:      firstName(names),
			Callback:  cb != nil,
		},
	})
	return req.ID
}

// MarkArrived stores the reply of a pending request. Replies for unknown or
// already answered requests are logged and dropped.
func (r *Registry) MarkArrived(reply *wire.Reply) {
	id := ID(reply.RequestID)

	r.mu.RLock()
	req, exists := r.requests[id]
	r.mu.RUnlock()

	if !exists {
		r.warn("reply for unknown request", "request_id", id, "status", reply.Status)
		return
	}
	if !req.setReply(reply) {
		r.warn("duplicate reply", "request_id", id)
		return
	}

	r.mu.Lock()
	close(r.arrival)
	r.arrival = make(chan struct{})
	r.mu.Unlock()

	status := reply.Status
	elapsed := time.Since(req.Submitted)
	r.protoLog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: r.sessionID,
		Direction: log.DirectionIn,
		Layer:     log.LayerRequest,
		Category:  log.CategoryMessage,
		LocalRole: log.RoleClient,
		Device:    req.Device,
		Message: &log.MessageEvent{
			Type:           log.MessageTypeReply,
			RequestID:      uint32(id),
			Name:           firstName(req.Names),
			Status:         &status,
			Callback:       req.HasCallback(),
			ProcessingTime: &elapsed,
		},
	})
}

// MarkFailed completes a pending request with a client-side failure,
// such as a send error.
func (r *Registry) MarkFailed(id ID, status wire.Status, err error) {
	r.MarkArrived(wire.FailedReply(uint32(id), status, err))
}

// TryCollect returns the reply of a request without blocking.
//
// StatusPending means the reply has not arrived and the request stays
// registered. StatusArrived and StatusFailed remove the request; with
// StatusFailed the error is the device failure.
func (r *Registry) TryCollect(id ID) (*wire.Reply, Status, error) {
	req, exists := r.Get(id)
	if !exists {
		return nil, StatusFailed, ErrRequestNotFound
	}
	if !req.arrived() {
		return nil, StatusPending, nil
	}
	if _, ok := r.take(id); !ok {
		return nil, StatusFailed, ErrRequestNotFound
	}

	reply := req.reply
	if !reply.IsSuccess() {
		return reply, StatusFailed, reply.Err()
	}
	return reply, StatusArrived, nil
}

// Collect waits for the reply of a request. A zero timeout waits until the
// reply arrives. When the timeout elapses, Collect returns StatusTimeout and
// ErrTimeout; the request stays registered and can be collected later.
func (r *Registry) Collect(ctx context.Context, id ID, timeout time.Duration) (*wire.Reply, Status, error) {
	req, exists := r.Get(id)
	if !exists {
		return nil, StatusFailed, ErrRequestNotFound
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-req.done:
		return r.TryCollect(id)
	case <-deadline:
		return nil, StatusTimeout, ErrTimeout
	case <-ctx.Done():
		return nil, StatusPending, ctx.Err()
	}
}

// Get returns a registered request.
func (r *Registry) Get(id ID) (*Request, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, exists := r.requests[id]
	return req, exists
}

// PendingCount counts registered requests of the given mode.
func (r *Registry) PendingCount(mode Mode) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, req := range r.requests {
		if matchMode(req, mode) {
			n++
		}
	}
	return n
}

// Cancel removes every request of device, or all requests if device is "".
// It is used when a device proxy goes away. Callers blocked in Collect on a
// cancelled request get ErrRequestNotFound, and collectors recount.
func (r *Registry) Cancel(device string) int {
	device = wire.NormalizeName(device)

	r.mu.Lock()
	var cancelled []*Request
	for id, req := range r.requests {
		if device == "" || wire.NormalizeName(req.Device) == device {
			delete(r.requests, id)
			cancelled = append(cancelled, req)
		}
	}
	if len(cancelled) > 0 {
		close(r.arrival)
		r.arrival = make(chan struct{})
	}
	r.mu.Unlock()

	for _, req := range cancelled {
		req.setReply(wire.FailedReply(uint32(req.ID), wire.StatusDeviceUnreachable, ErrRequestNotFound))
	}
	return len(cancelled)
}

// Discard removes a request without collecting it, e.g. after its send
// failed. It reports whether the request was registered.
func (r *Registry) Discard(id ID) bool {
	_, ok := r.take(id)
	return ok
}

// take removes a request. Only one caller gets ok for a given request.
func (r *Registry) take(id ID) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, exists := r.requests[id]
	if exists {
		delete(r.requests, id)
	}
	return req, exists
}

// arrivalSignal returns a channel closed on the next arrival.
func (r *Registry) arrivalSignal() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.arrival
}

// callbackRequests returns the callback-mode requests in scope, split by
// arrival.
func (r *Registry) callbackRequests(device string) (arrived []*Request, pending int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, req := range r.requests {
		if !req.HasCallback() || !inScope(req, device) {
			continue
		}
		if req.arrived() {
			arrived = append(arrived, req)
		} else {
			pending++
		}
	}
	return arrived, pending
}

func (r *Registry) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

func matchMode(req *Request, mode Mode) bool {
	switch mode {
	case ModeCallback:
		return req.HasCallback()
	case ModePolling:
		return !req.HasCallback()
	default:
		return true
	}
}

// inScope reports whether req belongs to device; "" is the whole process.
func inScope(req *Request, device string) bool {
	return device == "" || wire.NormalizeName(req.Device) == device
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
