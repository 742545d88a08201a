package event

import (
	"math"
	"sync"
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Snapshot is the result of one poll of an attribute.
type Snapshot struct {
	Device string
	Name   string

	// Value is the reading; nil when Err is set.
	Value *wire.AttributeValue
	Err   error

	Props wire.EventProperties

	// Time is when the poll ran; zero means now.
	Time time.Time
}

// Detector turns poll snapshots into change, archive and periodic events.
//
// Change and archive events fire when the value moved by at least the
// absolute or relative threshold since the last event of that kind, when
// the shape or the quality changed, or on any difference if no threshold
// is set. Archive events also fire every ArchivePeriod regardless of change;
// that timer only restarts on its own emissions. Periodic events fire on
// every poll, or every PeriodicPeriod if set.
//
// A failing read yields one error event per kind at failure onset. A
// different failure reason is a new onset. The archive period keeps firing
// while failing. The first good read after a failure emits a value event
// for every kind.
type Detector struct {
	mu     sync.Mutex
	states map[objectKey]*objectState
}

type objectKey struct {
	device string
	name   string
}

type kindState struct {
	ref     *wire.AttributeValue
	lastAt  time.Time
	counter int64
}

type objectState struct {
	kinds map[wire.EventKind]*kindState

	seen         bool
	failing      bool
	failReason   string
	lastBackstop time.Time
	lastPeriodic time.Time
}

func (s *objectState) kind(k wire.EventKind) *kindState {
	ks, ok := s.kinds[k]
	if !ok {
		ks = &kindState{}
		s.kinds[k] = ks
	}
	return ks
}

// NewDetector creates a detector with no state.
func NewDetector() *Detector {
	return &Detector{states: make(map[objectKey]*objectState)}
}

func (d *Detector) state(device, name string) *objectState {
	key := objectKey{device: wire.NormalizeName(device), name: wire.NormalizeName(name)}
	st, ok := d.states[key]
	if !ok {
		st = &objectState{kinds: make(map[wire.EventKind]*kindState)}
		d.states[key] = st
	}
	return st
}

// Poll processes one snapshot and returns the events to publish.
func (d *Detector) Poll(s Snapshot) []*wire.EventMessage {
	now := s.Time
	if now.IsZero() {
		now = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.state(s.Device, s.Name)
	if !st.seen {
		st.seen = true
		st.lastBackstop = now
	}

	if s.Err != nil || s.Value == nil {
		return d.pollFailed(st, s, now)
	}

	recovered := st.failing
	st.failing = false
	st.failReason = ""

	var out []*wire.EventMessage
	emit := func(kind wire.EventKind, meta wire.EventMeta) {
		ks := st.kind(kind)
		ks.ref = s.Value.Copy()
		out = append(out, d.valueEvent(s, kind, ks, meta, now))
	}

	// change
	ks := st.kind(wire.EventChange)
	if ks.ref == nil && !recovered {
		ks.ref = s.Value.Copy()
	} else if meta, changed := compare(ks.ref, s.Value, s.Props.AbsChange, s.Props.RelChange); changed || recovered {
		emit(wire.EventChange, meta)
	}

	// archive
	ks = st.kind(wire.EventArchive)
	backstop := s.Props.ArchivePeriod > 0 && now.Sub(st.lastBackstop) >= s.Props.ArchivePeriod
	if backstop {
		st.lastBackstop = now
	}
	meta, changed := compare(ks.ref, s.Value, s.Props.ArchiveAbsChange, s.Props.ArchiveRelChange)
	switch {
	case ks.ref == nil && !recovered && !backstop:
		ks.ref = s.Value.Copy()
	case changed || recovered || backstop:
		emit(wire.EventArchive, meta)
	}

	// periodic
	if recovered || s.Props.PeriodicPeriod <= 0 || now.Sub(st.lastPeriodic) >= s.Props.PeriodicPeriod {
		st.lastPeriodic = now
		emit(wire.EventPeriodic, wire.EventMeta{Quality: s.Value.Quality})
	}

	return out
}

func (d *Detector) pollFailed(st *objectState, s Snapshot, now time.Time) []*wire.EventMessage {
	err := s.Err
	if err == nil {
		err = wire.NewDevFailed(wire.ReasonAttrValueNotSet, "no value read", s.Device)
	}
	errs := wire.ToDevErrors(err, s.Device)
	reason := ""
	if len(errs) > 0 {
		reason = errs[0].Reason
	}

	onset := !st.failing || st.failReason != reason
	st.failing = true
	st.failReason = reason

	backstop := s.Props.ArchivePeriod > 0 && now.Sub(st.lastBackstop) >= s.Props.ArchivePeriod
	if backstop {
		st.lastBackstop = now
	}

	var out []*wire.EventMessage
	if onset {
		for _, kind := range pollKinds {
			out = append(out, d.errorEvent(s.Device, s.Name, kind, st.kind(kind), errs, now))
		}
	} else if backstop {
		out = append(out, d.errorEvent(s.Device, s.Name, wire.EventArchive, st.kind(wire.EventArchive), errs, now))
	}
	return out
}

// PollingStopped returns error events for a polled attribute whose polling
// stopped. The next good poll is treated as a recovery.
func (d *Detector) PollingStopped(device, name string) []*wire.EventMessage {
	now := time.Now()
	errs := wire.NewDevFailed(wire.ReasonPollingStopped,
		"polling for attribute "+name+" is not running", device).Errors

	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.state(device, name)
	st.failing = true
	st.failReason = wire.ReasonPollingStopped

	out := make([]*wire.EventMessage, 0, len(pollKinds))
	for _, kind := range pollKinds {
		out = append(out, d.errorEvent(device, name, kind, st.kind(kind), errs, now))
	}
	return out
}

// Stamp sets the counter and delta_event metadata of a pushed event.
func (d *Detector) Stamp(msg *wire.EventMessage) {
	now := msg.Time
	if now.IsZero() {
		now = time.Now()
		msg.Time = now
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ks := d.state(msg.Device, msg.Name).kind(msg.Kind)
	ks.counter++
	msg.Meta.Counter = ks.counter
	msg.Meta.DeltaEvent = deltaEvent(ks.lastAt, now)
	ks.lastAt = now
	if msg.Value != nil {
		msg.Meta.Quality = msg.Value.Quality
	}
}

// Forget drops the state of one attribute.
func (d *Detector) Forget(device, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.states, objectKey{device: wire.NormalizeName(device), name: wire.NormalizeName(name)})
}

// Reset drops the state of every attribute of device.
func (d *Detector) Reset(device string) {
	device = wire.NormalizeName(device)

	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.states {
		if key.device == device {
			delete(d.states, key)
		}
	}
}

var pollKinds = []wire.EventKind{wire.EventChange, wire.EventPeriodic, wire.EventArchive}

func (d *Detector) valueEvent(s Snapshot, kind wire.EventKind, ks *kindState, meta wire.EventMeta, now time.Time) *wire.EventMessage {
	ks.counter++
	meta.Counter = ks.counter
	meta.DeltaEvent = deltaEvent(ks.lastAt, now)
	meta.Quality = s.Value.Quality
	ks.lastAt = now

	return &wire.EventMessage{
		Device: s.Device,
		Name:   s.Name,
		Kind:   kind,
		Time:   now,
		Value:  s.Value.Copy(),
		Meta:   meta,
	}
}

func (d *Detector) errorEvent(device, name string, kind wire.EventKind, ks *kindState, errs []wire.DevError, now time.Time) *wire.EventMessage {
	ks.counter++
	meta := wire.EventMeta{
		Counter:    ks.counter,
		DeltaEvent: deltaEvent(ks.lastAt, now),
		Quality:    wire.QualityInvalid,
	}
	ks.lastAt = now

	return &wire.EventMessage{
		Device: device,
		Name:   name,
		Kind:   kind,
		Time:   now,
		Errors: append([]wire.DevError(nil), errs...),
		Meta:   meta,
	}
}

func deltaEvent(last, now time.Time) float64 {
	if last.IsZero() {
		return 0
	}
	return float64(now.Sub(last)) / float64(time.Millisecond)
}

// compare reports whether cur differs from ref enough to fire an event.
// The returned meta holds the largest absolute and relative deltas.
func compare(ref, cur *wire.AttributeValue, abs, rel float64) (wire.EventMeta, bool) {
	var meta wire.EventMeta
	if ref == nil {
		return meta, true
	}

	prev, prevNum := wire.Numbers(ref.Value)
	next, nextNum := wire.Numbers(cur.Value)
	if !prevNum || !nextNum {
		return meta, ref.Quality != cur.Quality || !wire.Equal(ref.Value, cur.Value)
	}

	changed := ref.Quality != cur.Quality || len(prev) != len(next)
	for i := 0; i < len(prev) && i < len(next); i++ {
		delta := next[i] - prev[i]
		relDelta := relative(prev[i], delta)
		if math.Abs(delta) > math.Abs(meta.DeltaChangeAbs) {
			meta.DeltaChangeAbs = delta
		}
		if math.Abs(relDelta) > math.Abs(meta.DeltaChangeRel) {
			meta.DeltaChangeRel = relDelta
		}

		switch {
		case abs <= 0 && rel <= 0:
			changed = changed || delta != 0
		case abs > 0 && math.Abs(delta) >= abs:
			changed = true
		case rel > 0 && math.Abs(relDelta) >= rel:
			changed = true
		}
	}
	return meta, changed
}

// relative returns delta as a percentage of base.
func relative(base, delta float64) float64 {
	if base == 0 {
		if delta == 0 {
			return 0
		}
		return math.Copysign(100, delta)
	}
	return delta / math.Abs(base) * 100
}
