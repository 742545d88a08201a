package polling

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Polling errors.
var (
	ErrInvalidPeriod = errors.New("invalid polling period")
	ErrAlreadyPolled = errors.New("object already polled")
	ErrNotPolled     = errors.New("object not polled")
	ErrClosed        = errors.New("polling bridge closed")
)

// MinPeriod is the shortest accepted polling period.
const MinPeriod = 10 * time.Millisecond

// Key identifies a polled object. Names are normalized.
type Key struct {
	Device string
	Name   string
}

// NewKey returns the normalized key of (device, name).
func NewKey(device, name string) Key {
	return Key{Device: wire.NormalizeName(device), Name: wire.NormalizeName(name)}
}

// Cycle is a snapshot of one poll cycle.
type Cycle struct {
	Key     Key
	Command bool
	Period  time.Duration

	// LastFire is the start of the latest tick; zero before the first tick.
	LastFire time.Time

	// NextFire is when the pending tick is due; zero while a tick runs.
	NextFire time.Time

	Ticks uint64
}

// TickFunc is called for every tick. Ticks of one cycle never overlap.
type TickFunc func(c Cycle)

// StopFunc is called after a cycle was stopped.
type StopFunc func(key Key, command bool)

type cycle struct {
	Cycle
	timer   *time.Timer
	gen     uint64
	running bool
	stopped bool
}

func (c *cycle) snapshot() Cycle {
	return c.Cycle
}

// Bridge manages poll cycles.
type Bridge struct {
	mu sync.Mutex

	cycles map[Key]*cycle
	closed bool

	onTick TickFunc
	onStop StopFunc
}

// NewBridge creates a bridge that calls onTick on every tick.
func NewBridge(onTick TickFunc) *Bridge {
	return &Bridge{
		cycles: make(map[Key]*cycle),
		onTick: onTick,
	}
}

// OnStop sets the hook called when a cycle is stopped.
func (b *Bridge) OnStop(fn StopFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStop = fn
}

// Add starts polling an object that is not polled yet.
func (b *Bridge) Add(device, name string, command bool, period time.Duration) error {
	if period < MinPeriod {
		return ErrInvalidPeriod
	}
	key := NewKey(device, name)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, exists := b.cycles[key]; exists {
		return ErrAlreadyPolled
	}
	b.startLocked(key, command, period)
	return nil
}

// SetPeriod sets the polling period of an attribute, starting to poll it if
// needed. Calling it again with the same period has no effect.
func (b *Bridge) SetPeriod(device, name string, period time.Duration) error {
	return b.setPeriod(NewKey(device, name), false, period, true)
}

// Update changes the period of an already polled object.
func (b *Bridge) Update(device, name string, period time.Duration) error {
	return b.setPeriod(NewKey(device, name), false, period, false)
}

func (b *Bridge) setPeriod(key Key, command bool, period time.Duration, create bool) error {
	if period < MinPeriod {
		return ErrInvalidPeriod
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	c, exists := b.cycles[key]
	if !exists {
		if !create {
			return ErrNotPolled
		}
		b.startLocked(key, command, period)
		return nil
	}
	if c.Period == period {
		return nil
	}
	c.Period = period
	if c.running {
		// Rescheduled with the new period when the tick returns.
		return nil
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	b.scheduleLocked(c, c.delayFrom(c.LastFire))
	return nil
}

// Stop stops polling an object and calls the stop hook.
func (b *Bridge) Stop(device, name string) error {
	key := NewKey(device, name)

	b.mu.Lock()
	c, exists := b.cycles[key]
	if !exists {
		b.mu.Unlock()
		return ErrNotPolled
	}
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
	}
	delete(b.cycles, key)
	hook := b.onStop
	b.mu.Unlock()

	if hook != nil {
		hook(key, c.Command)
	}
	return nil
}

// Period returns the polling period of an object.
func (b *Bridge) Period(device, name string) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, exists := b.cycles[NewKey(device, name)]
	if !exists {
		return 0, false
	}
	return c.Period, true
}

// Get returns a snapshot of one cycle.
func (b *Bridge) Get(device, name string) (Cycle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, exists := b.cycles[NewKey(device, name)]
	if !exists {
		return Cycle{}, false
	}
	return c.snapshot(), true
}

// Cycles returns snapshots of the cycles of device, or of all devices
// if device is empty, sorted by key.
func (b *Bridge) Cycles(device string) []Cycle {
	device = wire.NormalizeName(device)

	b.mu.Lock()
	result := make([]Cycle, 0, len(b.cycles))
	for key, c := range b.cycles {
		if device == "" || key.Device == device {
			result = append(result, c.snapshot())
		}
	}
	b.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Key.Device != result[j].Key.Device {
			return result[i].Key.Device < result[j].Key.Device
		}
		return result[i].Key.Name < result[j].Key.Name
	})
	return result
}

// Devices returns the names of devices with at least one polled object.
func (b *Bridge) Devices() []string {
	b.mu.Lock()
	seen := make(map[string]bool)
	for key := range b.cycles {
		seen[key.Device] = true
	}
	b.mu.Unlock()

	devices := make([]string, 0, len(seen))
	for d := range seen {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	return devices
}

// Close stops all cycles without calling the stop hook.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for key, c := range b.cycles {
		c.stopped = true
		if c.timer != nil {
			c.timer.Stop()
		}
		delete(b.cycles, key)
	}
}

func (b *Bridge) startLocked(key Key, command bool, period time.Duration) {
	c := &cycle{Cycle: Cycle{Key: key, Command: command, Period: period}}
	b.cycles[key] = c
	b.scheduleLocked(c, 0)
}

func (b *Bridge) scheduleLocked(c *cycle, delay time.Duration) {
	c.gen++
	gen := c.gen
	c.NextFire = time.Now().Add(delay)
	c.timer = time.AfterFunc(delay, func() {
		b.fire(c, gen)
	})
}

func (b *Bridge) fire(c *cycle, gen uint64) {
	b.mu.Lock()
	if c.stopped || b.closed || c.gen != gen {
		b.mu.Unlock()
		return
	}
	c.timer = nil
	c.running = true
	c.LastFire = time.Now()
	c.NextFire = time.Time{}
	c.Ticks++
	snap := c.snapshot()
	onTick := b.onTick
	b.mu.Unlock()

	// Tick handler runs outside the lock
	if onTick != nil {
		onTick(snap)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	c.running = false
	if c.stopped || b.closed {
		return
	}
	b.scheduleLocked(c, c.delayFrom(c.LastFire))
}

// delayFrom returns the delay until base + period, never negative.
func (c *cycle) delayFrom(base time.Time) time.Duration {
	if base.IsZero() {
		return 0
	}
	d := time.Until(base.Add(c.Period))
	if d < 0 {
		return 0
	}
	return d
}
