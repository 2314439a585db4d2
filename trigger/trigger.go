// Package trigger turns noisy edges on a push button into single activations.
//
// All debounce state is owned by one goroutine. Raw edges reach it through a
// buffered channel and the settle timer through its own channel, so the
// "settle pending" flag and the latched level never need a lock.
package trigger

import (
	"context"
	"sync/atomic"
	"time"
)

// Edge is the polarity an activation must settle on.
type Edge uint8

const (
	EdgeRising Edge = iota + 1
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	}
	return "none"
}

// accepts reports whether a settled level satisfies the polarity.
func (e Edge) accepts(level bool) bool {
	switch e {
	case EdgeRising:
		return level
	case EdgeFalling:
		return !level
	case EdgeBoth:
		return true
	}
	return false
}

// Pin samples the input level.
type Pin interface {
	Read() bool
}

// Event is handed to the callback. It describes the first edge of the burst.
type Event struct {
	Level bool
	At    time.Time
}

// Trigger debounces one input.
type Trigger struct {
	pin    Pin
	edge   Edge
	settle time.Duration
	fn     func(Event)

	raw   chan Event
	drops uint32 // raw edges dropped: queue full, or queued during a settle cycle
	fired uint32

	// owned by the run goroutine
	pending   bool
	latched   bool
	first     Event
	timerC    <-chan time.Time
	stopTimer func() bool

	newTimer func(time.Duration) (<-chan time.Time, func() bool)
}

// Option configures a Trigger.
type Option func(*Trigger)

// WithQueue sets the raw edge queue length (default 16).
func WithQueue(n int) Option {
	return func(t *Trigger) {
		if n > 0 {
			t.raw = make(chan Event, n)
		}
	}
}

// WithTimer replaces the settle timer factory, for tests.
func WithTimer(f func(time.Duration) (<-chan time.Time, func() bool)) Option {
	return func(t *Trigger) {
		if f != nil {
			t.newTimer = f
		}
	}
}

func realTimer(d time.Duration) (<-chan time.Time, func() bool) {
	tm := time.NewTimer(d)
	return tm.C, tm.Stop
}

// New builds a Trigger without starting it. fn runs on the trigger goroutine
// and must not block: edges arriving meanwhile are dropped.
func New(pin Pin, edge Edge, settle time.Duration, fn func(Event), opts ...Option) *Trigger {
	t := &Trigger{
		pin:      pin,
		edge:     edge,
		settle:   settle,
		fn:       fn,
		raw:      make(chan Event, 16),
		newTimer: realTimer,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Arm builds a Trigger and starts monitoring until ctx is done.
func Arm(ctx context.Context, pin Pin, edge Edge, settle time.Duration, fn func(Event), opts ...Option) *Trigger {
	t := New(pin, edge, settle, fn, opts...)
	go t.Run(ctx)
	return t
}

// Notify reports a raw edge. It never blocks and is safe from any goroutine.
func (t *Trigger) Notify() {
	select {
	case t.raw <- Event{At: time.Now()}:
	default:
		atomic.AddUint32(&t.drops, 1)
	}
}

// Run processes edges and settle timeouts until ctx is done.
func (t *Trigger) Run(ctx context.Context) {
	defer func() {
		if t.stopTimer != nil {
			t.stopTimer()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-t.raw:
			t.onEdge(ev)
		case <-t.timerC:
			t.onSettle()
		}
	}
}

// onEdge starts a settle cycle unless one is already pending.
func (t *Trigger) onEdge(ev Event) {
	if t.pending {
		return
	}
	t.pending = true
	t.latched = t.pin.Read()
	ev.Level = t.latched
	t.first = ev
	t.timerC, t.stopTimer = t.newTimer(t.settle)
}

// onSettle re-samples the pin and fires if the level held and matches the edge.
func (t *Trigger) onSettle() {
	t.timerC, t.stopTimer = nil, nil
	level := t.pin.Read()
	if level == t.latched && t.edge.accepts(level) {
		atomic.AddUint32(&t.fired, 1)
		t.fn(t.first)
	}
	t.latched = level
	t.drain()
	t.pending = false
}

// drain discards edges queued while the cycle was pending.
func (t *Trigger) drain() {
	for {
		select {
		case <-t.raw:
			atomic.AddUint32(&t.drops, 1)
		default:
			return
		}
	}
}

// Drops returns the number of raw edges that never started a settle cycle.
func (t *Trigger) Drops() uint32 { return atomic.LoadUint32(&t.drops) }

// Fired returns the number of activations delivered.
func (t *Trigger) Fired() uint32 { return atomic.LoadUint32(&t.fired) }
