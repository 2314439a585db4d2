// Package indicator maps session outcomes onto the programmer's status lights.
package indicator

import (
	"sync"
	"time"
)

// Output drives one physical line (LED or switch).
type Output interface {
	Out(on bool) error
}

// Indicator is a named light: steady on/off or blinking. Fire-and-forget.
type Indicator interface {
	Set(on bool)
	Blink(on, off time.Duration)
}

// LED implements Indicator on an Output. Blinking runs on its own goroutine
// and is stopped by the next Set or Blink.
type LED struct {
	name string
	out  Output

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	on, off time.Duration // current blink periods
}

// NewLED returns an LED that starts switched off.
func NewLED(name string, out Output) *LED {
	l := &LED{name: name, out: out}
	l.Set(false)
	return l
}

// Name returns the indicator name.
func (l *LED) Name() string { return l.name }

// Set stops any blinking and drives a steady level.
func (l *LED) Set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopBlink()
	_ = l.out.Out(on)
}

// Blink toggles the LED until the next Set or Blink. Repeating the current
// blink keeps its phase.
func (l *LED) Blink(on, off time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stop != nil && l.on == on && l.off == off {
		return
	}
	l.stopBlink()
	stop, done := make(chan struct{}), make(chan struct{})
	l.stop, l.done = stop, done
	l.on, l.off = on, off
	go l.blink(on, off, stop, done)
}

func (l *LED) blink(on, off time.Duration, stop, done chan struct{}) {
	defer close(done)
	level := true
	for {
		_ = l.out.Out(level)
		d := off
		if level {
			d = on
		}
		select {
		case <-stop:
			return
		case <-time.After(d):
		}
		level = !level
	}
}

// stopBlink must be called with mu held.
func (l *LED) stopBlink() {
	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.done
	l.stop, l.done = nil, nil
}

// Blinking reports whether a blink is running.
func (l *LED) Blinking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stop != nil
}
