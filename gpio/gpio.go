// Package gpio binds the programmer's button and lights to Linux GPIO lines
// through periph.io.
package gpio

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Init loads the host drivers. Call once before Open*.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("gpio host init: %w", err)
	}
	return nil
}

func lookup(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown gpio %q", name)
	}
	return p, nil
}

// Output is a push-pull output line.
type Output struct {
	pin gpio.PinIO
}

// OpenOutput configures name as an output driven low.
func OpenOutput(name string) (*Output, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("configure %s as output: %w", name, err)
	}
	return &Output{pin: p}, nil
}

// Out drives the line.
func (o *Output) Out(on bool) error {
	return o.pin.Out(gpio.Level(on))
}

// Input is a button line with pull-up and edge detection.
type Input struct {
	pin gpio.PinIO
}

// OpenInput configures name as a pulled-up input reporting both edges. The
// debounce logic filters by polarity afterwards.
func OpenInput(name string) (*Input, error) {
	p, err := lookup(name)
	if err != nil {
		return nil, err
	}
	if err := p.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configure %s as input: %w", name, err)
	}
	return &Input{pin: p}, nil
}

// Read samples the level.
func (i *Input) Read() bool {
	return bool(i.pin.Read())
}

// Watch calls notify for every edge until ctx is done. notify must not block.
func (i *Input) Watch(ctx context.Context, notify func()) {
	for ctx.Err() == nil {
		if i.pin.WaitForEdge(500 * time.Millisecond) {
			notify()
		}
	}
}

// Close stops edge detection.
func (i *Input) Close() error {
	return i.pin.In(gpio.PullUp, gpio.NoEdge)
}
