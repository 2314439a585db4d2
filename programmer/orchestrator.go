// Package programmer sequences one device session per button activation:
// signature check, fuse reconciliation, flash write, report.
package programmer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	isp "github.com/tocurd/go-avrisp"
	"github.com/tocurd/go-avrisp/trigger"
)

// Readiness supplies the current profile and image as one consistent pair.
type Readiness interface {
	Current() (profile isp.DeviceProfile, image isp.FirmwareImage, ready bool)
}

// Reporter drives the indicators. Begin clears the previous session.
type Reporter interface {
	Begin()
	Report(SessionResult)
}

// Recorder keeps an outcome record of each session (telemetry, traceability).
type Recorder interface {
	Record(ctx context.Context, r SessionResult) error
}

// DriverFactory builds a protocol driver for the profile's chip type.
type DriverFactory func(profile isp.DeviceProfile) isp.Interface

// Orchestrator runs sessions one at a time. Activations that arrive while a
// session is in flight are dropped, not queued.
type Orchestrator struct {
	readiness  Readiness
	newDriver  DriverFactory
	reporter   Reporter
	recorders  []Recorder
	settle     time.Duration
	logger     isp.Logger
	now        func() time.Time
	activation chan trigger.Event

	state   atomic.Int32
	ignored atomic.Uint32
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettleDelay sets the pause between avrdude invocations (default 100ms).
func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.settle = d
		}
	}
}

// WithRecorder adds a session recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l isp.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator.
func New(readiness Readiness, newDriver DriverFactory, reporter Reporter, opts ...Option) *Orchestrator {
	if readiness == nil || newDriver == nil || reporter == nil {
		panic("programmer: readiness, driver factory and reporter are required")
	}
	o := &Orchestrator{
		readiness:  readiness,
		newDriver:  newDriver,
		reporter:   reporter,
		settle:     100 * time.Millisecond,
		logger:     isp.NopLogger{},
		now:        time.Now,
		activation: make(chan trigger.Event),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Ignored returns how many activations were dropped while busy or not ready.
func (o *Orchestrator) Ignored() uint32 { return o.ignored.Load() }

// Activate is the trigger callback. It hands the event to Run if Run is idle
// and drops it otherwise; it never blocks.
func (o *Orchestrator) Activate(ev trigger.Event) {
	select {
	case o.activation <- ev:
	default:
		o.ignored.Add(1)
		o.logger.Debug("activation ignored, session in flight", "state", o.State().String())
	}
}

// Run waits for activations until ctx is done. A session that has started
// is finished even if ctx is cancelled meanwhile.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.activation:
			profile, image, ready := o.readiness.Current()
			if !ready {
				o.ignored.Add(1)
				o.logger.Info("activation ignored, not ready")
				continue
			}
			o.logger.Info("begin programming", "pressed_at", ev.At.Format(time.RFC3339Nano))
			o.RunSession(context.WithoutCancel(ctx), profile, image)
		}
	}
}

// RunSession performs one complete session and always reaches Reporting.
func (o *Orchestrator) RunSession(ctx context.Context, profile isp.DeviceProfile, image isp.FirmwareImage) (res SessionResult) {
	res = SessionResult{
		ID:         uuid.NewString(),
		ChipType:   profile.ChipType,
		StartedAt:  o.now(),
		FuseWrites: map[isp.Fuse]Outcome{},
	}
	o.reporter.Begin()

	defer func() {
		if p := recover(); p != nil {
			o.fail(&res, fmt.Errorf("session panic: %v", p))
		}
		res.Duration = o.now().Sub(res.StartedAt)
		o.setState(StateReporting)
		o.reporter.Report(res)
		for _, r := range o.recorders {
			if err := r.Record(ctx, res); err != nil {
				o.logger.Error("session record failed", "session", res.ID, "error", err)
			}
		}
		o.logger.Info("session done",
			"session", res.ID,
			"passed", res.Passed(),
			"failure", res.Failure.String(),
			"fuses", res.FuseStage().String(),
			"flash", res.Flash.String(),
			"elapsed", res.Duration.String(),
		)
		o.setState(StateIdle)
	}()

	drv := o.newDriver(profile)

	// Verifying
	o.setState(StateVerifying)
	sig, err := drv.VerifySignature(ctx)
	res.Signature = sig
	if err != nil {
		o.fail(&res, err)
		return res
	}
	res.SignatureMatch = true
	o.logger.Info("device signature verified", "signature", sig)

	// ComparingFuses
	o.pause()
	o.setState(StateComparingFuses)
	read, err := drv.ReadFuses(ctx)
	if err != nil {
		o.fail(&res, err)
		return res
	}
	res.FusesRead = read
	diff := read.Diff(profile.Fuses)
	o.logger.Info("device fuses read", "fuses", read.String(), "same", len(diff) == 0)

	// WritingFuses
	if len(diff) == 0 {
		res.FuseComparison = FusesEqual
	} else {
		res.FuseComparison = FusesMismatch
		o.pause()
		o.setState(StateWritingFuses)
		err := drv.WriteFuses(ctx, diff)
		var fwe *isp.FuseWriteError
		switch {
		case err == nil:
			for f := range diff {
				res.FuseWrites[f] = OK
			}
		case errors.As(err, &fwe):
			for f := range diff {
				res.FuseWrites[f] = OK
			}
			for _, f := range fwe.Failed {
				res.FuseWrites[f] = Failed
			}
			o.logger.Error("fuse write failed, continuing with flash", "error", err)
		default:
			for f := range diff {
				res.FuseWrites[f] = Failed
			}
			o.fail(&res, err)
			return res
		}
	}

	// WritingFlash
	o.pause()
	o.setState(StateWritingFlash)
	n, err := drv.WriteFlash(ctx, image)
	if err != nil {
		res.Flash = Failed
		if isp.KindOf(err) != isp.KindFlashWrite {
			o.fail(&res, err)
			return res
		}
		res.Detail = err.Error()
		o.logger.Error("flash write failed", "error", err)
		return res
	}
	res.Flash = OK
	res.FlashBytes = n
	return res
}

// fail marks the session as ended early by err.
func (o *Orchestrator) fail(res *SessionResult, err error) {
	res.Failure = isp.KindOf(err)
	res.Detail = err.Error()
	o.logger.Error("session aborted", "state", o.State().String(), "kind", res.Failure.String(), "error", err)
}

// pause lets the programming interface quiesce between invocations.
func (o *Orchestrator) pause() {
	if o.settle > 0 {
		time.Sleep(o.settle)
	}
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}
