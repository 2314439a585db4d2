package programmer

import (
	"fmt"
	"time"

	isp "github.com/tocurd/go-avrisp"
)

// State is a step of the session state machine.
type State int32

const (
	StateIdle State = iota
	StateVerifying
	StateComparingFuses
	StateWritingFuses
	StateWritingFlash
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVerifying:
		return "verifying"
	case StateComparingFuses:
		return "comparing_fuses"
	case StateWritingFuses:
		return "writing_fuses"
	case StateWritingFlash:
		return "writing_flash"
	case StateReporting:
		return "reporting"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// FuseComparison is the outcome of comparing read fuses with the profile.
type FuseComparison int

const (
	FusesUnknown FuseComparison = iota
	FusesEqual
	FusesMismatch
)

func (c FuseComparison) String() string {
	switch c {
	case FusesEqual:
		return "equal"
	case FusesMismatch:
		return "mismatch"
	}
	return "unknown"
}

// Outcome of one write.
type Outcome int

const (
	Skipped Outcome = iota
	OK
	Failed
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Failed:
		return "failed"
	}
	return "skipped"
}

// SessionResult is produced once per activation and never modified after Report.
type SessionResult struct {
	ID        string
	ChipType  string
	StartedAt time.Time
	Duration  time.Duration

	Signature      string
	SignatureMatch bool

	FuseComparison FuseComparison
	FusesRead      isp.FuseValues
	FuseWrites     map[isp.Fuse]Outcome

	Flash      Outcome
	FlashBytes int

	// Failure tags the error that ended the session early, KindNone if every
	// stage ran. Fuse and flash write errors are stage-local and only show up
	// in FuseWrites and Flash.
	Failure isp.Kind
	Detail  string
}

// FuseStage summarises the fuse channel: OK when fuses already matched or
// every written byte verified.
func (r SessionResult) FuseStage() Outcome {
	if r.FuseComparison == FusesEqual {
		return OK
	}
	stage := Skipped
	for _, f := range isp.Fuses {
		switch r.FuseWrites[f] {
		case Failed:
			return Failed
		case OK:
			stage = OK
		}
	}
	return stage
}

// Passed reports whether the part ended up with the profile fuses and the image.
func (r SessionResult) Passed() bool {
	return r.Failure == isp.KindNone && r.FuseStage() == OK && r.Flash == OK
}
