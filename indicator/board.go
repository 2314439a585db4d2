package indicator

import (
	"time"

	isp "github.com/tocurd/go-avrisp"
	"github.com/tocurd/go-avrisp/programmer"
)

// Mode of a single indicator in a pattern.
type Mode int

const (
	Off Mode = iota
	Steady
	Blinking
)

// Signal is how one indicator shows a result.
type Signal struct {
	Mode    Mode
	On, Off time.Duration
}

var (
	dark      = Signal{}
	lit       = Signal{Mode: Steady}
	slowBlink = Signal{Mode: Blinking, On: 500 * time.Millisecond, Off: 500 * time.Millisecond}
	fastBlink = Signal{Mode: Blinking, On: 150 * time.Millisecond, Off: 150 * time.Millisecond}
)

// Pattern is the state of the four result indicators after a session.
type Pattern struct {
	FusePass, FuseFail   Signal
	FlashPass, FlashFail Signal
}

// failurePatterns distinguishes every session-terminal failure.
var failurePatterns = map[isp.Kind]Pattern{
	isp.KindDeviceNotResponding: {FuseFail: slowBlink},
	isp.KindSignatureRead:       {FlashFail: slowBlink},
	isp.KindSignatureMismatch:   {FusePass: slowBlink},
	isp.KindHardwareAccess:      {FuseFail: fastBlink, FlashFail: fastBlink},
	isp.KindFuseRead:            {FuseFail: lit, FlashFail: lit},
	isp.KindFuseFormat:          {FuseFail: lit, FlashFail: lit},
	isp.KindTool:                {FuseFail: lit, FlashFail: lit},
}

// PatternFor maps a session result to indicator signals.
func PatternFor(res programmer.SessionResult) Pattern {
	if res.Failure != isp.KindNone {
		if p, ok := failurePatterns[res.Failure]; ok {
			return p
		}
		return failurePatterns[isp.KindTool]
	}
	var p Pattern
	switch res.FuseStage() {
	case programmer.OK:
		p.FusePass = lit
	case programmer.Failed:
		p.FuseFail = lit
	}
	switch res.Flash {
	case programmer.OK:
		p.FlashPass = lit
	case programmer.Failed:
		p.FlashFail = lit
	}
	return p
}

// Board is the set of status lights plus the target buffer switch.
type Board struct {
	Ready        Indicator
	Programming  Indicator
	FusePass     Indicator
	FuseFail     Indicator
	FlashPass    Indicator
	FlashFail    Indicator
	BufferSwitch Indicator // connects the programming lines to the target
}

var _ programmer.Reporter = (*Board)(nil)

func (b *Board) results() []Indicator {
	return []Indicator{b.FusePass, b.FuseFail, b.FlashPass, b.FlashFail}
}

// Begin clears the last result and shows a session in progress.
func (b *Board) Begin() {
	for _, ind := range b.results() {
		ind.Set(false)
	}
	b.Programming.Set(true)
	b.BufferSwitch.Set(true)
}

// Report ends the session display and shows the result.
func (b *Board) Report(res programmer.SessionResult) {
	b.BufferSwitch.Set(false)
	b.Programming.Set(false)
	p := PatternFor(res)
	apply(b.FusePass, p.FusePass)
	apply(b.FuseFail, p.FuseFail)
	apply(b.FlashPass, p.FlashPass)
	apply(b.FlashFail, p.FlashFail)
}

// SetReady shows the readiness flag: steady when ready, blinking otherwise.
func (b *Board) SetReady(ready bool) {
	if ready {
		b.Ready.Set(true)
		return
	}
	b.Ready.Blink(slowBlink.On, slowBlink.Off)
}

// Clear switches everything off.
func (b *Board) Clear() {
	for _, ind := range append(b.results(), b.Ready, b.Programming, b.BufferSwitch) {
		ind.Set(false)
	}
}

func apply(ind Indicator, s Signal) {
	switch s.Mode {
	case Steady:
		ind.Set(true)
	case Blinking:
		ind.Blink(s.On, s.Off)
	default:
		ind.Set(false)
	}
}
