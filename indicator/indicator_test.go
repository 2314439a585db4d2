package indicator

import (
	"sync"
	"testing"
	"time"

	isp "github.com/tocurd/go-avrisp"
	"github.com/tocurd/go-avrisp/programmer"
)

// fakeIndicator remembers the last command.
type fakeIndicator struct {
	signal Signal
}

func (f *fakeIndicator) Set(on bool) {
	if on {
		f.signal = lit
	} else {
		f.signal = dark
	}
}

func (f *fakeIndicator) Blink(on, off time.Duration) {
	f.signal = Signal{Mode: Blinking, On: on, Off: off}
}

func newFakeBoard() (*Board, map[string]*fakeIndicator) {
	m := map[string]*fakeIndicator{}
	for _, n := range []string{"ready", "programming", "fuse_pass", "fuse_fail", "flash_pass", "flash_fail", "buffer"} {
		m[n] = &fakeIndicator{}
	}
	return &Board{
		Ready:        m["ready"],
		Programming:  m["programming"],
		FusePass:     m["fuse_pass"],
		FuseFail:     m["fuse_fail"],
		FlashPass:    m["flash_pass"],
		FlashFail:    m["flash_fail"],
		BufferSwitch: m["buffer"],
	}, m
}

func TestPatternFor(t *testing.T) {
	tests := []struct {
		name string
		res  programmer.SessionResult
		want Pattern
	}{
		{
			name: "all passed, fuses equal",
			res:  programmer.SessionResult{FuseComparison: programmer.FusesEqual, Flash: programmer.OK},
			want: Pattern{FusePass: lit, FlashPass: lit},
		},
		{
			name: "fuse failed, flash ok",
			res: programmer.SessionResult{
				FuseComparison: programmer.FusesMismatch,
				FuseWrites:     map[isp.Fuse]programmer.Outcome{isp.FuseHigh: programmer.Failed, isp.FuseLow: programmer.OK},
				Flash:          programmer.OK,
			},
			want: Pattern{FuseFail: lit, FlashPass: lit},
		},
		{
			name: "flash failed",
			res:  programmer.SessionResult{FuseComparison: programmer.FusesEqual, Flash: programmer.Failed},
			want: Pattern{FusePass: lit, FlashFail: lit},
		},
		{
			name: "device not responding",
			res:  programmer.SessionResult{Failure: isp.KindDeviceNotResponding},
			want: Pattern{FuseFail: slowBlink},
		},
		{
			name: "signature read",
			res:  programmer.SessionResult{Failure: isp.KindSignatureRead},
			want: Pattern{FlashFail: slowBlink},
		},
		{
			name: "signature mismatch",
			res:  programmer.SessionResult{Failure: isp.KindSignatureMismatch},
			want: Pattern{FusePass: slowBlink},
		},
		{
			name: "hardware access",
			res:  programmer.SessionResult{Failure: isp.KindHardwareAccess},
			want: Pattern{FuseFail: fastBlink, FlashFail: fastBlink},
		},
		{
			name: "unlisted failure falls back to tool pattern",
			res:  programmer.SessionResult{Failure: isp.KindFlashWrite},
			want: Pattern{FuseFail: lit, FlashFail: lit},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PatternFor(tt.res); got != tt.want {
				t.Errorf("pattern = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFailurePatternsAreDistinct(t *testing.T) {
	seen := map[Pattern]isp.Kind{}
	for _, k := range []isp.Kind{isp.KindDeviceNotResponding, isp.KindSignatureRead, isp.KindSignatureMismatch, isp.KindHardwareAccess} {
		p := failurePatterns[k]
		if other, dup := seen[p]; dup {
			t.Errorf("%v and %v share a pattern", k, other)
		}
		seen[p] = k
	}
}

func TestBoardSession(t *testing.T) {
	b, m := newFakeBoard()
	m["fuse_fail"].signal = slowBlink // left over from the previous session

	b.Begin()
	if m["fuse_fail"].signal != dark {
		t.Error("stale result indicator not cleared")
	}
	if m["programming"].signal != lit || m["buffer"].signal != lit {
		t.Error("programming indicator or buffer switch not on during session")
	}

	b.Report(programmer.SessionResult{Failure: isp.KindSignatureMismatch})
	if m["programming"].signal != dark || m["buffer"].signal != dark {
		t.Error("programming indicator or buffer switch left on")
	}
	if m["fuse_pass"].signal != slowBlink {
		t.Errorf("fuse_pass = %+v", m["fuse_pass"].signal)
	}
}

func TestBoardReady(t *testing.T) {
	b, m := newFakeBoard()
	b.SetReady(false)
	if m["ready"].signal.Mode != Blinking {
		t.Error("ready indicator should blink when not ready")
	}
	b.SetReady(true)
	if m["ready"].signal != lit {
		t.Error("ready indicator should be steady on")
	}
	b.Clear()
	for name, ind := range m {
		if ind.signal != dark {
			t.Errorf("%s still on after Clear", name)
		}
	}
}

type recordingOutput struct {
	mu     sync.Mutex
	levels []bool
}

func (r *recordingOutput) Out(on bool) error {
	r.mu.Lock()
	r.levels = append(r.levels, on)
	r.mu.Unlock()
	return nil
}

func (r *recordingOutput) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.levels...)
}

func TestLEDBlinkAndSet(t *testing.T) {
	out := &recordingOutput{}
	led := NewLED("ready", out)

	led.Blink(5*time.Millisecond, 5*time.Millisecond)
	if !led.Blinking() {
		t.Fatal("not blinking")
	}
	time.Sleep(60 * time.Millisecond)
	led.Set(true)
	if led.Blinking() {
		t.Error("Set did not stop blinking")
	}

	levels := out.snapshot()
	toggles := 0
	for i := 1; i < len(levels); i++ {
		if levels[i] != levels[i-1] {
			toggles++
		}
	}
	if toggles < 3 {
		t.Errorf("only %d toggles while blinking: %v", toggles, levels)
	}
	if !levels[len(levels)-1] {
		t.Error("last level should be on after Set(true)")
	}
}

func TestLEDRepeatBlinkKeepsRunning(t *testing.T) {
	led := NewLED("ready", &recordingOutput{})
	led.Blink(time.Second, time.Second)
	stop := led.stop
	led.Blink(time.Second, time.Second)
	if led.stop != stop {
		t.Error("identical blink restarted")
	}
	led.Blink(time.Second, 2*time.Second)
	if led.stop == stop {
		t.Error("new blink periods not applied")
	}
	led.Set(false)
}
