package programmer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	isp "github.com/tocurd/go-avrisp"
	"github.com/tocurd/go-avrisp/trigger"
)

type fakeDriver struct {
	mu         sync.Mutex
	calls      []string
	sigErr     error
	fuses      isp.FuseValues
	readErr    error
	writeErr   error
	written    []isp.FuseValues
	flashBytes int
	flashErr   error
	block      chan struct{}
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *fakeDriver) VerifySignature(ctx context.Context) (string, error) {
	d.record("verify")
	if d.block != nil {
		<-d.block
	}
	if d.sigErr != nil {
		return "", d.sigErr
	}
	return "1e950f", nil
}

func (d *fakeDriver) ReadFuses(ctx context.Context) (isp.FuseValues, error) {
	d.record("read")
	return d.fuses, d.readErr
}

func (d *fakeDriver) WriteFuses(ctx context.Context, fuses isp.FuseValues) error {
	d.record("write")
	d.written = append(d.written, fuses)
	return d.writeErr
}

func (d *fakeDriver) WriteFlash(ctx context.Context, image isp.FirmwareImage) (int, error) {
	d.record("flash")
	return d.flashBytes, d.flashErr
}

func (d *fakeDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type fakeReporter struct {
	mu      sync.Mutex
	begins  int
	results []SessionResult
	done    chan SessionResult
}

func (r *fakeReporter) Begin() {
	r.mu.Lock()
	r.begins++
	r.mu.Unlock()
}

func (r *fakeReporter) Report(res SessionResult) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- res
	}
}

type fakeReadiness struct {
	profile isp.DeviceProfile
	image   isp.FirmwareImage
	ready   bool
}

func (f fakeReadiness) Current() (isp.DeviceProfile, isp.FirmwareImage, bool) {
	return f.profile, f.image, f.ready
}

type fakeRecorder struct{ records []SessionResult }

func (f *fakeRecorder) Record(ctx context.Context, r SessionResult) error {
	f.records = append(f.records, r)
	return errors.New("broker down")
}

var (
	testProfile = isp.DeviceProfile{
		ChipType: "m328p",
		Fuses:    isp.FuseValues{isp.FuseExtended: "FD", isp.FuseHigh: "DE", isp.FuseLow: "FF"},
	}
	testImage = isp.FirmwareImage{Path: "/media/usb/firmware.hex", Size: 2048}
)

func newTestOrchestrator(d *fakeDriver, rep *fakeReporter, ready bool, opts ...Option) *Orchestrator {
	opts = append([]Option{WithSettleDelay(0)}, opts...)
	return New(fakeReadiness{profile: testProfile, image: testImage, ready: ready},
		func(isp.DeviceProfile) isp.Interface { return d }, rep, opts...)
}

func equalCalls(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSessionFusesAlreadyMatch(t *testing.T) {
	d := &fakeDriver{fuses: isp.FuseValues{isp.FuseExtended: "fd", isp.FuseHigh: "DE", isp.FuseLow: "FF"}, flashBytes: 32768}
	rep := &fakeReporter{}
	res := newTestOrchestrator(d, rep, true).RunSession(context.Background(), testProfile, testImage)

	if got := d.Calls(); !equalCalls(got, []string{"verify", "read", "flash"}) {
		t.Errorf("calls = %v, write_fuses must not be invoked", got)
	}
	if res.FuseComparison != FusesEqual || res.FuseStage() != OK {
		t.Errorf("fuse comparison = %v, stage = %v", res.FuseComparison, res.FuseStage())
	}
	if !res.Passed() || res.FlashBytes != 32768 {
		t.Errorf("result = %+v", res)
	}
	if rep.begins != 1 || len(rep.results) != 1 {
		t.Errorf("reporter begins=%d reports=%d", rep.begins, len(rep.results))
	}
}

func TestSessionWritesOnlyMismatchedFuses(t *testing.T) {
	d := &fakeDriver{fuses: isp.FuseValues{isp.FuseExtended: "FF", isp.FuseHigh: "D9", isp.FuseLow: "FF"}, flashBytes: 100}
	res := newTestOrchestrator(d, &fakeReporter{}, true).RunSession(context.Background(), testProfile, testImage)

	if len(d.written) != 1 {
		t.Fatalf("write_fuses invoked %d times", len(d.written))
	}
	w := d.written[0]
	if len(w) != 2 || w[isp.FuseExtended] != "FD" || w[isp.FuseHigh] != "DE" {
		t.Errorf("written = %v, want E=FD H=DE", w)
	}
	if res.FuseWrites[isp.FuseLow] != Skipped || res.FuseWrites[isp.FuseHigh] != OK {
		t.Errorf("fuse writes = %v", res.FuseWrites)
	}
	if !res.Passed() {
		t.Errorf("session should pass: %+v", res)
	}
}

func TestSessionFuseWriteFailureStillFlashes(t *testing.T) {
	d := &fakeDriver{
		fuses:      isp.FuseValues{isp.FuseExtended: "00", isp.FuseHigh: "00", isp.FuseLow: "00"},
		writeErr:   &isp.FuseWriteError{Failed: []isp.Fuse{isp.FuseHigh}},
		flashBytes: 32768,
	}
	res := newTestOrchestrator(d, &fakeReporter{}, true).RunSession(context.Background(), testProfile, testImage)

	if got := d.Calls(); !equalCalls(got, []string{"verify", "read", "write", "flash"}) {
		t.Errorf("calls = %v", got)
	}
	if res.FuseWrites[isp.FuseHigh] != Failed || res.FuseWrites[isp.FuseExtended] != OK || res.FuseWrites[isp.FuseLow] != OK {
		t.Errorf("fuse writes = %v", res.FuseWrites)
	}
	if res.FuseStage() != Failed || res.Flash != OK || res.Failure != isp.KindNone {
		t.Errorf("result = %+v", res)
	}
	if res.Passed() {
		t.Error("session with failed fuse must not pass")
	}
}

func TestSessionTerminalErrors(t *testing.T) {
	tests := []struct {
		name  string
		drv   *fakeDriver
		kind  isp.Kind
		calls []string
	}{
		{
			name:  "device not responding",
			drv:   &fakeDriver{sigErr: &isp.DeviceNotRespondingError{ChipType: "m328p"}},
			kind:  isp.KindDeviceNotResponding,
			calls: []string{"verify"},
		},
		{
			name:  "signature read",
			drv:   &fakeDriver{sigErr: &isp.SignatureReadError{Reason: "no match"}},
			kind:  isp.KindSignatureRead,
			calls: []string{"verify"},
		},
		{
			name:  "signature mismatch",
			drv:   &fakeDriver{sigErr: &isp.SignatureMismatchError{Read: "1e9406", Expected: "1e950f"}},
			kind:  isp.KindSignatureMismatch,
			calls: []string{"verify"},
		},
		{
			name:  "hardware access",
			drv:   &fakeDriver{sigErr: &isp.HardwareAccessError{Port: "/dev/spidev0.0"}},
			kind:  isp.KindHardwareAccess,
			calls: []string{"verify"},
		},
		{
			name:  "fuse read",
			drv:   &fakeDriver{readErr: &isp.FuseReadError{Found: 1}},
			kind:  isp.KindFuseRead,
			calls: []string{"verify", "read"},
		},
		{
			name: "fuse format",
			drv: &fakeDriver{
				fuses:    isp.FuseValues{isp.FuseExtended: "00", isp.FuseHigh: "DE", isp.FuseLow: "FF"},
				writeErr: &isp.FuseFormatError{Fuse: isp.FuseExtended, Value: "zz"},
			},
			kind:  isp.KindFuseFormat,
			calls: []string{"verify", "read", "write"},
		},
		{
			name: "not responding during flash",
			drv: &fakeDriver{
				fuses:    testProfile.Fuses,
				flashErr: &isp.DeviceNotRespondingError{ChipType: "m328p"},
			},
			kind:  isp.KindDeviceNotResponding,
			calls: []string{"verify", "read", "flash"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := &fakeReporter{}
			o := newTestOrchestrator(tt.drv, rep, true)
			res := o.RunSession(context.Background(), testProfile, testImage)
			if res.Failure != tt.kind {
				t.Errorf("failure = %v, want %v", res.Failure, tt.kind)
			}
			if got := tt.drv.Calls(); !equalCalls(got, tt.calls) {
				t.Errorf("calls = %v, want %v", got, tt.calls)
			}
			if len(rep.results) != 1 {
				t.Errorf("reports = %d, want 1", len(rep.results))
			}
			if o.State() != StateIdle {
				t.Errorf("state = %v after session", o.State())
			}
			if res.Passed() {
				t.Error("aborted session reported as passed")
			}
		})
	}
}

func TestSessionFlashWriteError(t *testing.T) {
	d := &fakeDriver{fuses: testProfile.Fuses, flashErr: &isp.FlashWriteError{Image: testImage.Path}}
	res := newTestOrchestrator(d, &fakeReporter{}, true).RunSession(context.Background(), testProfile, testImage)
	if res.Flash != Failed || res.Failure != isp.KindNone || res.FuseStage() != OK {
		t.Errorf("result = %+v", res)
	}
}

func TestSessionRecorders(t *testing.T) {
	d := &fakeDriver{fuses: testProfile.Fuses, flashBytes: 10}
	rec := &fakeRecorder{}
	res := newTestOrchestrator(d, &fakeReporter{}, true, WithRecorder(rec)).RunSession(context.Background(), testProfile, testImage)
	if len(rec.records) != 1 || rec.records[0].ID != res.ID {
		t.Errorf("records = %v", rec.records)
	}
	if res.ID == "" {
		t.Error("session without id")
	}
}

func TestRunIgnoresActivationWhenNotReady(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &fakeDriver{}
	rep := &fakeReporter{}
	o := newTestOrchestrator(d, rep, false)
	go o.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for o.Ignored() == 0 && time.Now().Before(deadline) {
		o.Activate(trigger.Event{At: time.Now()})
		time.Sleep(5 * time.Millisecond)
	}
	if o.Ignored() == 0 {
		t.Fatal("activation not ignored")
	}
	if len(d.Calls()) != 0 || rep.begins != 0 {
		t.Errorf("session attempted while not ready: calls=%v", d.Calls())
	}
}

func TestRunDropsActivationsDuringSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &fakeDriver{fuses: testProfile.Fuses, flashBytes: 1, block: make(chan struct{})}
	rep := &fakeReporter{done: make(chan SessionResult, 4)}
	o := newTestOrchestrator(d, rep, true)
	go o.Run(ctx)

	// first activation starts a session that blocks inside verify
	deadline := time.Now().Add(time.Second)
	for len(d.Calls()) == 0 && time.Now().Before(deadline) {
		o.Activate(trigger.Event{At: time.Now()})
		time.Sleep(5 * time.Millisecond)
	}
	if o.State() != StateVerifying {
		t.Fatalf("state = %v, want verifying", o.State())
	}

	before := o.Ignored()
	for i := 0; i < 3; i++ {
		o.Activate(trigger.Event{At: time.Now()})
	}
	if o.Ignored()-before != 3 {
		t.Errorf("ignored %d activations during session, want 3", o.Ignored()-before)
	}

	close(d.block)
	select {
	case <-rep.done:
	case <-time.After(time.Second):
		t.Fatal("session did not finish")
	}
	select {
	case res := <-rep.done:
		t.Errorf("queued activation ran a second session: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
	if n := len(d.Calls()); n != 3 {
		t.Errorf("driver calls = %d, want 3", n)
	}
}
