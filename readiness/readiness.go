// Package readiness periodically reloads the device profile and checks the
// firmware image on removable storage, publishing a single ready flag.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	isp "github.com/tocurd/go-avrisp"
)

// profileFile is the on-disk profile. JSON files such as
// {"type": "m328p", "E": "FD", "H": "DE", "L": "FF"} are valid YAML too.
type profileFile struct {
	Type *string `yaml:"type"`
	E    *string `yaml:"E"`
	H    *string `yaml:"H"`
	L    *string `yaml:"L"`
}

// LoadProfile reads and validates a device profile. A profile missing any key
// is rejected as a whole.
func LoadProfile(path string) (isp.DeviceProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return isp.DeviceProfile{}, err
	}
	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return isp.DeviceProfile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if pf.Type == nil || pf.E == nil || pf.H == nil || pf.L == nil {
		return isp.DeviceProfile{}, fmt.Errorf("profile %s: keys type, E, H and L are required", path)
	}
	profile := isp.DeviceProfile{
		ChipType: *pf.Type,
		Fuses: isp.FuseValues{
			isp.FuseExtended: *pf.E,
			isp.FuseHigh:     *pf.H,
			isp.FuseLow:      *pf.L,
		},
	}
	if err := profile.Validate(); err != nil {
		return isp.DeviceProfile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return profile, nil
}

// StatFirmware checks that the image exists and is not empty.
func StatFirmware(path string) (isp.FirmwareImage, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return isp.FirmwareImage{}, err
	}
	if fi.IsDir() {
		return isp.FirmwareImage{}, fmt.Errorf("firmware %s is a directory", path)
	}
	img := isp.FirmwareImage{Path: path, Size: fi.Size()}
	if !img.Valid() {
		return isp.FirmwareImage{}, errors.New("firmware " + path + " is empty")
	}
	return img, nil
}

type snapshot struct {
	profile isp.DeviceProfile
	image   isp.FirmwareImage
	ready   bool
}

// Poller publishes the latest profile/image pair.
type Poller struct {
	profilePath  string
	firmwarePath string
	interval     time.Duration
	logger       isp.Logger
	onPoll       func(ready bool)

	snap atomic.Pointer[snapshot]
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the reload cadence (default 2s).
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l isp.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPollFunc registers a callback invoked with the ready flag after every poll.
func WithPollFunc(fn func(ready bool)) Option {
	return func(p *Poller) { p.onPoll = fn }
}

// New creates a Poller. It reports not ready until the first poll.
func New(profilePath, firmwarePath string, opts ...Option) *Poller {
	p := &Poller{
		profilePath:  profilePath,
		firmwarePath: firmwarePath,
		interval:     2 * time.Second,
		logger:       isp.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.snap.Store(&snapshot{})
	return p
}

// Current returns the last complete pair, or ready=false with zero values.
func (p *Poller) Current() (isp.DeviceProfile, isp.FirmwareImage, bool) {
	s := p.snap.Load()
	return s.profile, s.image, s.ready
}

// Ready returns the published ready flag.
func (p *Poller) Ready() bool { return p.snap.Load().ready }

// Poll reloads once and publishes the result.
func (p *Poller) Poll() bool {
	wasReady := p.Ready()

	profile, perr := LoadProfile(p.profilePath)
	image, ferr := StatFirmware(p.firmwarePath)
	next := &snapshot{}
	if perr == nil && ferr == nil {
		next = &snapshot{profile: profile, image: image, ready: true}
	}
	p.snap.Store(next)

	switch {
	case next.ready && !wasReady:
		p.logger.Info("ready", "chip", profile.ChipType, "fuses", profile.Fuses.String(), "firmware", image.Path, "bytes", image.Size)
	case !next.ready && wasReady:
		p.logger.Error("not ready", "profile_error", errString(perr), "firmware_error", errString(ferr))
	case !next.ready:
		p.logger.Debug("not ready", "profile_error", errString(perr), "firmware_error", errString(ferr))
	}

	if p.onPoll != nil {
		p.onPoll(next.ready)
	}
	return next.ready
}

// Run polls immediately and then on every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.Poll()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll()
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
