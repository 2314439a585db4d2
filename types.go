package isp

import (
	"fmt"
	"strings"
)

// Fuse names one of the three configuration fuse bytes of an AVR part.
type Fuse byte

const (
	FuseExtended Fuse = iota // efuse
	FuseHigh                 // hfuse
	FuseLow                  // lfuse
)

// Fuses lists the fuse bytes in the order avrdude emits them on a read.
var Fuses = []Fuse{FuseExtended, FuseHigh, FuseLow}

// Memory returns the avrdude memory name of the fuse.
func (f Fuse) Memory() string {
	switch f {
	case FuseExtended:
		return "efuse"
	case FuseHigh:
		return "hfuse"
	case FuseLow:
		return "lfuse"
	}
	return "fuse?"
}

func (f Fuse) String() string {
	switch f {
	case FuseExtended:
		return "E"
	case FuseHigh:
		return "H"
	case FuseLow:
		return "L"
	}
	return fmt.Sprintf("Fuse(%d)", byte(f))
}

// FuseValues maps fuse bytes to two-digit hexadecimal strings.
// A fuse missing from the map is absent: not read, not requested.
type FuseValues map[Fuse]string

// Diff returns the entries of want that differ from v, compared without regard to case.
func (v FuseValues) Diff(want FuseValues) FuseValues {
	out := FuseValues{}
	for _, f := range Fuses {
		w, ok := want[f]
		if !ok {
			continue
		}
		if got, ok := v[f]; !ok || !strings.EqualFold(got, w) {
			out[f] = w
		}
	}
	return out
}

func (v FuseValues) String() string {
	parts := make([]string, 0, len(Fuses))
	for _, f := range Fuses {
		if b, ok := v[f]; ok {
			parts = append(parts, f.String()+"="+b)
		}
	}
	return strings.Join(parts, " ")
}

// DeviceProfile is the per-session description of the target part.
type DeviceProfile struct {
	ChipType string
	Fuses    FuseValues
}

// Validate reports whether the profile is complete and well formed.
func (p DeviceProfile) Validate() error {
	if _, ok := ExpectedSignature(p.ChipType); !ok {
		return fmt.Errorf("unknown chip type %q", p.ChipType)
	}
	for _, f := range Fuses {
		b, ok := p.Fuses[f]
		if !ok {
			return fmt.Errorf("missing %s fuse", f)
		}
		if !IsHexByte(b) {
			return &FuseFormatError{Fuse: f, Value: b}
		}
	}
	return nil
}

// FirmwareImage references an Intel HEX image on storage.
type FirmwareImage struct {
	Path string
	Size int64
}

// Valid reports whether the image is present and non-empty.
func (i FirmwareImage) Valid() bool { return i.Path != "" && i.Size > 0 }
