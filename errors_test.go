package isp

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{&HardwareAccessError{Port: "/dev/spidev0.0"}, KindHardwareAccess},
		{&DeviceNotRespondingError{ChipType: "m328p"}, KindDeviceNotResponding},
		{&SignatureReadError{Reason: "x"}, KindSignatureRead},
		{&SignatureMismatchError{Read: "1e9406", Expected: "1e950f"}, KindSignatureMismatch},
		{&FuseReadError{Found: 2}, KindFuseRead},
		{&FuseFormatError{Fuse: FuseHigh, Value: "zz"}, KindFuseFormat},
		{&FuseWriteError{Failed: []Fuse{FuseHigh}}, KindFuseWrite},
		{&FlashWriteError{Image: "fw.hex"}, KindFlashWrite},
		{fmt.Errorf("session: %w", &FlashWriteError{}), KindFlashWrite},
		{errors.New("plain"), KindTool},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestFuseWriteErrorMessage(t *testing.T) {
	err := &FuseWriteError{Failed: []Fuse{FuseExtended, FuseLow}}
	if got := err.Error(); got != "E fuse write error, L fuse write error" {
		t.Errorf("message = %q", got)
	}
}

func TestSignatureMismatchMessage(t *testing.T) {
	msg := (&SignatureMismatchError{Read: "1e9406", Expected: "1e950f"}).Error()
	if !strings.Contains(msg, "read 1e9406") || !strings.Contains(msg, "expected 1e950f") {
		t.Errorf("message = %q", msg)
	}
}

func TestProfileValidate(t *testing.T) {
	good := DeviceProfile{ChipType: "m328p", Fuses: FuseValues{FuseExtended: "FD", FuseHigh: "DE", FuseLow: "FF"}}
	if err := good.Validate(); err != nil {
		t.Errorf("valid profile rejected: %v", err)
	}
	missing := DeviceProfile{ChipType: "m328p", Fuses: FuseValues{FuseExtended: "FD", FuseHigh: "DE"}}
	if err := missing.Validate(); err == nil {
		t.Error("profile missing L fuse accepted")
	}
	badHex := DeviceProfile{ChipType: "m328p", Fuses: FuseValues{FuseExtended: "FD", FuseHigh: "0xDE", FuseLow: "FF"}}
	if KindOf(badHex.Validate()) != KindFuseFormat {
		t.Error("malformed fuse byte accepted")
	}
	unknown := DeviceProfile{ChipType: "t13", Fuses: good.Fuses}
	if err := unknown.Validate(); err == nil {
		t.Error("unknown chip type accepted")
	}
}

func TestFuseValuesDiff(t *testing.T) {
	read := FuseValues{FuseExtended: "FD", FuseHigh: "DE", FuseLow: "FF"}
	want := FuseValues{FuseExtended: "fd", FuseHigh: "D9", FuseLow: "FF"}
	diff := read.Diff(want)
	if len(diff) != 1 || diff[FuseHigh] != "D9" {
		t.Errorf("diff = %v", diff)
	}
	if d := read.Diff(read); len(d) != 0 {
		t.Errorf("self diff = %v", d)
	}
}
