package isp

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags every failure the driver can report.
type Kind int

const (
	KindNone Kind = iota
	KindHardwareAccess
	KindDeviceNotResponding
	KindSignatureRead
	KindSignatureMismatch
	KindFuseRead
	KindFuseFormat
	KindFuseWrite
	KindFlashWrite
	KindTool
)

var kindNames = map[Kind]string{
	KindNone:                "none",
	KindHardwareAccess:      "hardware_access",
	KindDeviceNotResponding: "device_not_responding",
	KindSignatureRead:       "signature_read",
	KindSignatureMismatch:   "signature_mismatch",
	KindFuseRead:            "fuse_read",
	KindFuseFormat:          "fuse_format",
	KindFuseWrite:           "fuse_write",
	KindFlashWrite:          "flash_write",
	KindTool:                "tool",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type kinded interface{ Kind() Kind }

// KindOf returns the tag of the first tagged error in err's chain.
// Untagged errors are reported as KindTool.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindTool
}

// HardwareAccessError indicates the programming interface (GPIO/SPI) could not be opened.
type HardwareAccessError struct {
	Port string
	Err  error
}

func (e *HardwareAccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hardware interface %s not accessible: %v", e.Port, e.Err)
	}
	return fmt.Sprintf("hardware interface %s not accessible", e.Port)
}

func (e *HardwareAccessError) Unwrap() error { return e.Err }
func (e *HardwareAccessError) Kind() Kind    { return KindHardwareAccess }

// DeviceNotRespondingError indicates the target part did not answer the programmer.
type DeviceNotRespondingError struct {
	ChipType string
}

func (e *DeviceNotRespondingError) Error() string {
	return fmt.Sprintf("AVR device %s not responding", e.ChipType)
}

func (e *DeviceNotRespondingError) Kind() Kind { return KindDeviceNotResponding }

// SignatureReadError indicates the tool output carried no device signature.
type SignatureReadError struct {
	Reason string
}

func (e *SignatureReadError) Error() string {
	return fmt.Sprintf("unable to read signature: %s", e.Reason)
}

func (e *SignatureReadError) Kind() Kind { return KindSignatureRead }

// SignatureMismatchError indicates the connected part is not the configured chip type.
type SignatureMismatchError struct {
	Read     string
	Expected string
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature does not match, read %s, expected %s", e.Read, e.Expected)
}

func (e *SignatureMismatchError) Kind() Kind { return KindSignatureMismatch }

// FuseReadError indicates fewer than three fuse bytes were found in the tool output.
type FuseReadError struct {
	Found int
}

func (e *FuseReadError) Error() string {
	return fmt.Sprintf("unable to read fuses: found %d of %d", e.Found, len(Fuses))
}

func (e *FuseReadError) Kind() Kind { return KindFuseRead }

// FuseFormatError rejects a fuse value that is not exactly two hex digits.
type FuseFormatError struct {
	Fuse  Fuse
	Value string
}

func (e *FuseFormatError) Error() string {
	return fmt.Sprintf("%s fuse %q is invalid", e.Fuse, e.Value)
}

func (e *FuseFormatError) Kind() Kind { return KindFuseFormat }

// FuseWriteError names every requested fuse byte that was not verified.
type FuseWriteError struct {
	Failed []Fuse
}

func (e *FuseWriteError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = f.String() + " fuse write error"
	}
	return strings.Join(parts, ", ")
}

func (e *FuseWriteError) Kind() Kind { return KindFuseWrite }

// FlashWriteError indicates the flash verification line was missing.
type FlashWriteError struct {
	Image string
}

func (e *FlashWriteError) Error() string {
	return fmt.Sprintf("unable to write flash %s", e.Image)
}

func (e *FlashWriteError) Kind() Kind { return KindFlashWrite }

// ToolError wraps a failure to run the external tool at all: missing binary,
// timeout or cancellation.
type ToolError struct {
	Op  Operation
	Err error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: avrdude invocation failed: %v", e.Op, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }
func (e *ToolError) Kind() Kind    { return KindTool }
