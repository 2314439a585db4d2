package isp

import (
	"context"
	"fmt"
	"strings"
)

// Operation identifies the intent behind one avrdude invocation.
type Operation byte

const (
	OpIdentify   Operation = 0x01 // read the signature only
	OpReadFuses  Operation = 0x02 // efuse/hfuse/lfuse to stdout as Intel HEX
	OpWriteFuses Operation = 0x03 // write and verify selected fuses
	OpWriteFlash Operation = 0x04 // chip erase + flash write + verify
)

func (o Operation) String() string {
	switch o {
	case OpIdentify:
		return "identify"
	case OpReadFuses:
		return "read fuses"
	case OpWriteFuses:
		return "write fuses"
	case OpWriteFlash:
		return "write flash"
	}
	return fmt.Sprintf("op 0x%02X", byte(o))
}

// ISP drives avrdude for a single chip type. Invocations are blocking and
// must not overlap: the programming interface belongs to one call at a time.
type ISP struct {
	chipType string
	config   Config
}

// New creates a driver for chipType (an avrdude part id such as "m328p").
//
// Example:
//
//	dude := isp.New("m328p",
//	    isp.WithProgrammer("linuxspi", "/dev/spidev0.0"),
//	    isp.WithTimeout(time.Minute),
//	)
func New(chipType string, opts ...Option) *ISP {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ISP{chipType: chipType, config: cfg}
}

// ChipType returns the part id passed to avrdude.
func (t *ISP) ChipType() string { return t.chipType }

/*
 * @Description: read the device signature and check it against the chip type
 * @return signature lowercase hex, e.g. "1e950f"
 * @return err SignatureReadError / SignatureMismatchError
 */
func (t *ISP) VerifySignature(ctx context.Context) (string, error) {
	t.logInfo("reading device signature to verify chip type", "chip", t.chipType)
	output, err := t.command(ctx, OpIdentify, invocation{speed: t.config.Slow})
	if err != nil {
		return "", err
	}
	expected, ok := ExpectedSignature(t.chipType)
	if !ok {
		return "", &SignatureReadError{Reason: fmt.Sprintf("no known signature for chip type %q", t.chipType)}
	}
	signature, ok := parseSignature(output)
	if !ok {
		return "", &SignatureReadError{Reason: "signature not found in avrdude output"}
	}
	if !strings.EqualFold(signature, expected) {
		return signature, &SignatureMismatchError{Read: signature, Expected: expected}
	}
	return signature, nil
}

/*
 * @Description: read all three fuse bytes
 * @return fuses uppercase hex per fuse
 * @return err FuseReadError when fewer than three values are found
 */
func (t *ISP) ReadFuses(ctx context.Context) (FuseValues, error) {
	t.logInfo("reading fuses")
	output, err := t.command(ctx, OpReadFuses, invocation{speed: t.config.Slow, readFuses: true})
	if err != nil {
		return nil, err
	}
	fuses, err := parseFuses(output)
	if err != nil {
		return nil, err
	}
	t.logDebug("read fuses", "fuses", fuses.String())
	return fuses, nil
}

/*
 * @Description: write the given fuse bytes; absent fuses are left untouched
 * @param fuses two hex digits per requested fuse
 * @return error FuseFormatError before any invocation, FuseWriteError naming every unverified byte
 */
func (t *ISP) WriteFuses(ctx context.Context, fuses FuseValues) error {
	for _, f := range Fuses {
		if b, ok := fuses[f]; ok && !IsHexByte(b) {
			return &FuseFormatError{Fuse: f, Value: b}
		}
	}
	t.logInfo("writing fuses", "fuses", fuses.String())
	output, err := t.command(ctx, OpWriteFuses, invocation{speed: t.config.Slow, writeFuses: fuses})
	if err != nil {
		return err
	}

	var failed []Fuse
	for _, f := range Fuses {
		if _, ok := fuses[f]; !ok {
			continue
		}
		if !strings.Contains(output, fuseVerified(f)) {
			failed = append(failed, f)
			continue
		}
		t.logDebug("fuse write ok", "fuse", f.String())
	}
	if len(failed) > 0 {
		return &FuseWriteError{Failed: failed}
	}
	return nil
}

/*
 * @Description: erase the chip and write the image at high speed
 * @param image Intel HEX file
 * @return bytesWritten as reported by the verify pass
 */
func (t *ISP) WriteFlash(ctx context.Context, image FirmwareImage) (int, error) {
	if !image.Valid() {
		return 0, &FlashWriteError{Image: image.Path}
	}
	t.logInfo("writing flash file", "image", image.Path)
	output, err := t.command(ctx, OpWriteFlash, invocation{
		speed:     t.config.Fast,
		chipErase: true,
		flash:     image.Path,
	})
	if err != nil {
		return 0, err
	}
	n, ok := parseFlashBytes(output)
	if !ok {
		return 0, &FlashWriteError{Image: image.Path}
	}
	t.logInfo("wrote flash", "bytes", n)
	return n, nil
}

// command runs avrdude once and returns stdout followed by stderr.
func (t *ISP) command(ctx context.Context, op Operation, inv invocation) (string, error) {
	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	args := t.args(inv)
	t.logDebug("running avrdude", "op", op.String(), "args", args)
	stdout, stderr, err := t.config.Runner.Run(ctx, t.config.Tool, args)
	if err != nil {
		return "", &ToolError{Op: op, Err: err}
	}
	output := string(stdout) + string(stderr)
	t.logDebug("avrdude result", "op", op.String(), "output", output)

	if err := t.checkMarkers(output); err != nil {
		return "", err
	}
	return output, nil
}

func (t *ISP) logDebug(msg string, keysAndValues ...interface{}) {
	if t.config.Logger != nil {
		t.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (t *ISP) logInfo(msg string, keysAndValues ...interface{}) {
	if t.config.Logger != nil {
		t.config.Logger.Info(msg, keysAndValues...)
	}
}
