package isp

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Output markers and patterns of avrdude 6.x/7.x. Keep every textual
// dependency on the tool here.
var (
	markerHardwareAccess = "Unable to open file"
	markerNotResponding  = "AVR device not responding"

	signaturePattern  = regexp.MustCompile(`Device signature = 0x([0-9A-Fa-f]+)`)
	fuseReadPattern   = regexp.MustCompile(`01000000([0-9A-Fa-f]{2}).*\n:00000001FF`)
	flashWritePattern = regexp.MustCompile(`(\d+) bytes of flash verified`)
	hexBytePattern    = regexp.MustCompile(`^[0-9A-Fa-f]{2}$`)
)

// IsHexByte reports whether s is exactly two hexadecimal digits.
func IsHexByte(s string) bool {
	return hexBytePattern.MatchString(s)
}

// fuseVerified is the line avrdude prints after reading back a written fuse.
func fuseVerified(f Fuse) string {
	return f.Memory() + " verified"
}

/*
 * @Description: markers shared by every invocation; they win over operation parsing
 * @param output combined stdout+stderr
 * @return error
 */
func (t *ISP) checkMarkers(output string) error {
	if strings.Contains(output, markerHardwareAccess) {
		return &HardwareAccessError{Port: t.config.Port}
	}
	if strings.Contains(output, markerNotResponding) {
		return &DeviceNotRespondingError{ChipType: t.chipType}
	}
	return nil
}

func parseSignature(output string) (string, bool) {
	m := signaturePattern.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

func parseFuses(output string) (FuseValues, error) {
	matches := fuseReadPattern.FindAllStringSubmatch(output, -1)
	if len(matches) < len(Fuses) {
		return nil, &FuseReadError{Found: len(matches)}
	}
	fuses := FuseValues{}
	for i, f := range Fuses {
		fuses[f] = strings.ToUpper(matches[i][1])
	}
	return fuses, nil
}

func parseFlashBytes(output string) (int, bool) {
	m := flashWritePattern.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// invocation describes one avrdude run.
type invocation struct {
	speed      Speed
	chipErase  bool
	readFuses  bool
	writeFuses FuseValues
	flash      string
}

func (t *ISP) args(inv invocation) []string {
	args := []string{
		"-c", t.config.Programmer,
		"-P", t.config.Port,
		"-p", t.chipType,
		"-b", strconv.Itoa(inv.speed.Baud),
		"-B", strconv.FormatFloat(inv.speed.BitClock, 'g', -1, 64),
		"-q", // no progress bars
	}
	if inv.chipErase {
		args = append(args, "-e")
	}
	if inv.readFuses {
		for _, f := range Fuses {
			args = append(args, "-U", f.Memory()+":r:-:i")
		}
	}
	for _, f := range Fuses {
		if b, ok := inv.writeFuses[f]; ok {
			args = append(args, "-U", f.Memory()+":w:0x"+strings.ToUpper(b)+":m")
		}
	}
	if inv.flash != "" {
		args = append(args, "-U", "flash:w:"+inv.flash+":i")
	}
	return args
}

// Runner starts the external tool and returns what it wrote. A non-zero exit
// status is not an error: avrdude reports most failures in its output.
type Runner interface {
	Run(ctx context.Context, name string, args []string) (stdout, stderr []byte, err error)
}

// ExecRunner runs the tool as a child process.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return stdout.Bytes(), stderr.Bytes(), ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = nil
	}
	return stdout.Bytes(), stderr.Bytes(), err
}
