package isp

import (
	"fmt"
	"os"
	"strings"

	"go.bug.st/serial"
)

// serialProgrammers are the avrdude programmer ids that talk over a serial port.
var serialProgrammers = map[string]bool{
	"arduino":   true,
	"avrisp":    true,
	"avrispv2":  true,
	"buspirate": true,
	"butterfly": true,
	"stk500":    true,
	"stk500v1":  true,
	"stk500v2":  true,
	"urclock":   true,
	"wiring":    true,
}

// IsSerialProgrammer reports whether programmer is reached through a serial port.
func IsSerialProgrammer(programmer string) bool {
	return serialProgrammers[strings.ToLower(programmer)]
}

/*
 * @Description: check that the programming interface exists and can be opened
 * before the first session, so wiring and permission faults show up at startup
 * @param programmer avrdude -c id
 * @param port avrdude -P path
 * @param baud used to open serial ports
 * @return error HardwareAccessError
 */
func ProbePort(programmer, port string, baud int) error {
	if !IsSerialProgrammer(programmer) {
		f, err := os.OpenFile(port, os.O_RDWR, 0)
		if err != nil {
			return &HardwareAccessError{Port: port, Err: err}
		}
		return f.Close()
	}

	ports, err := serial.GetPortsList()
	if err != nil {
		return &HardwareAccessError{Port: port, Err: err}
	}
	found := false
	for _, p := range ports {
		if p == port {
			found = true
			break
		}
	}
	if !found {
		return &HardwareAccessError{Port: port, Err: fmt.Errorf("not in serial port list %v", ports)}
	}

	mode := &serial.Mode{
		BaudRate:          baud,
		DataBits:          8,
		StopBits:          serial.OneStopBit,
		Parity:            serial.NoParity,
		InitialStatusBits: &serial.ModemOutputBits{RTS: false, DTR: false},
	}
	p, err := serial.Open(port, mode)
	if err != nil {
		return &HardwareAccessError{Port: port, Err: err}
	}
	return p.Close()
}
