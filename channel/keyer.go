// Package channel implements the PTT/carrier-sense collaborator a
// txqueue.Channel needs to key a transmitter and sense a busy medium
// (spec.md §5, SPEC_FULL.md §6 "Channel I/O"). The DLSM and TX queue never
// touch hardware directly; they call through this interface.
package channel

import (
	"fmt"

	serial "github.com/albenik/go-serial/v2"
)

// Keyer keys a transmitter on/off and senses channel busy state.
type Keyer interface {
	Key(on bool) error
	Sense() (busy bool, err error)
	Close() error
}

// SerialKeyer drives PTT over a serial port's RTS or DTR line and reads
// DCD (carrier detect) back from the same port, the conventional
// sound-card-TNC wiring (SPEC_FULL.md §6).
type SerialKeyer struct {
	port *serial.Port
	line PTTLine
}

// PTTLine selects which serial control line keys the transmitter.
type PTTLine int

const (
	PTTRTS PTTLine = iota
	PTTDTR
)

// OpenSerialKeyer opens device for PTT/DCD control at the given line.
func OpenSerialKeyer(device string, line PTTLine) (*SerialKeyer, error) {
	port, err := serial.Open(device, serial.WithBaudrate(1200))
	if err != nil {
		return nil, fmt.Errorf("channel: open %s: %w", device, err)
	}
	return &SerialKeyer{port: port, line: line}, nil
}

func (k *SerialKeyer) Key(on bool) error {
	switch k.line {
	case PTTRTS:
		return k.port.SetRTS(on)
	case PTTDTR:
		return k.port.SetDTR(on)
	default:
		return fmt.Errorf("channel: unknown PTT line %d", k.line)
	}
}

// Sense reports the carrier-detect line state. Sound-card TNCs without a
// wired DCD line should use a NullKeyer instead, which always reports
// clear.
func (k *SerialKeyer) Sense() (bool, error) {
	status, err := k.port.GetModemStatusBits()
	if err != nil {
		return false, err
	}
	return status.DCD, nil
}

func (k *SerialKeyer) Close() error { return k.port.Close() }

// NullKeyer is a no-op Keyer for channels with no PTT hardware (e.g. a
// software-only loopback channel in tests), always reporting a clear
// medium.
type NullKeyer struct{}

func (NullKeyer) Key(bool) error          { return nil }
func (NullKeyer) Sense() (bool, error)    { return false, nil }
func (NullKeyer) Close() error            { return nil }
