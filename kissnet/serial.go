package kissnet

import (
	"context"
	"fmt"
	"sync"

	serial "github.com/albenik/go-serial/v2"
	"github.com/charmbracelet/log"

	"github.com/la5nta/axlink/kiss"
)

// SerialPort exposes a single KISS session over a serial device, for a
// directly-attached hardware TNC speaking plain KISS (SPEC_FULL.md §6).
type SerialPort struct {
	port    *serial.Port
	session *kiss.Session
	log     *log.Logger

	mu sync.Mutex
}

// OpenSerialPort opens device at baud and binds a KISS session to it.
func OpenSerialPort(device string, baud int, dispatch kiss.Dispatcher, logger *log.Logger) (*SerialPort, error) {
	port, err := serial.Open(device, serial.WithBaudrate(baud))
	if err != nil {
		return nil, fmt.Errorf("kissnet: open %s: %w", device, err)
	}
	if logger == nil {
		logger = log.Default()
	}
	sp := &SerialPort{port: port, log: logger}
	sp.session = kiss.NewSession(sp, dispatch)
	sp.session.OnError = func(err error) {
		sp.log.Debug("kiss decode error", "device", device, "err", err)
	}
	return sp, nil
}

// Send implements kiss.Sender.
func (sp *SerialPort) Send(raw []byte) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	_, err := sp.port.Write(raw)
	return err
}

// Serve reads from the port until ctx is canceled or the port errors.
func (sp *SerialPort) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		sp.port.Close()
	}()
	buf := make([]byte, 4096)
	for {
		n, err := sp.port.Read(buf)
		if n > 0 {
			sp.session.Feed(buf[:n])
		}
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
	}
}

func (sp *SerialPort) Close() error { return sp.port.Close() }
