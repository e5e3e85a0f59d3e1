package channel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"
)

// rigctldTimeout bounds dial, read and write operations against rigctld.
const rigctldTimeout = time.Second

var errUnexpectedValue = errors.New("channel: unexpected value in rigctld response")

// HamlibKeyer keys PTT through a rigctld TCP connection instead of a
// sound-card TNC's serial control lines, for channels whose transmitter is
// a rig under CAT control (SPEC_FULL.md §6 "Channel I/O"). It speaks just
// enough of rigctld's line protocol to drive PTT: set_ptt and get_ptt,
// plus get_info as a reachability check when the keyer is opened.
type HamlibKeyer struct {
	addr string

	mu   sync.Mutex
	conn *textproto.Conn
	tcp  net.Conn
}

// OpenHamlibKeyer dials rigctld at addr and confirms it answers.
func OpenHamlibKeyer(addr string) (*HamlibKeyer, error) {
	k := &HamlibKeyer{addr: addr}
	if err := k.ping(); err != nil {
		return nil, fmt.Errorf("channel: open rigctld at %s: %w", addr, err)
	}
	return k, nil
}

// ping confirms rigctld is reachable (every rig answers get_info).
func (k *HamlibKeyer) ping() error {
	_, err := k.cmd(`\get_info`, 1)
	return err
}

// Key implements channel.Keyer by sending rigctld's set_ptt command.
func (k *HamlibKeyer) Key(on bool) error {
	state := 0
	if on {
		state = 1
	}
	_, err := k.cmd(`\set_ptt %d`, 0, state)
	return err
}

// Sense reports the rig's own PTT state, not carrier detect — rigctld has
// no DCD query, so a hamlib-keyed channel can only avoid keying over its
// own transmission, not sense other stations on the channel.
func (k *HamlibKeyer) Sense() (bool, error) {
	resp, err := k.cmd("t", 1)
	if err != nil {
		return false, err
	}
	switch resp[0] {
	case "0":
		return false, nil
	case "1", "2", "3":
		return true, nil
	default:
		return false, errUnexpectedValue
	}
}

func (k *HamlibKeyer) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.conn == nil {
		return nil
	}
	return k.conn.Close()
}

func (k *HamlibKeyer) dial() error {
	if k.conn != nil {
		k.conn.Close()
	}
	tcp, err := net.DialTimeout("tcp", k.addr, rigctldTimeout)
	if err != nil {
		return err
	}
	k.tcp = tcp
	k.conn = textproto.NewConn(tcp)
	return nil
}

// cmd sends format (with args) to rigctld and reads back nresults lines,
// reconnecting and retrying once on a dropped connection.
func (k *HamlibKeyer) cmd(format string, nresults int, args ...any) (results []string, err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if k.conn == nil {
			if err = k.dial(); err != nil {
				return nil, err
			}
		}
		results, err = k.doCmd(format, nresults, args...)
		if err == nil {
			return results, nil
		}
		var netErr net.Error
		if errors.Is(err, io.EOF) || errors.As(err, &netErr) {
			k.conn = nil
			continue
		}
		return nil, err
	}
	return nil, err
}

func (k *HamlibKeyer) doCmd(format string, nresults int, args ...any) ([]string, error) {
	k.tcp.SetDeadline(time.Now().Add(rigctldTimeout))
	defer k.tcp.SetDeadline(time.Time{})

	id, err := k.conn.Cmd(format, args...)
	if err != nil {
		return nil, err
	}
	k.conn.StartResponse(id)
	defer k.conn.EndResponse(id)

	if nresults == 0 {
		resp, err := k.conn.ReadLine()
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(resp, "RPRT 0") {
			return nil, fmt.Errorf("channel: rigctld command %q failed: %s", fmt.Sprintf(format, args...), resp)
		}
		return nil, nil
	}

	results := make([]string, 0, nresults)
	for i := 0; i < nresults; i++ {
		resp, err := k.conn.ReadLine()
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(resp, "RPRT") {
			return nil, fmt.Errorf("channel: rigctld command %q failed: %s", format, resp)
		}
		results = append(results, resp)
	}
	return results, nil
}
