// Package ax25 implements the AX.25 v2.0/v2.2 address and frame codec: the
// on-the-wire address list, control-field (modulo 8 and modulo 128) framing,
// and packet encode/decode. It owns no concurrency or link state — see
// package dlsm for that.
package ax25

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 6-character callsign plus a 4-bit SSID and the
// has-been-repeated flag used in digipeater hops (spec.md §3).
type Address struct {
	Call     string
	SSID     uint8 // 0-15
	Repeated bool
}

// ParseAddress parses "CALL-SSID" or "CALL" strings (SSID defaults to 0).
func ParseAddress(s string) (Address, error) {
	parts := strings.SplitN(s, "-", 2)
	call := strings.ToUpper(strings.TrimSpace(parts[0]))
	if len(call) == 0 || len(call) > 6 {
		return Address{}, fmt.Errorf("ax25: invalid callsign %q", s)
	}
	a := Address{Call: call}
	if len(parts) == 2 {
		ssid, err := strconv.Atoi(parts[1])
		if err != nil || ssid < 0 || ssid > 15 {
			return Address{}, fmt.Errorf("ax25: invalid SSID in %q", s)
		}
		a.SSID = uint8(ssid)
	}
	return a, nil
}

// String formats as "CALL-SSID" (SSID omitted when zero), with a "*"
// suffix when the digipeater has-been-repeated flag is set.
func (a Address) String() string {
	s := a.Call
	if a.SSID > 0 {
		s = fmt.Sprintf("%s-%d", a.Call, a.SSID)
	}
	if a.Repeated {
		s += "*"
	}
	return s
}

// EqualCall reports whether two addresses share callsign and SSID,
// ignoring the repeated flag. This is the comparison spec.md §3 calls
// "own-addr without SSID-ignore" in link identity.
func (a Address) EqualCall(b Address) bool {
	return a.Call == b.Call && a.SSID == b.SSID
}

// wire address byte layout: bits 7-1 hold the ASCII character shifted left
// one bit; bit 0 is the address-extension bit (1 on the last address of the
// list). In the seventh (SSID) byte, bits 4-1 hold the SSID, bits 6-5 are
// reserved (both set to 1), and bit 7 is the "has been repeated" flag in a
// digipeater address. In the destination and source addresses bit 7 is the
// command/response bit instead (see Packet.Encode), so DecodeAddressList
// never reports those two as Repeated.

const addrLen = 7

// encodeAddress writes one 7-byte wire address. last marks the final address
// in the list (sets the extension bit).
func encodeAddress(a Address, last bool) [addrLen]byte {
	var out [addrLen]byte
	call := a.Call
	for len(call) < 6 {
		call += " "
	}
	for i := 0; i < 6; i++ {
		out[i] = call[i] << 1
	}
	b := (a.SSID << 1) | 0x60 // bits 6-5 reserved, set per convention (both 1)
	if a.Repeated {
		b |= 0x80
	}
	if last {
		b |= 0x01
	}
	out[6] = b
	return out
}

// decodeAddress parses one 7-byte wire address, reporting whether this was
// the last address in the list (extension bit set).
func decodeAddress(b []byte) (a Address, last bool, err error) {
	if len(b) < addrLen {
		return Address{}, false, fmt.Errorf("ax25: short address field")
	}
	var call [6]byte
	for i := 0; i < 6; i++ {
		call[i] = b[i] >> 1
	}
	a.Call = strings.TrimRight(string(call[:]), " ")
	a.SSID = (b[6] >> 1) & 0x0F
	a.Repeated = b[6]&0x80 != 0
	last = b[6]&0x01 != 0
	return a, last, nil
}

// AddressList is the decoded destination, source, and up to eight
// digipeater hops (spec.md §3).
type AddressList struct {
	Destination Address
	Source      Address
	Digis       []Address
}

// MaxDigis is the maximum number of digipeater hops (spec.md §3).
const MaxDigis = 8

// Encode writes the wire address field (destination, source, then digis, with
// the extension bit set on the last one).
func (al AddressList) Encode() ([]byte, error) {
	if len(al.Digis) > MaxDigis {
		return nil, fmt.Errorf("ax25: too many digipeaters (%d > %d)", len(al.Digis), MaxDigis)
	}
	all := append([]Address{al.Destination, al.Source}, al.Digis...)
	out := make([]byte, 0, len(all)*addrLen)
	for i, a := range all {
		enc := encodeAddress(a, i == len(all)-1)
		out = append(out, enc[:]...)
	}
	return out, nil
}

// DecodeAddressList parses the address field, returning the number of bytes
// consumed.
func DecodeAddressList(b []byte) (AddressList, int, error) {
	var al AddressList
	var addrs []Address
	n := 0
	for {
		if len(b[n:]) < addrLen {
			return AddressList{}, 0, fmt.Errorf("ax25: truncated address field")
		}
		a, last, err := decodeAddress(b[n:])
		if err != nil {
			return AddressList{}, 0, err
		}
		addrs = append(addrs, a)
		n += addrLen
		if last {
			break
		}
		if len(addrs) >= MaxDigis+2 {
			return AddressList{}, 0, fmt.Errorf("ax25: address list too long")
		}
	}
	if len(addrs) < 2 {
		return AddressList{}, 0, fmt.Errorf("ax25: address list missing source/destination")
	}
	al.Destination = addrs[0]
	al.Source = addrs[1]
	// Bit 7 of these two SSID bytes is the command/response bit, not H.
	al.Destination.Repeated = false
	al.Source.Repeated = false
	if len(addrs) > 2 {
		al.Digis = addrs[2:]
	}
	return al, n, nil
}
