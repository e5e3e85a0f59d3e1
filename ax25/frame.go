package ax25

import "fmt"

// PIDSegmentation is the PID value reserved for segmentation fragments
// (spec.md §4.4.3, §6).
const PIDSegmentation = 0x08

// PIDNoLayer3 is the conventional "no layer 3" PID used on most I-frames.
const PIDNoLayer3 = 0xF0

// MaxInfoLen is the largest information field this module accepts
// (spec.md §3).
const MaxInfoLen = 2048

// Packet is a fully decoded AX.25 frame. It is owned exclusively by
// whichever queue currently holds it and is consumed on dispatch
// (spec.md §3).
type Packet struct {
	Addresses AddressList
	Modulo    Modulo
	Control   Control
	CR        CR

	HasPID bool
	PID    byte
	Info   []byte
}

// Decode parses a complete AX.25 frame (address field, control field,
// optional PID, optional information field). modulo selects 1-byte vs.
// 2-byte control field framing.
func Decode(b []byte, modulo Modulo) (Packet, error) {
	al, n, err := DecodeAddressList(b)
	if err != nil {
		return Packet{}, err
	}
	rest := b[n:]

	ctrl, cn, err := DecodeControl(rest, modulo)
	if err != nil {
		return Packet{}, err
	}
	rest = rest[cn:]

	cr := crFromAddresses(b)

	p := Packet{Addresses: al, Modulo: modulo, Control: ctrl, CR: cr}

	needsPID := ctrl.Kind == KindI || ctrl.Kind == KindUI
	if needsPID {
		if len(rest) < 1 {
			return Packet{}, fmt.Errorf("ax25: frame missing PID byte")
		}
		p.HasPID = true
		p.PID = rest[0]
		rest = rest[1:]
	}
	if ctrl.Kind == KindTEST || ctrl.Kind == KindXID || needsPID || ctrl.Kind == KindFRMR {
		if len(rest) > MaxInfoLen {
			return Packet{}, fmt.Errorf("ax25: information field too long (%d > %d)", len(rest), MaxInfoLen)
		}
		p.Info = rest
	}
	return p, nil
}

// crFromAddresses reads the command/response bits out of the raw
// destination/source address bytes (bit 7 of byte 7 of each), per the
// AX.25 C-bit convention: dest C=1,src C=0 -> command; dest C=0,src C=1 ->
// response.
func crFromAddresses(b []byte) CR {
	if len(b) < 14 {
		return Command
	}
	destC := b[6]&0x80 != 0
	if destC {
		return Command
	}
	return Response
}

// Encode serializes a Packet to wire bytes, including address list, control
// field, PID (if present), and information field.
func (p Packet) Encode() ([]byte, error) {
	addrBytes, err := p.Addresses.Encode()
	if err != nil {
		return nil, err
	}
	// Patch in the command/response bits on destination/source per AX.25
	// convention. Digipeater Repeated bits (set by encodeAddress) are
	// untouched.
	if len(addrBytes) >= 14 {
		switch p.CR {
		case Command:
			addrBytes[6] |= 0x80
			addrBytes[13] &^= 0x80
		case Response:
			addrBytes[6] &^= 0x80
			addrBytes[13] |= 0x80
		}
	}

	ctrlBytes, err := p.Control.EncodeControl(p.Modulo)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(addrBytes)+len(ctrlBytes)+1+len(p.Info))
	out = append(out, addrBytes...)
	out = append(out, ctrlBytes...)
	if p.HasPID {
		out = append(out, p.PID)
	}
	out = append(out, p.Info...)
	return out, nil
}

// UsedDigipeater reports whether any digipeater hop in the address list is
// marked has-been-repeated — the KISS dispatch rule (spec.md §4.1) uses
// this to route already-digipeated frames to the high-priority TX FIFO.
func (p Packet) UsedDigipeater() bool {
	for _, d := range p.Addresses.Digis {
		if d.Repeated {
			return true
		}
	}
	return false
}
