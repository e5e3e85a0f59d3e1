package dlsm

import (
	"fmt"

	"github.com/la5nta/axlink/ax25"
)

// firstSegmentFlag marks the first segment's n_following byte
// (spec.md §4.4.3).
const firstSegmentFlag = 0x80

// SegmentCount returns the number of segments a payload of length
// payloadLen with the given original PID will be split into when chunk
// size is n1Paclen (spec.md §4.4.3 / §8).
func SegmentCount(payloadLen, n1Paclen int) int {
	if n1Paclen <= 1 {
		return 0
	}
	return ceilDiv(payloadLen+1, n1Paclen-1)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Segment splits payload (tagged with pid) into extended-mode (mod 128)
// segmentation-fragment information fields, per spec.md §4.4.3:
//
//	first segment info:  [0x80 | n_following, original_pid, data...]
//	later segments info: [n_following, data...]
//
// The original PID is logically prepended to the payload to form one
// stream, which is then cut into (n1Paclen-1)-byte chunks, each prefixed
// with its 1-byte header — this is what makes SegmentCount's
// ceil((payload_len+1)/(n1Paclen-1)) formula exact and keeps every
// resulting frame's information field within n1Paclen bytes. Each returned
// []byte is a complete information field; callers wrap it in an I-frame
// with PID ax25.PIDSegmentation.
func Segment(payload []byte, pid byte, n1Paclen int) ([][]byte, error) {
	if n1Paclen <= 1 {
		return nil, fmt.Errorf("dlsm: n1_paclen must be > 1 to segment")
	}
	n := SegmentCount(len(payload), n1Paclen)
	if n <= 1 {
		return nil, fmt.Errorf("dlsm: payload does not require segmentation")
	}
	if n-1 > 0x7F {
		return nil, fmt.Errorf("dlsm: payload requires %d segments, exceeds 127", n)
	}

	stream := make([]byte, 0, len(payload)+1)
	stream = append(stream, pid)
	stream = append(stream, payload...)

	chunkSize := n1Paclen - 1
	out := make([][]byte, 0, n)
	nFollowing := n - 1
	for i := 0; i < len(stream); i += chunkSize {
		end := i + chunkSize
		if end > len(stream) {
			end = len(stream)
		}
		header := byte(nFollowing)
		if i == 0 {
			header |= firstSegmentFlag
		}
		seg := make([]byte, 0, 1+(end-i))
		seg = append(seg, header)
		seg = append(seg, stream[i:end]...)
		out = append(out, seg)
		nFollowing--
	}
	return out, nil
}

// Reassembler accumulates a single in-progress segmented payload. Per
// spec.md §3, at most one first-segment can be in progress at a time.
type Reassembler struct {
	active      bool
	pid         byte
	expectNext  int // n_following value we expect on the next segment
	data        []byte
}

// Feed processes one incoming segmentation-fragment information field.
// When the final segment arrives it returns (payload, pid, true, nil).
func (r *Reassembler) Feed(info []byte) (payload []byte, pid byte, done bool, err error) {
	if len(info) < 1 {
		return nil, 0, false, fmt.Errorf("dlsm: empty segmentation info field")
	}
	first := info[0]&firstSegmentFlag != 0
	nFollowing := int(info[0] &^ firstSegmentFlag)

	if first {
		if len(info) < 2 {
			return nil, 0, false, fmt.Errorf("dlsm: first segment missing PID byte")
		}
		r.active = true
		r.pid = info[1]
		r.data = append([]byte(nil), info[2:]...)
		r.expectNext = nFollowing - 1
		if r.expectNext < 0 {
			done = true
		}
	} else {
		if !r.active {
			return nil, 0, false, fmt.Errorf("dlsm: segment received with no first segment in progress")
		}
		if nFollowing != r.expectNext {
			r.active = false
			return nil, 0, false, fmt.Errorf("dlsm: out-of-sequence segment (got n_following=%d, want %d)", nFollowing, r.expectNext)
		}
		r.data = append(r.data, info[1:]...)
		r.expectNext--
		if r.expectNext < 0 {
			done = true
		}
	}

	if len(r.data) > ax25.MaxInfoLen {
		r.active = false
		return nil, 0, false, fmt.Errorf("dlsm: reassembled payload too long")
	}

	if !done {
		return nil, 0, false, nil
	}
	out := r.data
	pidOut := r.pid
	r.active = false
	r.data = nil
	return out, pidOut, true, nil
}

// Active reports whether a first-segment reassembly is currently in
// progress.
func (r *Reassembler) Active() bool { return r.active }
