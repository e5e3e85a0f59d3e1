package dlsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestSegmentReassembleRoundtrip(t *testing.T) {
	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte(i)
	}
	const n1 = 128
	segs, err := Segment(payload, 0xF0, n1)
	require.NoError(t, err)
	assert.Equal(t, SegmentCount(len(payload), n1), len(segs))

	var r Reassembler
	var out []byte
	var pid byte
	for i, s := range segs {
		p, pd, done, err := r.Feed(s)
		require.NoError(t, err)
		if i < len(segs)-1 {
			assert.False(t, done)
		} else {
			require.True(t, done)
			out, pid = p, pd
		}
	}
	assert.Equal(t, payload, out)
	assert.Equal(t, byte(0xF0), pid)
}

func TestSegmentReassemblePropertyRoundtrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n1 := rapid.IntRange(3, 256).Draw(t, "n1")
		payloadLen := rapid.IntRange(n1, 2048).Draw(t, "payloadLen")
		payload := make([]byte, payloadLen)
		for i := range payload {
			payload[i] = byte(rapid.IntRange(0, 255).Draw(t, "b"))
		}
		pid := byte(rapid.IntRange(0, 255).Draw(t, "pid"))

		segs, err := Segment(payload, pid, n1)
		if err != nil {
			return // e.g. too many segments required; not interesting here
		}
		require.Equal(t, SegmentCount(len(payload), n1), len(segs))

		var r Reassembler
		var out []byte
		var outPID byte
		for _, s := range segs {
			require.LessOrEqual(t, len(s), n1)
			p, pd, done, err := r.Feed(s)
			require.NoError(t, err)
			if done {
				out, outPID = p, pd
			}
		}
		require.Equal(t, payload, out)
		require.Equal(t, pid, outPID)
	})
}

func TestSegmentTooSmallPayloadErrors(t *testing.T) {
	_, err := Segment([]byte("x"), 0xF0, 128)
	assert.Error(t, err)
}

func TestReassemblerOutOfSequenceErrors(t *testing.T) {
	segs, err := Segment(make([]byte, 300), 0xF0, 64)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(segs), 3)

	var r Reassembler
	_, _, _, err = r.Feed(segs[0])
	require.NoError(t, err)
	_, _, _, err = r.Feed(segs[2]) // skip one
	assert.Error(t, err)
}
