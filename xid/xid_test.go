package xid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	p := Params{
		FullDuplex: true,
		SrejEnable: SrejMulti,
		Modulo:     128,
		N1Bits:     2048 * 8,
		Window:     7,
		AckTimerMs: 3000,
		Retries:    10,
	}
	b := Encode(p)
	assert.Equal(t, byte(FormatIdentifier), b[0])
	assert.Equal(t, byte(GroupIdentifier), b[1])

	back, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, p.FullDuplex, back.FullDuplex)
	assert.Equal(t, p.SrejEnable, back.SrejEnable)
	assert.Equal(t, p.Modulo, back.Modulo)
	assert.Equal(t, p.N1Bits, back.N1Bits)
	assert.Equal(t, p.Window, back.Window)
	assert.Equal(t, p.AckTimerMs, back.AckTimerMs)
	assert.Equal(t, p.Retries, back.Retries)
}

func TestNegotiateMinMax(t *testing.T) {
	local := Params{
		Present:    HasHDLCOpts | HasWindow | HasAckTimer | HasRetries,
		Modulo:     128,
		SrejEnable: SrejMulti,
		Window:     7,
		AckTimerMs: 3000,
		Retries:    10,
	}
	proposed := Params{
		Present:    HasHDLCOpts | HasWindow | HasAckTimer | HasRetries,
		Modulo:     8,
		SrejEnable: SrejNone,
		Window:     3,
		AckTimerMs: 5000,
		Retries:    20,
	}
	out := Negotiate(proposed, local)
	assert.Equal(t, 8, out.Modulo) // min
	assert.Equal(t, SrejNone, out.SrejEnable)
	assert.Equal(t, 3, out.Window)         // min
	assert.Equal(t, 5000, out.AckTimerMs)  // max
	assert.Equal(t, 20, out.Retries)       // max
}

func TestNegotiateUnspecifiedDefaultsToLocal(t *testing.T) {
	local := Params{Present: HasWindow, Window: 4}
	proposed := Params{} // nothing specified
	out := Negotiate(proposed, local)
	assert.Equal(t, 4, out.Window)
}
