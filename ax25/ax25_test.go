package ax25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressListRoundtrip(t *testing.T) {
	al := AddressList{
		Destination: Address{Call: "N0CALL", SSID: 1},
		Source:      Address{Call: "W1AW", SSID: 0},
		Digis: []Address{
			{Call: "DIGI1", SSID: 2, Repeated: true},
			{Call: "DIGI2", SSID: 3},
		},
	}
	b, err := al.Encode()
	require.NoError(t, err)
	assert.Len(t, b, 4*addrLen)

	back, n, err := DecodeAddressList(b)
	require.NoError(t, err)
	assert.Equal(t, len(b), n)
	assert.Equal(t, al, back)
}

func TestControlMod8IFrame(t *testing.T) {
	c := Control{Kind: KindI, NS: 3, NR: 5, PF: true}
	b, err := c.EncodeControl(Mod8)
	require.NoError(t, err)
	require.Len(t, b, 1)

	back, n, err := DecodeControl(b, Mod8)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, c.NS, back.NS)
	assert.Equal(t, c.NR, back.NR)
	assert.True(t, back.PF)
	assert.Equal(t, KindI, back.Kind)
}

func TestControlMod128IFrame(t *testing.T) {
	c := Control{Kind: KindI, NS: 100, NR: 99, PF: true}
	b, err := c.EncodeControl(Mod128)
	require.NoError(t, err)
	require.Len(t, b, 2)

	back, n, err := DecodeControl(b, Mod128)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 100, back.NS)
	assert.Equal(t, 99, back.NR)
}

func TestControlSFrames(t *testing.T) {
	for _, kind := range []FrameKind{KindRR, KindRNR, KindREJ, KindSREJ} {
		c := Control{Kind: kind, NR: 4, PF: false}
		b, err := c.EncodeControl(Mod8)
		require.NoError(t, err)
		back, _, err := DecodeControl(b, Mod8)
		require.NoError(t, err)
		assert.Equal(t, kind, back.Kind)
		assert.Equal(t, 4, back.NR)
	}
}

func TestControlUFrames(t *testing.T) {
	for _, kind := range []FrameKind{KindSABM, KindSABME, KindDISC, KindUA, KindDM, KindFRMR, KindXID, KindTEST, KindUI} {
		c := Control{Kind: kind, PF: true}
		b, err := c.EncodeControl(Mod8)
		require.NoError(t, err)
		back, n, err := DecodeControl(b, Mod8)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, kind, back.Kind)
		assert.True(t, back.PF)
	}
}

func TestDecodeControlUnrecognized(t *testing.T) {
	_, _, err := DecodeControl([]byte{0x17}, Mod8)
	require.Error(t, err)
	assert.True(t, IsUnrecognizedControl(err))
}

func TestPacketEncodeDecodeIFrame(t *testing.T) {
	p := Packet{
		Addresses: AddressList{
			Destination: Address{Call: "DEST"},
			Source:      Address{Call: "SRC", SSID: 5},
		},
		Modulo:  Mod8,
		Control: Control{Kind: KindI, NS: 1, NR: 2},
		CR:      Command,
		HasPID:  true,
		PID:     PIDNoLayer3,
		Info:    []byte("hello"),
	}
	b, err := p.Encode()
	require.NoError(t, err)

	back, err := Decode(b, Mod8)
	require.NoError(t, err)
	assert.Equal(t, p.Addresses, back.Addresses)
	assert.Equal(t, p.Control.NS, back.Control.NS)
	assert.Equal(t, p.PID, back.PID)
	assert.Equal(t, p.Info, back.Info)
	assert.Equal(t, Command, back.CR)
}

func TestPacketCRResponse(t *testing.T) {
	p := Packet{
		Addresses: AddressList{
			Destination: Address{Call: "DEST"},
			Source:      Address{Call: "SRC"},
		},
		Modulo:  Mod8,
		Control: Control{Kind: KindUA, PF: true},
		CR:      Response,
	}
	b, err := p.Encode()
	require.NoError(t, err)
	back, err := Decode(b, Mod8)
	require.NoError(t, err)
	assert.Equal(t, Response, back.CR)
}

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("n0call-5")
	require.NoError(t, err)
	assert.Equal(t, "N0CALL", a.Call)
	assert.EqualValues(t, 5, a.SSID)
	assert.Equal(t, "N0CALL-5", a.String())
}

func TestUsedDigipeater(t *testing.T) {
	p := Packet{Addresses: AddressList{Digis: []Address{{Call: "D1"}, {Call: "D2", Repeated: true}}}}
	assert.True(t, p.UsedDigipeater())

	p2 := Packet{Addresses: AddressList{Digis: []Address{{Call: "D1"}}}}
	assert.False(t, p2.UsedDigipeater())
}
