package dlsm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/xid"
)

func testIdentity(t *testing.T) Identity {
	own, err := ax25.ParseAddress("N0CALL-1")
	require.NoError(t, err)
	peer, err := ax25.ParseAddress("N0CALL-2")
	require.NoError(t, err)
	return Identity{Channel: 0, Own: own, Peer: peer}
}

func TestHandleT1ExpiryTimerRecoveryExhaustionSendsDMAndErrT(t *testing.T) {
	cfg := DefaultConfig()
	cfg.N2 = 2
	l := NewLink(testIdentity(t), cfg, 0)
	l.State = StateTimerRecovery
	l.RC = cfg.N2 // next expiry pushes RC past the limit

	o := l.HandleT1Expiry(time.Now())

	assert.Equal(t, StateDisconnected, l.State)
	require.True(t, o.Disconnect)
	require.Contains(t, o.ProtoErrors, ErrT)
	require.Len(t, o.Frames, 1)
	assert.Equal(t, ax25.KindDM, o.Frames[0].Packet.Control.Kind)
}

func TestHandleT1ExpiryOtherStateExhaustionUsesErrW(t *testing.T) {
	cfg := DefaultConfig()
	cfg.N2 = 2
	l := NewLink(testIdentity(t), cfg, 0)
	l.State = StateAwaitingConnection
	l.RC = cfg.N2

	o := l.HandleT1Expiry(time.Now())

	assert.Equal(t, StateDisconnected, l.State)
	require.True(t, o.Disconnect)
	require.Contains(t, o.ProtoErrors, ErrW)
	assert.Empty(t, o.Frames)
}

func TestApplyXIDParamsAppliesNegotiatedRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.N2 = 10
	l := NewLink(testIdentity(t), cfg, 0)
	require.Equal(t, 10, l.retryLimit())

	l.applyXIDParams(xid.Params{Present: xid.HasRetries, Retries: 5})

	assert.Equal(t, 5, l.retryLimit())
}
