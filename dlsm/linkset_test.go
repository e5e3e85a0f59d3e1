package dlsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/dlq"
	"github.com/la5nta/axlink/txqueue"
)

type nullSink struct{}

func (nullSink) Transmit(uint8, txqueue.Priority, bool, ax25.Packet) {}
func (nullSink) DataIndication(Identity, []byte)                    {}
func (nullSink) ConnectIndication(Identity)                         {}
func (nullSink) DisconnectIndication(Identity, string)               {}

func TestOutstandingFindsLinkRegardlessOfOriginatingEnd(t *testing.T) {
	own, err := ax25.ParseAddress("N0CALL-1")
	require.NoError(t, err)
	peer, err := ax25.ParseAddress("N0CALL-2")
	require.NoError(t, err)

	ls := NewLinkSet(DefaultConfig(), dlq.NewQueue(1), nil, nullSink{}, nil)
	established := Identity{Channel: 3, Own: own, Peer: peer}
	l := ls.lookupOrCreate(established)
	l.TxByNS[0] = []byte("a")
	l.TxByNS[1] = []byte("b")
	l.TxByNS[2] = []byte("c") // three unacked I-frames outstanding

	queried := Identity{Channel: 3, Own: peer, Peer: own} // swapped, as the far end would see it
	assert.Equal(t, 3, ls.Outstanding(queried))
	assert.Equal(t, 3, ls.Outstanding(established))
}

func TestOutstandingReportsZeroForUnknownLink(t *testing.T) {
	own, err := ax25.ParseAddress("N0CALL-1")
	require.NoError(t, err)
	peer, err := ax25.ParseAddress("N0CALL-2")
	require.NoError(t, err)

	ls := NewLinkSet(DefaultConfig(), dlq.NewQueue(1), nil, nullSink{}, nil)
	assert.Equal(t, 0, ls.Outstanding(Identity{Channel: 0, Own: own, Peer: peer}))
}
