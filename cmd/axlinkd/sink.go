package main

import (
	"strconv"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/dlsm"
	"github.com/la5nta/axlink/kiss"
	"github.com/la5nta/axlink/metrics"
	"github.com/la5nta/axlink/txqueue"
)

var _ dlsm.Sink = (*app)(nil)

// Transmit implements dlsm.Sink: it encodes the packet, enqueues it on the
// addressed channel's txqueue, and echoes the raw bytes to any attached
// KISS clients so a monitor sees the same traffic the channel sends
// (SPEC_FULL.md §5, §6).
func (a *app) Transmit(channel uint8, prio txqueue.Priority, bundlable bool, pkt ax25.Packet) {
	raw, err := pkt.Encode()
	if err != nil {
		a.log.Error("failed to encode outgoing packet", "channel", channel, "err", err)
		return
	}
	a.met.FramesSent.WithLabelValues(chanLabel(channel), metrics.KindLabel(pkt.Control.Kind)).Inc()

	cr, ok := a.channels[channel]
	if !ok {
		a.log.Warn("transmit for unknown channel", "channel", channel)
		return
	}
	cr.queue.Append(prio, txqueue.Frame{Payload: raw, Bundlable: bundlable})

	if a.kissTCP != nil {
		a.kissTCP.Broadcast(kiss.Encapsulate(append([]byte{channel << 4}, raw...)))
	}
}

// DataIndication implements dlsm.Sink: delivered I-frame payload is handed
// to whichever host application owns this link's client ID. Host delivery
// beyond the KISS channel broadcast is out of scope (SPEC_FULL.md §1); this
// records the indication for observability.
func (a *app) DataIndication(id dlsm.Identity, payload []byte) {
	a.log.Debug("data indication", "channel", id.Channel, "peer", id.Peer, "bytes", len(payload))
}

// ConnectIndication implements dlsm.Sink.
func (a *app) ConnectIndication(id dlsm.Identity) {
	a.met.StateTransitions.WithLabelValues("connected").Inc()
	a.log.Info("link connected", "channel", id.Channel, "own", id.Own, "peer", id.Peer)
}

// DisconnectIndication implements dlsm.Sink.
func (a *app) DisconnectIndication(id dlsm.Identity, reason string) {
	a.met.StateTransitions.WithLabelValues("disconnected").Inc()
	a.log.Info("link disconnected", "channel", id.Channel, "own", id.Own, "peer", id.Peer, "reason", reason)
}

func chanLabel(channel uint8) string {
	return strconv.Itoa(int(channel))
}

// Snapshot implements metrics.LinkLister.
func (a *app) Snapshot() []metrics.LinkSnapshot {
	rows := a.linkset.Snapshot()
	out := make([]metrics.LinkSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, metrics.LinkSnapshot{
			Channel:     r.ID.Channel,
			Own:         r.ID.Own.String(),
			Peer:        r.ID.Peer.String(),
			State:       r.State.String(),
			VS:          r.VS,
			VA:          r.VA,
			VR:          r.VR,
			Outstanding: r.Outstanding,
		})
	}
	return out
}
