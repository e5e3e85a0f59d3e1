package main

import (
	"fmt"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/dlq"
	"github.com/la5nta/axlink/dlsm"
	"github.com/la5nta/axlink/kiss"
)

// InjectReceivedFrame is the boundary a modem/demodulator collaborator
// calls once it has recovered a complete HDLC frame off the air. Modem and
// PTT hardware are out of scope (spec.md §1), so nothing in this repo
// calls it yet; it exists so that boundary is concrete rather than
// implied, and so KISS-attached monitor clients can be fed without
// threading decode logic through the transport layer twice.
func (a *app) InjectReceivedFrame(channel uint8, raw []byte) error {
	if _, ok := a.channels[channel]; !ok {
		return fmt.Errorf("axlinkd: received frame on unknown channel %d", channel)
	}

	al, _, err := ax25.DecodeAddressList(raw)
	if err != nil {
		a.log.Debug("discarding frame with bad address field", "channel", channel, "err", err)
		return nil
	}
	id := dlsm.Identity{Channel: channel, Own: al.Destination, Peer: al.Source}
	modulo := a.linkset.ModuloFor(id)

	pkt, err := ax25.Decode(raw, modulo)
	if err != nil {
		a.log.Debug("discarding undecodable frame", "channel", channel, "err", err)
		return nil
	}

	a.dlq.Push(dlq.Event{
		Kind:      dlq.LMDataInd,
		Channel:   channel,
		Addresses: ax25.AddressList{Source: al.Destination, Destination: al.Source},
		Packet:    &pkt,
	})

	if a.kissTCP != nil {
		a.kissTCP.Broadcast(kiss.Encapsulate(append([]byte{channel << 4}, raw...)))
	}
	return nil
}
