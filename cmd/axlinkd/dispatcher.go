package main

import (
	"fmt"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/kiss"
	"github.com/la5nta/axlink/txqueue"
)

// dispatcher bridges a kiss.Session's decoded client commands onto the
// channel runtime they address: data frames go on the channel's txqueue,
// parameter commands mutate the channel's live transmit timing, and
// SetHardware answers a handful of host-application queries
// (SPEC_FULL.md §6).
type dispatcher struct {
	app *app
}

var _ kiss.Dispatcher = (*dispatcher)(nil)

// Data implements kiss.Dispatcher: per spec.md §4.1's dispatch-table rule,
// a frame that has already traversed a digipeater goes on the high-priority
// FIFO (it must not be delayed behind fresh low-priority traffic), anything
// else goes on low.
func (d *dispatcher) Data(channel uint8, payload []byte) error {
	cr, ok := d.app.channels[channel]
	if !ok {
		return fmt.Errorf("dispatcher: no channel %d", channel)
	}

	prio := txqueue.Low
	if al, _, err := ax25.DecodeAddressList(payload); err == nil {
		pkt := ax25.Packet{Addresses: al}
		if pkt.UsedDigipeater() {
			prio = txqueue.High
		}
	}

	cr.queue.Append(prio, txqueue.Frame{Payload: payload, Bundlable: true})
	return nil
}

func (d *dispatcher) Param(channel uint8, cmd kiss.Command, value byte) error {
	cr, ok := d.app.channels[channel]
	if !ok {
		return fmt.Errorf("dispatcher: no channel %d", channel)
	}
	switch cmd {
	case kiss.CmdTXDelay:
		cr.worker.Channel.TXDelayMs = int(value) * 10
	case kiss.CmdPersistence:
		cr.worker.Channel.Persist = value
	case kiss.CmdSlotTime:
		cr.worker.Channel.SlotTimeMs = int(value) * 10
	case kiss.CmdTXTail:
		cr.worker.Channel.TXTailMs = int(value) * 10
	case kiss.CmdFullDuplex:
		cr.worker.Channel.FullDuplex = value != 0
	case kiss.CmdReturn:
		// Host is detaching; nothing to clean up per-client here.
	}
	return nil
}

// axlinkdVersion is reported in response to a KISS "TNC" SetHardware query
// (spec.md §4.1).
const axlinkdVersion = "axlinkd 1.0"

func (d *dispatcher) SetHardware(channel uint8, text string, reply kiss.Sender) error {
	cr, ok := d.app.channels[channel]
	if !ok {
		return fmt.Errorf("dispatcher: no channel %d", channel)
	}
	switch text {
	case "TXBUF":
		depth := cr.queue.QueuedBytes()
		return reply.Send(kiss.EncodeSetHardware(channel, fmt.Sprintf("TXBUF %d", depth)))
	case "TNC":
		return reply.Send(kiss.EncodeSetHardware(channel, fmt.Sprintf("TNC %s", axlinkdVersion)))
	}
	return nil
}
