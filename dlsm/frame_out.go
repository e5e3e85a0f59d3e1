package dlsm

import (
	"time"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/txqueue"
)

// addresses builds the AddressList for a frame this link sends: its own
// callsign becomes the source, the peer becomes the destination. Digipeater
// path reversal is not modeled: frames are always sent without a
// digipeater path.
func (l *Link) addresses() ax25.AddressList {
	return ax25.AddressList{Destination: l.ID.Peer, Source: l.ID.Own}
}

func (l *Link) buildPacket(cr ax25.CR, ctrl ax25.Control, hasPID bool, pid byte, info []byte) ax25.Packet {
	return ax25.Packet{
		Addresses: l.addresses(),
		Modulo:    l.Modulo,
		Control:   ctrl,
		CR:        cr,
		HasPID:    hasPID,
		PID:       pid,
		Info:      info,
	}
}

func (l *Link) emitCommandU(o *Outcome, kind ax25.FrameKind, pf bool) {
	pkt := l.buildPacket(ax25.Command, ax25.Control{Kind: kind, PF: pf}, false, 0, nil)
	o.emit(pkt, txqueue.High, true)
}

func (l *Link) emitResponseU(o *Outcome, kind ax25.FrameKind, f bool, info []byte) {
	pkt := l.buildPacket(ax25.Response, ax25.Control{Kind: kind, PF: f}, false, 0, info)
	o.emit(pkt, txqueue.High, true)
}

func (l *Link) emitS(o *Outcome, cr ax25.CR, kind ax25.FrameKind, pf bool, info []byte) {
	ctrl := ax25.Control{Kind: kind, PF: pf, NR: l.VR}
	pkt := l.buildPacket(cr, ctrl, false, 0, info)
	o.emit(pkt, txqueue.High, true)
}

// emitSAt emits an S-frame with an explicit N(R), used for REJ/SREJ replies
// that reference a sequence number other than the current V(R).
func (l *Link) emitSAt(o *Outcome, cr ax25.CR, kind ax25.FrameKind, pf bool, nr int, info []byte) {
	ctrl := ax25.Control{Kind: kind, PF: pf, NR: nr}
	pkt := l.buildPacket(cr, ctrl, false, 0, info)
	o.emit(pkt, txqueue.High, true)
}

func (l *Link) emitI(o *Outcome, ns int, pid byte, info []byte) {
	ctrl := ax25.Control{Kind: ax25.KindI, NS: ns, NR: l.VR, PF: false}
	pkt := l.buildPacket(ax25.Command, ctrl, true, pid, info)
	o.emit(pkt, txqueue.Low, true)
}

// iFramePop pops queued payloads into outstanding I-frames while the window
// has room and the peer is not busy (spec.md §4.4.3). New frames are only
// popped here — called on LM-SEIZE-CONFIRM, and opportunistically on client
// data arrival when the window isn't full and the link is quiescent (see
// handleDLDataReq).
func (l *Link) iFramePop(now time.Time, o *Outcome) {
	popped := false
	for !l.PeerBusy && rotate(l.VS, l.VA, int(l.Modulo)) < l.K {
		if len(l.IFrameQueue) == 0 {
			break
		}
		entry := l.IFrameQueue[0]
		l.IFrameQueue = l.IFrameQueue[1:]

		ns := l.VS
		l.TxByNS[ns] = entry.Data
		l.emitI(o, ns, entry.PID, entry.Data)
		l.VS = (l.VS + 1) % int(l.Modulo)
		l.AckPending = false
		popped = true
	}
	if popped {
		l.T1.Start(now, time.Duration(l.T1V*float64(time.Second)))
		l.T3.Stop(now)
	}
}
