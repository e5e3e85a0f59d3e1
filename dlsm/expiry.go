package dlsm

import (
	"time"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/txqueue"
)

// HandleT1Expiry implements spec.md §4.4.6: behavior differs by state.
// RC is incremented and checked against N2 before any retransmission is
// attempted; exceeding N2 resets the link and reports a disconnect. State 4
// (TimerRecovery) exhaustion is the "no response to enquiry" case and gets
// its own protocol error and a DM sent to the peer before the reset.
func (l *Link) HandleT1Expiry(now time.Time) Outcome {
	var o Outcome
	l.RC++
	if l.RC > l.retryLimit() {
		if l.State == StateTimerRecovery {
			o.protoErr(ErrT)
			l.emitResponseU(&o, ax25.KindDM, false, nil)
		} else {
			o.protoErr(ErrW)
		}
		l.linkReset(now, &o)
		return o
	}
	l.onT1ExpiredRetry()

	switch l.State {
	case StateAwaitingConnection:
		if l.RC > l.Cfg.MaxV22 && l.Modulo == ax25.Mod128 {
			// Fall back to v2.0 and retry as SABM.
			l.Modulo = ax25.Mod8
			l.K = l.Cfg.WindowMod8
			l.RC = 0
		}
		kind := ax25.KindSABME
		if l.Modulo == ax25.Mod8 {
			kind = ax25.KindSABM
		}
		l.emitCommandU(&o, kind, true)
	case StateAwaitingV22Connection:
		if l.RC > l.Cfg.MaxV22 {
			l.Modulo = ax25.Mod8
			l.K = l.Cfg.WindowMod8
			l.RC = 0
			l.State = StateAwaitingConnection
			l.emitCommandU(&o, ax25.KindSABM, true)
		} else {
			l.emitCommandU(&o, ax25.KindSABME, true)
		}
	case StateAwaitingRelease:
		l.emitCommandU(&o, ax25.KindDISC, true)
	case StateConnected:
		l.State = StateTimerRecovery
		l.pollForState(&o)
	case StateTimerRecovery:
		l.pollForState(&o)
	}

	l.T1.Start(now, time.Duration(l.T1V*float64(time.Second)))
	return o
}

// pollForState re-transmits the oldest unacknowledged I-frame (or, if none
// is outstanding, a bare RR/RNR) with the poll bit set, per spec.md
// §4.4.6's TimerRecovery retry behavior.
func (l *Link) pollForState(o *Outcome) {
	if payload := l.TxByNS[l.VA]; payload != nil {
		ctrl := ax25.Control{Kind: ax25.KindI, NS: l.VA, NR: l.VR, PF: true}
		pkt := l.buildPacket(ax25.Command, ctrl, true, ax25.PIDNoLayer3, payload)
		o.emit(pkt, txqueue.High, false)
		return
	}
	kind := ax25.KindRR
	if l.OwnBusy {
		kind = ax25.KindRNR
	}
	l.emitS(o, ax25.Command, kind, true, nil)
}

func (l *Link) retryLimit() int {
	return l.N2
}

// linkReset implements the "retries exceeded" recovery action: clear
// sequencing and buffers and report a disconnect up to the client
// (spec.md §4.4.6, §7 error W).
func (l *Link) linkReset(now time.Time, o *Outcome) {
	l.T1.Stop(now)
	l.T3.Stop(now)
	l.resetSequencing()
	l.IFrameQueue = nil
	l.State = StateDisconnected
	o.Disconnect = true
	o.DisconnectReason = "N2 retries exceeded"
}

// HandleT3Expiry implements spec.md §4.4.7: poll the peer with an RR/RNR
// carrying P=1 and move to TimerRecovery awaiting the reply.
func (l *Link) HandleT3Expiry(now time.Time) Outcome {
	var o Outcome
	if l.State != StateConnected {
		return o
	}
	l.RC = 0
	l.State = StateTimerRecovery
	kind := ax25.KindRR
	if l.OwnBusy {
		kind = ax25.KindRNR
	}
	l.emitS(&o, ax25.Command, kind, true, nil)
	l.T1.Start(now, time.Duration(l.T1V*float64(time.Second)))
	return o
}

// HandleTM201Expiry implements spec.md §4.4.8: the XID negotiation
// enquiry timed out. Retry up to N2 times, then fall back to v2.0 and
// re-establish with SABM.
func (l *Link) HandleTM201Expiry(now time.Time) Outcome {
	var o Outcome
	if l.State != StateAwaitingV22Connection || !l.mdlNegotiating() {
		return o
	}
	l.RC++
	if l.RC > l.Cfg.MaxV22 {
		l.Modulo = ax25.Mod8
		l.K = l.Cfg.WindowMod8
		l.RC = 0
		l.State = StateAwaitingConnection
		l.emitCommandU(&o, ax25.KindSABM, true)
		l.T1.Start(now, time.Duration(l.initialT1V()*float64(time.Second)))
		return o
	}
	l.initiateXID(now, &o)
	return o
}

func (l *Link) mdlNegotiating() bool {
	return !l.mdlReady
}
