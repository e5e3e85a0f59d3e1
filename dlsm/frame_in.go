package dlsm

import (
	"time"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/xid"
)

// handleLMDataInd processes one received frame (spec.md §4.4.2). It runs
// command/response and P/F sanity checks (logged, never fatal), then
// dispatches by frame type.
func (l *Link) handleLMDataInd(now time.Time, pkt *ax25.Packet) Outcome {
	var o Outcome
	l.RecvCounters[pkt.Control.Kind]++

	if pkt.Control.Kind.IsCommandOnly() && pkt.CR != ax25.Command {
		o.protoErr(ErrL)
	}
	if pkt.Control.Kind.IsResponseOnly() && pkt.CR != ax25.Response {
		o.protoErr(ErrL)
	}

	switch pkt.Control.Kind {
	case ax25.KindI:
		l.handleI(now, pkt, &o)
	case ax25.KindRR, ax25.KindRNR:
		l.handleRRRNR(now, pkt, &o)
	case ax25.KindREJ:
		l.handleREJ(now, pkt, &o)
	case ax25.KindSREJ:
		l.handleSREJ(now, pkt, &o)
	case ax25.KindSABM:
		l.handleSABM(now, pkt, &o, ax25.Mod8)
	case ax25.KindSABME:
		l.handleSABM(now, pkt, &o, ax25.Mod128)
	case ax25.KindDISC:
		l.handleDISC(now, pkt, &o)
	case ax25.KindUA:
		l.handleUA(now, pkt, &o)
	case ax25.KindDM:
		l.handleDM(now, pkt, &o)
	case ax25.KindFRMR:
		l.handleFRMR(now, pkt, &o)
	case ax25.KindXID:
		l.handleXID(now, pkt, &o)
	case ax25.KindTEST:
		l.handleTEST(pkt, &o)
	case ax25.KindUI:
		// UI is not normally routed through the connected-mode DLSM
		// (spec.md §4.4.2); nothing to do here.
	}
	return o
}

// handleI implements spec.md §4.4.2's I-frame reception rules, covering
// in-order delivery, SREJ-disabled discard with REJ, and SREJ-enabled
// stash/gap-fill.
func (l *Link) handleI(now time.Time, pkt *ax25.Packet, o *Outcome) {
	if !l.inConnectedFamily() {
		o.protoErr(ErrK)
		return
	}
	ns := pkt.Control.NS
	m := int(l.Modulo)

	if ns == l.VR {
		l.deliver(pkt.HasPID, pkt.PID, pkt.Info, o)
		l.VR = (l.VR + 1) % m
		// Drain any consecutive stashed frames.
		for l.RxByNS[l.VR] != nil {
			info := l.RxByNS[l.VR]
			l.RxByNS[l.VR] = nil
			l.deliverRaw(info, o)
			l.VR = (l.VR + 1) % m
		}
		if pkt.Control.PF {
			l.emitAckResponse(o, true)
		} else {
			l.AckPending = true
		}
		return
	}

	if l.SrejEnable == xid.SrejNone {
		if !l.RejectException {
			l.emitSAt(o, ax25.Response, ax25.KindREJ, pkt.Control.PF, l.VR, nil)
			l.RejectException = true
		}
		return
	}

	// SREJ enabled: stash if within window, then emit SREJ(s) for the gap.
	if !inWindowExclusive(ns, l.VR, l.K, m) {
		return
	}
	l.RxByNS[ns] = storeInfo(pkt.HasPID, pkt.PID, pkt.Info)
	l.emitSREJGap(now, ns, pkt.Control.PF, o)
}

// emitSREJGap computes the contiguous gap ending at ns-1 (relative to VR)
// and emits SREJ responses for the missing sequence numbers (spec.md
// §4.4.2). The SREJ for the oldest missing entry (== V(R)) may carry F=1.
func (l *Link) emitSREJGap(now time.Time, ns int, pf bool, o *Outcome) {
	m := int(l.Modulo)
	var missing []int
	for i := l.VR; i != ns; i = (i + 1) % m {
		if l.RxByNS[i] == nil {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return
	}
	if l.SrejEnable == xid.SrejMulti && len(missing) > 1 {
		info := make([]byte, 0, len(missing)-1)
		for _, seq := range missing[1:] {
			info = append(info, byte(seq<<1)) // low bit 0: single, not span
		}
		l.emitSAt(o, ax25.Response, ax25.KindSREJ, pf && missing[0] == l.VR, missing[0], info)
	} else {
		for i, seq := range missing {
			f := pf && i == 0
			l.emitSAt(o, ax25.Response, ax25.KindSREJ, f, seq, nil)
		}
	}
}

func storeInfo(hasPID bool, pid byte, info []byte) []byte {
	// rx_by_ns stores the raw information field prefixed with the PID byte
	// if present, so deliverRaw can hand the same bytes to the client that
	// handleI would for an in-order frame.
	if !hasPID {
		return append([]byte(nil), info...)
	}
	out := make([]byte, 0, len(info)+1)
	out = append(out, pid)
	out = append(out, info...)
	return out
}

func (l *Link) deliver(hasPID bool, pid byte, info []byte, o *Outcome) {
	if hasPID && pid == ax25.PIDSegmentation {
		payload, _, done, err := l.Reassembler.Feed(info)
		if err != nil {
			return
		}
		if done {
			o.DataIndications = append(o.DataIndications, payload)
		}
		return
	}
	o.DataIndications = append(o.DataIndications, append([]byte(nil), info...))
}

func (l *Link) deliverRaw(stashed []byte, o *Outcome) {
	if len(stashed) == 0 {
		o.DataIndications = append(o.DataIndications, stashed)
		return
	}
	// First byte is the PID per storeInfo; re-derive hasPID by symmetry
	// with the frame that produced it (best-effort: segmentation PID is
	// distinguishable by value).
	pid, info := stashed[0], stashed[1:]
	l.deliver(true, pid, info, o)
}

// emitAckResponse replies RR/RNR with F set, per the poll-bit-set branch of
// I-frame reception (spec.md §4.4.2).
func (l *Link) emitAckResponse(o *Outcome, f bool) {
	kind := ax25.KindRR
	if l.OwnBusy {
		kind = ax25.KindRNR
	}
	l.emitS(o, ax25.Response, kind, f, nil)
}

// handleRRRNR implements spec.md §4.4.2's RR/RNR rules.
func (l *Link) handleRRRNR(now time.Time, pkt *ax25.Packet, o *Outcome) {
	l.PeerBusy = pkt.Control.Kind == ax25.KindRNR
	l.advanceOrRecover(now, pkt, o)

	if l.State == StateTimerRecovery && pkt.CR == ax25.Response && pkt.Control.PF {
		l.resolveTimerRecoveryPoll(now, o)
	}
}

// advanceOrRecover advances V(A) if N(R) is good, freeing acknowledged
// tx_by_ns slots; otherwise triggers N(R) error recovery (spec.md §4.4.2).
func (l *Link) advanceOrRecover(now time.Time, pkt *ax25.Packet, o *Outcome) {
	nr := pkt.Control.NR
	if !isGoodNR(nr, l.VA, l.VS, int(l.Modulo)) {
		o.protoErr(ErrN)
		l.establishDataLink(now, o, true)
		return
	}
	for l.VA != nr {
		l.TxByNS[l.VA] = nil
		l.VA = (l.VA + 1) % int(l.Modulo)
	}
}

func (l *Link) resolveTimerRecoveryPoll(now time.Time, o *Outcome) {
	if l.VA == l.VS {
		l.T1.Stop(now)
		l.onT1StoppedNormally(l.T1.LastRemaining().Seconds())
		l.T3.Start(now, l.Cfg.T3Period)
		l.RC = 0
		l.State = StateConnected
		return
	}
	l.retransmitFrom(l.VA, o)
}

func (l *Link) retransmitFrom(from int, o *Outcome) {
	m := int(l.Modulo)
	for i := from; i != l.VS; i = (i + 1) % m {
		if payload := l.TxByNS[i]; payload != nil {
			l.emitI(o, i, ax25.PIDNoLayer3, payload)
		}
	}
}

// handleREJ implements spec.md §4.4.2: as RR, but additionally retransmits
// all I-frames from N(R) through V(S)-1.
func (l *Link) handleREJ(now time.Time, pkt *ax25.Packet, o *Outcome) {
	l.PeerBusy = false
	l.advanceOrRecover(now, pkt, o)
	l.retransmitFrom(pkt.Control.NR, o)
	if l.State == StateTimerRecovery && pkt.CR == ax25.Response && pkt.Control.PF {
		l.resolveTimerRecoveryPoll(now, o)
	}
}

// handleSREJ implements spec.md §4.4.2: resend the single frame N(R); if
// F=1 also advance V(A); additional sequence numbers in the info field are
// extra resend targets (low bit indicates span vs single).
func (l *Link) handleSREJ(now time.Time, pkt *ax25.Packet, o *Outcome) {
	if payload := l.TxByNS[pkt.Control.NR]; payload != nil {
		l.emitI(o, pkt.Control.NR, ax25.PIDNoLayer3, payload)
	}
	for _, b := range pkt.Info {
		seq := int(b >> 1)
		span := b&0x01 != 0
		if !span {
			if payload := l.TxByNS[seq]; payload != nil {
				l.emitI(o, seq, ax25.PIDNoLayer3, payload)
			}
		} else {
			l.retransmitFrom(seq, o)
		}
	}
	if pkt.Control.PF {
		l.advanceOrRecover(now, pkt, o)
	}
}

// handleSABM implements spec.md §4.4.2: reset sequencing, negotiate
// modulo, respond UA with F=P, signal a connect indication.
func (l *Link) handleSABM(now time.Time, pkt *ax25.Packet, o *Outcome, m ax25.Modulo) {
	l.resetSequencing()
	l.Modulo = m
	if m == ax25.Mod128 {
		l.K = l.Cfg.WindowMod128
	} else {
		l.K = l.Cfg.WindowMod8
	}
	l.RC = 0
	l.SRT = l.initialT1V() / 2
	l.T1V = l.initialT1V()
	l.T1.Stop(now)
	l.T3.Start(now, l.Cfg.T3Period)
	l.State = StateConnected
	l.emitResponseU(o, ax25.KindUA, pkt.Control.PF, nil)
	o.ConnectIndication = true
}

// handleDISC implements spec.md §4.4.2: respond UA with F=P, signal
// disconnect, enter Disconnected.
func (l *Link) handleDISC(now time.Time, pkt *ax25.Packet, o *Outcome) {
	l.emitResponseU(o, ax25.KindUA, pkt.Control.PF, nil)
	l.T1.Stop(now)
	l.T3.Stop(now)
	l.State = StateDisconnected
	o.Disconnect = true
	o.DisconnectReason = "DISC received"
}

// handleUA implements spec.md §4.4.2: in AwaitingConnection or
// AwaitingV22Connection, transition to Connected; for AwaitingV22Connection
// additionally initiate XID negotiation.
func (l *Link) handleUA(now time.Time, pkt *ax25.Packet, o *Outcome) {
	switch l.State {
	case StateAwaitingConnection:
		l.VS, l.VA, l.VR = 0, 0, 0
		l.RC = 0
		l.T1.Stop(now)
		l.T3.Start(now, l.Cfg.T3Period)
		l.State = StateConnected
		o.ConnectIndication = true
		l.iFramePop(now, o)
	case StateAwaitingV22Connection:
		l.VS, l.VA, l.VR = 0, 0, 0
		l.RC = 0
		l.T1.Stop(now)
		l.T3.Start(now, l.Cfg.T3Period)
		l.State = StateConnected
		o.ConnectIndication = true
		l.initiateXID(now, o)
	case StateAwaitingRelease:
		l.T1.Stop(now)
		l.T3.Stop(now)
		l.State = StateDisconnected
		o.Disconnect = true
		o.DisconnectReason = "UA received"
	default:
		o.protoErr(ErrB)
	}
}

// handleDM implements spec.md §4.4.2: in AwaitingV22Connection, fall back
// to v2.0 parameters and re-establish with SABM.
func (l *Link) handleDM(now time.Time, pkt *ax25.Packet, o *Outcome) {
	switch l.State {
	case StateAwaitingV22Connection:
		l.Modulo = ax25.Mod8
		l.K = l.Cfg.WindowMod8
		l.RC = 0
		l.State = StateAwaitingConnection
		l.emitCommandU(o, ax25.KindSABM, true)
		l.T1.Start(now, time.Duration(l.T1V*float64(time.Second)))
	case StateAwaitingConnection, StateAwaitingRelease:
		l.T1.Stop(now)
		l.T3.Stop(now)
		l.State = StateDisconnected
		o.Disconnect = true
		o.DisconnectReason = "DM received"
	default:
		o.protoErr(ErrC)
	}
}

// handleFRMR implements spec.md §4.4.2: treat as a link reset, force v2.0
// and re-establish.
func (l *Link) handleFRMR(now time.Time, pkt *ax25.Packet, o *Outcome) {
	o.protoErr(ErrU)
	l.establishDataLink(now, o, true)
}

// establishDataLink resets to v2.0 and (re)issues SABM, entering
// AwaitingConnection. Used by N(R) error recovery and FRMR handling
// (spec.md §4.4.2 "perform N(R) error recovery").
func (l *Link) establishDataLink(now time.Time, o *Outcome, forceV20 bool) {
	if forceV20 {
		l.Modulo = ax25.Mod8
		l.K = l.Cfg.WindowMod8
	}
	l.resetSequencing()
	l.RC = 0
	l.State = StateAwaitingConnection
	l.emitCommandU(o, ax25.KindSABM, true)
	l.T1.Start(now, time.Duration(l.T1V*float64(time.Second)))
	l.T3.Stop(now)
}

// handleXID implements spec.md §4.4.2: an XID command is answered with the
// per-field negotiated minimum/maximum; an XID response applies the
// negotiated parameters locally.
func (l *Link) handleXID(now time.Time, pkt *ax25.Packet, o *Outcome) {
	proposed, err := xid.Decode(pkt.Info)
	if err != nil {
		return
	}
	local := l.localXIDParams()

	if pkt.CR == ax25.Command {
		negotiated := xid.Negotiate(proposed, local)
		l.applyXIDParams(negotiated)
		info := xid.Encode(negotiated)
		l.emitResponseU(o, ax25.KindXID, pkt.Control.PF, info)
		return
	}
	// XID response: apply negotiated parameters directly.
	l.applyXIDParams(proposed)
	l.TM201.Stop(now)
	l.mdlReady = true
}

func (l *Link) localXIDParams() xid.Params {
	return xid.Params{
		Present:    xid.HasHDLCOpts | xid.HasWindow | xid.HasIFieldLen | xid.HasAckTimer | xid.HasRetries | xid.HasClasses,
		FullDuplex: l.Cfg.FullDuplex,
		SrejEnable: l.Cfg.SrejEnable,
		Modulo:     int(ax25.Mod128),
		N1Bits:     l.Cfg.N1Paclen * 8,
		Window:     l.Cfg.WindowMod128,
		AckTimerMs: int(l.initialT1V() * 1000),
		Retries:    l.N2,
	}
}

func (l *Link) applyXIDParams(p xid.Params) {
	if p.Present&xid.HasWindow != 0 && p.Window > 0 {
		l.K = p.Window
	}
	if p.Present&xid.HasIFieldLen != 0 && p.N1Bits > 0 {
		l.N1Paclen = p.N1Bits / 8
	}
	if p.Present&xid.HasHDLCOpts != 0 {
		l.SrejEnable = p.SrejEnable
	}
	if p.Present&xid.HasAckTimer != 0 && p.AckTimerMs > 0 {
		l.T1V = float64(p.AckTimerMs) / 1000
	}
	if p.Present&xid.HasRetries != 0 && p.Retries > 0 {
		l.N2 = p.Retries
	}
}

// initiateXID sends the initial XID command after a SABME/UA exchange
// (spec.md §4.4.2 "for state 5, initiate XID negotiation (MDL-state
// machine)").
func (l *Link) initiateXID(now time.Time, o *Outcome) {
	local := l.localXIDParams()
	info := xid.Encode(local)
	l.emitCommandU(o, ax25.KindXID, true)
	// Replace the just-emitted empty-info XID with one carrying parameters:
	// emitCommandU built a bare U-frame, so patch the information field in.
	o.Frames[len(o.Frames)-1].Packet.Info = info
	o.Frames[len(o.Frames)-1].Packet.HasPID = false
	l.TM201.Start(now, 3*time.Second)
}

// handleTEST implements spec.md §4.4.2: answer a TEST command by echoing
// the information field back as a TEST response.
func (l *Link) handleTEST(pkt *ax25.Packet, o *Outcome) {
	if pkt.CR != ax25.Command {
		return
	}
	l.emitResponseU(o, ax25.KindTEST, pkt.Control.PF, pkt.Info)
}
