package dlsm

import (
	"errors"
	"time"

	"github.com/la5nta/axlink/ax25"
)

var (
	errNotConnected       = errors.New("dlsm: link is not connected")
	errPayloadTooLargeV20 = errors.New("dlsm: payload exceeds N1 and v2.0 links cannot segment")
)

// HandleDLConnectReq implements DL-CONNECT.request (spec.md §4.4.2):
// issue SABME (or SABM, for a peer on the v2.0-only list) and enter the
// matching awaiting-connection state. A call while already connected is a
// no-op that re-confirms the existing connection.
func (l *Link) HandleDLConnectReq(now time.Time) Outcome {
	var o Outcome
	if l.inConnectedFamily() {
		o.ConnectIndication = true
		return o
	}
	l.resetSequencing()
	l.RC = 0
	l.Layer3Initiated = true

	if l.peerIsV20Only() {
		l.Modulo = ax25.Mod8
		l.K = l.Cfg.WindowMod8
		l.State = StateAwaitingConnection
		l.emitCommandU(&o, ax25.KindSABM, true)
	} else {
		l.Modulo = ax25.Mod128
		l.K = l.Cfg.WindowMod128
		l.State = StateAwaitingV22Connection
		l.emitCommandU(&o, ax25.KindSABME, true)
	}
	l.T1.Start(now, time.Duration(l.initialT1V()*float64(time.Second)))
	l.T3.Stop(now)
	return o
}

func (l *Link) peerIsV20Only() bool {
	for _, c := range l.Cfg.V20Only {
		if l.ID.Peer.EqualCall(ax25.Address{Call: c}) {
			return true
		}
	}
	return false
}

// HandleDLDisconnectReq implements DL-DISCONNECT.request (spec.md §4.4.2):
// issue DISC and enter AwaitingRelease. If already disconnected, this is a
// no-op that still signals the disconnect indication.
func (l *Link) HandleDLDisconnectReq(now time.Time) Outcome {
	var o Outcome
	if l.State == StateDisconnected {
		o.Disconnect = true
		o.DisconnectReason = "already disconnected"
		return o
	}
	l.IFrameQueue = nil
	l.State = StateAwaitingRelease
	l.emitCommandU(&o, ax25.KindDISC, true)
	l.T3.Stop(now)
	l.T1.Start(now, time.Duration(l.T1V*float64(time.Second)))
	l.RC = 0
	return o
}

// HandleDLDataReq implements DL-DATA.request (spec.md §4.4.3): when the
// payload exceeds N1Paclen, v2.0 links split it into independent I-frames
// of at most N1Paclen bytes, each with the caller's PID, and v2.2 links
// segment it. Frames are queued, then popped at once while the window has
// room and the peer is not busy, instead of waiting for the next
// LM-SEIZE-CONFIRM.
func (l *Link) HandleDLDataReq(now time.Time, pid byte, data []byte) (Outcome, error) {
	var o Outcome
	if !l.inConnectedFamily() {
		return o, errNotConnected
	}

	if len(data) <= l.N1Paclen {
		l.IFrameQueue = append(l.IFrameQueue, IFrameEntry{PID: pid, Data: data})
	} else {
		if l.Modulo == ax25.Mod8 {
			for i := 0; i < len(data); i += l.N1Paclen {
				end := i + l.N1Paclen
				if end > len(data) {
					end = len(data)
				}
				l.IFrameQueue = append(l.IFrameQueue, IFrameEntry{PID: pid, Data: data[i:end]})
			}
			l.iFramePop(now, &o)
			return o, nil
		}
		segs, err := Segment(data, pid, l.N1Paclen)
		if err != nil {
			return o, err
		}
		for _, s := range segs {
			l.IFrameQueue = append(l.IFrameQueue, IFrameEntry{PID: ax25.PIDSegmentation, Data: s})
		}
	}

	l.iFramePop(now, &o)
	return o, nil
}

// HandleDLOutstandingFramesReq implements DL-OUTSTANDING-FRAMES.request
// (spec.md §4.4.9).
func (l *Link) HandleDLOutstandingFramesReq() int {
	return l.outstandingFrames()
}

// HandleDLClientCleanup implements DL-CLIENT-CLEANUP (spec.md §4.4):
// treat a detaching client exactly like an explicit disconnect request.
func (l *Link) HandleDLClientCleanup(now time.Time) Outcome {
	return l.HandleDLDisconnectReq(now)
}
