// Package dlsm implements the AX.25 connected-mode Data Link State Machine:
// one Link per (channel, own-addr, peer-addr, client) tuple, holding
// V(S)/V(A)/V(R), timers, send/receive buffers, and exception flags
// (spec.md §3, §4.4).
package dlsm

import (
	"time"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/txqueue"
	"github.com/la5nta/axlink/xid"
)

// State is one of the six DLSM states (spec.md §4.4.1).
type State int

const (
	StateDisconnected State = iota
	StateAwaitingConnection
	StateAwaitingRelease
	StateConnected
	StateTimerRecovery
	StateAwaitingV22Connection
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateAwaitingConnection:
		return "AwaitingConnection"
	case StateAwaitingRelease:
		return "AwaitingRelease"
	case StateConnected:
		return "Connected"
	case StateTimerRecovery:
		return "TimerRecovery"
	case StateAwaitingV22Connection:
		return "AwaitingV22Connection"
	default:
		return "?"
	}
}

// Identity is the (channel, own-addr, peer-addr, client-id) tuple that
// identifies a link (spec.md §3). Incoming frames are matched with
// addresses swapped (Own<->Peer) relative to the frame's source/dest.
type Identity struct {
	Channel  uint8
	Own      ax25.Address
	Peer     ax25.Address
	ClientID string
}

// Config carries the locally-configured defaults a Link starts from, and
// the subset of them XID negotiation may override.
type Config struct {
	Frack      time.Duration // used in t1v = frack * (2*digis+1)
	N2         int           // retry cap
	MaxV22     int           // SABME retries before falling back to v2.0
	WindowMod8 int           // default k for modulo 8
	WindowMod128 int         // default k for modulo 128
	N1Paclen   int           // max I-field length in bytes
	SrejEnable xid.SrejEnable
	FullDuplex bool
	V20Only    []string     // callsigns that never get offered SABME
	T3Period   time.Duration // link-idle keepalive poll period (spec.md §4.4.7)
}

// DefaultConfig returns the conventional AX.25 defaults (frack=3s, n2=10,
// maxv22=3, k=4/32, n1=256, t3=300s).
func DefaultConfig() Config {
	return Config{
		Frack:        3 * time.Second,
		N2:           10,
		MaxV22:       3,
		WindowMod8:   4,
		WindowMod128: 32,
		N1Paclen:     256,
		SrejEnable:   xid.SrejMulti,
		T3Period:     300 * time.Second,
	}
}

// IFrameEntry is one payload waiting for its initial transmission
// opportunity (spec.md §3: i_frame_queue), tagged with the PID it must be
// sent with.
type IFrameEntry struct {
	PID  byte
	Data []byte
}

// OutFrame is one frame the DLSM wants transmitted.
type OutFrame struct {
	Packet    ax25.Packet
	Priority  txqueue.Priority
	Bundlable bool
}

// Outcome is everything a single event's processing produced: outbound
// frames (in emitted order, per spec.md §5's ordering guarantee), data
// indications to the client, and connect/disconnect indications.
type Outcome struct {
	Frames            []OutFrame
	DataIndications   [][]byte
	ConnectIndication bool
	Disconnect        bool
	DisconnectReason   string
	ProtoErrors       []ProtoError
}

func (o *Outcome) emit(pkt ax25.Packet, prio txqueue.Priority, bundlable bool) {
	o.Frames = append(o.Frames, OutFrame{Packet: pkt, Priority: prio, Bundlable: bundlable})
}

func (o *Outcome) protoErr(e ProtoError) {
	o.ProtoErrors = append(o.ProtoErrors, e)
}

// Link is one connected-mode (or half-open) link record (spec.md §3).
type Link struct {
	ID  Identity
	Cfg Config

	State  State
	Modulo ax25.Modulo
	K      int

	VS, VA, VR int
	RC         int
	PeakRC     int

	PeerBusy        bool
	OwnBusy         bool
	RejectException bool
	AckPending      bool
	Layer3Initiated bool

	SrejEnable xid.SrejEnable
	N1Paclen   int
	N2         int // retry cap; starts at Cfg.N2, may be overridden by XID negotiation

	SRT float64 // seconds
	T1V float64 // seconds

	T1, T3, TM201 Timer

	TxByNS [128][]byte
	RxByNS [128][]byte

	IFrameQueue []IFrameEntry

	Reassembler Reassembler

	RecvCounters map[ax25.FrameKind]int

	DigiCount int // used in t1v initial formula

	mdlReady bool // MDL-state machine: true once XID negotiation need not re-run
}

// NewLink creates a Link in the Disconnected state with config defaults
// applied (spec.md §3 lifecycle).
func NewLink(id Identity, cfg Config, digiCount int) *Link {
	l := &Link{
		ID:           id,
		Cfg:          cfg,
		State:        StateDisconnected,
		Modulo:       ax25.Mod8,
		K:            cfg.WindowMod8,
		SrejEnable:   cfg.SrejEnable,
		N1Paclen:     cfg.N1Paclen,
		N2:           cfg.N2,
		RecvCounters: make(map[ax25.FrameKind]int),
		DigiCount:    digiCount,
	}
	return l
}

// initialT1V computes the initial T1 period per spec.md §4.4.4.
func (l *Link) initialT1V() float64 {
	return l.Cfg.Frack.Seconds() * float64(2*l.DigiCount+1)
}

// resetSequencing clears V(S)/V(A)/V(R) and frame buffers (SABM/SABME
// handling, spec.md §4.4.2).
func (l *Link) resetSequencing() {
	l.VS, l.VA, l.VR = 0, 0, 0
	for i := range l.TxByNS {
		l.TxByNS[i] = nil
	}
	for i := range l.RxByNS {
		l.RxByNS[i] = nil
	}
	l.RejectException = false
	l.AckPending = false
	l.Reassembler = Reassembler{}
}

// outstandingFrames implements DL-OUTSTANDING-FRAMES.request (spec.md
// §4.4.9): length(i_frame_queue) + count of non-null tx_by_ns entries.
func (l *Link) outstandingFrames() int {
	n := len(l.IFrameQueue)
	for _, b := range l.TxByNS {
		if b != nil {
			n++
		}
	}
	return n
}

// inConnectedFamily reports whether the link is in Connected or
// TimerRecovery, the two states that per spec.md §4.4.1 count as connected
// for the channel-level indicator (kept at the LinkSet level, see
// linkset.go).
func (l *Link) inConnectedFamily() bool {
	return l.State == StateConnected || l.State == StateTimerRecovery
}
