package dlsm

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/la5nta/axlink/ax25"
	"github.com/la5nta/axlink/dlq"
	"github.com/la5nta/axlink/txqueue"
)

// Sink receives the outbound frames and client-facing indications a Link
// produces in response to an event. It is the DLSM's only way out: frame
// bytes go to a channel's transmit queue, indications go to whatever
// tracks per-client state (spec.md §5).
type Sink interface {
	Transmit(channel uint8, prio txqueue.Priority, bundlable bool, pkt ax25.Packet)
	DataIndication(id Identity, payload []byte)
	ConnectIndication(id Identity)
	DisconnectIndication(id Identity, reason string)
}

// LinkSet is the single-consumer registry of all links on all channels: the
// sole synchronization boundary through which every DLSM event passes
// (spec.md §4.3, §5 "DLQ"). All mutation of Link state happens inside
// Run's goroutine.
type LinkSet struct {
	mu       sync.RWMutex
	links    map[Identity]*Link
	channels map[uint8]*ChannelBinding

	registered map[string]bool // registered-callsign set (spec.md §3)

	cfg Config
	q   *dlq.Queue
	tx  map[uint8]*txqueue.Queue
	snk Sink
	log *log.Logger

	tick time.Duration // timer-wheel scan interval
}

// ChannelBinding tracks whether a channel currently has an active connected
// link, used to drive the physical channel's "connected" indicator
// (spec.md §4.4.1).
type ChannelBinding struct {
	Connected bool
}

// NewLinkSet constructs an empty registry.
func NewLinkSet(cfg Config, q *dlq.Queue, tx map[uint8]*txqueue.Queue, snk Sink, logger *log.Logger) *LinkSet {
	if logger == nil {
		logger = log.Default()
	}
	return &LinkSet{
		links:      make(map[Identity]*Link),
		channels:   make(map[uint8]*ChannelBinding),
		registered: make(map[string]bool),
		cfg:        cfg,
		q:          q,
		tx:         tx,
		snk:        snk,
		log:        logger,
		tick:       100 * time.Millisecond,
	}
}

// lookupOrCreate returns the link for id, creating it with defaults if
// this is the first event for this identity.
func (ls *LinkSet) lookupOrCreate(id Identity) *Link {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	l, ok := ls.links[id]
	if !ok {
		l = NewLink(id, ls.cfg, 0)
		ls.links[id] = l
	}
	return l
}

func (ls *LinkSet) registerCallsign(call string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.registered[call] = true
}

func (ls *LinkSet) unregisterCallsign(call string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.registered, call)
}

// IsRegistered reports whether call currently accepts incoming connections
// (spec.md §6 "Callsign registration").
func (ls *LinkSet) IsRegistered(call string) bool {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return ls.registered[call]
}

// Run drains the DLQ on a single goroutine until ctx is canceled, applying
// every event strictly in arrival order (spec.md §4.3's ordering
// guarantee), and scans the timer wheel on its own tick in between.
func (ls *LinkSet) Run(ctx context.Context) {
	ticker := time.NewTicker(ls.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ls.q.C():
			ls.apply(time.Now(), ev)
		case <-ticker.C:
			ls.scanTimers(time.Now())
		}
	}
}

func (ls *LinkSet) apply(now time.Time, ev dlq.Event) {
	switch ev.Kind {
	case dlq.DLRegisterCallsign:
		ls.registerCallsign(ev.Addresses.Source.Call)
		return
	case dlq.DLUnregisterCallsign:
		ls.unregisterCallsign(ev.Addresses.Source.Call)
		return
	}

	id := Identity{Channel: ev.Channel, Own: ev.Addresses.Source, Peer: ev.Addresses.Destination, ClientID: ev.ClientID}

	// DL-OUTSTANDING-FRAMES.request is read-only (spec.md §4.4.9: "must
	// succeed regardless of which end originated the link") and must not
	// fall through to lookupOrCreate below, which would silently spin up
	// an empty link and report 0 outstanding if the addressing is swapped
	// from how the link was actually established.
	if ev.Kind == dlq.DLOutstandingFramesReq {
		n := ls.Outstanding(id)
		if ev.Reply != nil {
			ev.Reply <- n
		}
		return
	}

	l := ls.lookupOrCreate(id)

	var o Outcome
	switch ev.Kind {
	case dlq.DLConnectReq:
		o = l.HandleDLConnectReq(now)
	case dlq.DLDisconnectReq:
		o = l.HandleDLDisconnectReq(now)
	case dlq.DLDataReq:
		out, err := l.HandleDLDataReq(now, ev.PID, ev.Data)
		if err != nil {
			ls.log.Warn("DL-DATA.request rejected", "link", id, "err", err)
			return
		}
		o = out
	case dlq.DLClientCleanup:
		o = l.HandleDLClientCleanup(now)
	case dlq.LMDataInd:
		if ev.Packet == nil {
			return
		}
		o = l.handleLMDataInd(now, ev.Packet)
	case dlq.LMSeizeConfirm:
		l.iFramePop(now, &o)
	case dlq.LMChannelBusy:
		ls.applyChannelBusy(now, ev.Channel, ev.On)
		return
	case dlq.DLTimerExpiry:
		o = ls.applyTimerExpiry(now, l, ev.Timer)
	}

	ls.drain(id, &o)
}

func (ls *LinkSet) applyTimerExpiry(now time.Time, l *Link, timer dlq.TimerKind) Outcome {
	switch timer {
	case dlq.TimerT1:
		return l.HandleT1Expiry(now)
	case dlq.TimerT3:
		return l.HandleT3Expiry(now)
	case dlq.TimerTM201:
		return l.HandleTM201Expiry(now)
	}
	return Outcome{}
}

// applyChannelBusy pauses/resumes every link's timers on the affected
// channel (spec.md §4.4.5: a channel-busy event is channel-wide, not
// per-link).
func (ls *LinkSet) applyChannelBusy(now time.Time, channel uint8, on bool) {
	ls.mu.RLock()
	var affected []*Link
	for id, l := range ls.links {
		if id.Channel == channel {
			affected = append(affected, l)
		}
	}
	ls.mu.RUnlock()

	for _, l := range affected {
		for _, t := range []*Timer{&l.T1, &l.T3, &l.TM201} {
			if on {
				t.Pause(now)
			} else {
				t.Resume(now)
			}
		}
	}
}

// drain pushes an Outcome's effects out to the transmit queues and the
// client-facing Sink, and updates the channel's connected indicator.
func (ls *LinkSet) drain(id Identity, o *Outcome) {
	for _, f := range o.Frames {
		ls.transmit(id.Channel, f)
	}
	for _, d := range o.DataIndications {
		ls.snk.DataIndication(id, d)
	}
	if o.ConnectIndication {
		ls.setChannelConnected(id.Channel, true)
		ls.snk.ConnectIndication(id)
	}
	if o.Disconnect {
		ls.setChannelConnected(id.Channel, false)
		ls.snk.DisconnectIndication(id, o.DisconnectReason)
	}
	for _, e := range o.ProtoErrors {
		ls.log.Warn("ax25 protocol error", "link", id, "err", e)
	}
}

func (ls *LinkSet) transmit(channel uint8, f OutFrame) {
	q, ok := ls.tx[channel]
	if !ok {
		ls.log.Error("no transmit queue bound for channel", "channel", channel)
		return
	}
	b, err := f.Packet.Encode()
	if err != nil {
		ls.log.Error("failed to encode outbound frame", "err", err)
		return
	}
	q.Append(f.Priority, txqueue.Frame{Payload: b, Bundlable: f.Bundlable})
	ls.snk.Transmit(channel, f.Priority, f.Bundlable, f.Packet)
}

func (ls *LinkSet) setChannelConnected(channel uint8, connected bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	cb, ok := ls.channels[channel]
	if !ok {
		cb = &ChannelBinding{}
		ls.channels[channel] = cb
	}
	cb.Connected = connected
}

// scanTimers runs the T1/T3/TM201 expiry handler directly (not through the
// DLQ) for every link whose timer has newly expired since the last scan
// (spec.md §4.4.6-§4.4.8).
func (ls *LinkSet) scanTimers(now time.Time) {
	ls.mu.RLock()
	links := make(map[Identity]*Link, len(ls.links))
	for id, l := range ls.links {
		links[id] = l
	}
	ls.mu.RUnlock()

	for id, l := range links {
		if l.T1.Expired(now) {
			l.T1.MarkExpired()
			ls.drain(id, wrapOutcome(l.HandleT1Expiry(now)))
		}
		if l.T3.Expired(now) {
			l.T3.MarkExpired()
			ls.drain(id, wrapOutcome(l.HandleT3Expiry(now)))
		}
		if l.TM201.Expired(now) {
			l.TM201.MarkExpired()
			ls.drain(id, wrapOutcome(l.HandleTM201Expiry(now)))
		}
	}
}

func wrapOutcome(o Outcome) *Outcome { return &o }

// Outstanding implements DL-OUTSTANDING-FRAMES.request, bypassing the DLQ
// for a read-only query (spec.md §4.4.9). The link must be found "regardless
// of which end originated it": id is tried as given, then with Own/Peer
// swapped, before concluding no link exists.
func (ls *LinkSet) Outstanding(id Identity) int {
	if l, ok := ls.lookup(id); ok {
		return l.HandleDLOutstandingFramesReq()
	}
	swapped := id
	swapped.Own, swapped.Peer = id.Peer, id.Own
	if l, ok := ls.lookup(swapped); ok {
		return l.HandleDLOutstandingFramesReq()
	}
	return 0
}

func (ls *LinkSet) lookup(id Identity) (*Link, bool) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	l, ok := ls.links[id]
	return l, ok
}

// ModuloFor reports the modulo an already-established link uses, so a
// caller decoding a raw frame off the air knows whether its control field
// is one or two bytes before the link itself sees the event (spec.md
// §4.4.1). Unknown identities report Mod8, the default a fresh SABM/UA
// exchange starts from.
func (ls *LinkSet) ModuloFor(id Identity) ax25.Modulo {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	if l, ok := ls.links[id]; ok {
		return l.Modulo
	}
	return ax25.Mod8
}

// LinkStatus is a read-only snapshot of one link's identity and sequencing
// state, for diagnostic reporting (spec.md §4.4.9 DL-OUTSTANDING-FRAMES and
// the wiring layer's /links endpoint).
type LinkStatus struct {
	ID          Identity
	State       State
	VS          int
	VA          int
	VR          int
	Outstanding int
}

// Snapshot returns a status row for every link currently known, regardless
// of state. Callers needing a single link's status should filter the
// result rather than adding a by-identity lookup, since this is a
// diagnostics path, not a hot one.
func (ls *LinkSet) Snapshot() []LinkStatus {
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	out := make([]LinkStatus, 0, len(ls.links))
	for id, l := range ls.links {
		out = append(out, LinkStatus{
			ID:          id,
			State:       l.State,
			VS:          l.VS,
			VA:          l.VA,
			VR:          l.VR,
			Outstanding: l.HandleDLOutstandingFramesReq(),
		})
	}
	return out
}
