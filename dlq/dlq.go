// Package dlq implements the single multi-producer, single-consumer
// data-link event queue that serializes all inputs into the DLSM
// (spec.md §4.3). It is the sole synchronization boundary: nothing inside
// the DLSM worker blocks or sleeps on external I/O, so no locks are needed
// for link-state mutation.
package dlq

import "github.com/la5nta/axlink/ax25"

// Kind tags the event carried by an Event.
type Kind int

const (
	DLConnectReq Kind = iota
	DLDisconnectReq
	DLDataReq
	DLRegisterCallsign
	DLUnregisterCallsign
	DLOutstandingFramesReq
	DLClientCleanup
	LMDataInd // received frame from the radio
	LMSeizeConfirm
	LMChannelBusy // PTT/DCD change
	DLTimerExpiry
)

func (k Kind) String() string {
	switch k {
	case DLConnectReq:
		return "DL-CONNECT.request"
	case DLDisconnectReq:
		return "DL-DISCONNECT.request"
	case DLDataReq:
		return "DL-DATA.request"
	case DLRegisterCallsign:
		return "DL-REGISTER-CALLSIGN"
	case DLUnregisterCallsign:
		return "DL-UNREGISTER-CALLSIGN"
	case DLOutstandingFramesReq:
		return "DL-OUTSTANDING-FRAMES.request"
	case DLClientCleanup:
		return "DL-CLIENT-CLEANUP"
	case LMDataInd:
		return "LM-DATA.indication"
	case LMSeizeConfirm:
		return "LM-SEIZE.confirm"
	case LMChannelBusy:
		return "LM-CHANNEL-BUSY"
	case DLTimerExpiry:
		return "DL-TIMER-EXPIRY"
	default:
		return "?"
	}
}

// BusyKind distinguishes the two LM-CHANNEL-BUSY sources (spec.md §6).
type BusyKind int

const (
	BusyPTT BusyKind = iota
	BusyDCD
)

// TimerKind names which of a link's three timers fired.
type TimerKind int

const (
	TimerT1 TimerKind = iota
	TimerT3
	TimerTM201
)

// Event is one entry in the queue. Fields not relevant to Kind are left
// zero. ClientID is empty for events sourced "from radio" (spec.md §4.3).
type Event struct {
	Kind Kind

	Channel  uint8
	ClientID string

	Addresses ax25.AddressList

	// DL-DATA.request / segmentation input.
	Data []byte
	PID  byte

	// LM-DATA.indication: the fully decoded frame.
	Packet *ax25.Packet

	// LM-CHANNEL-BUSY.
	Busy BusyKind
	On   bool

	// DL-TIMER-EXPIRY.
	Timer TimerKind

	// Reply channel for request/response style events
	// (DL-OUTSTANDING-FRAMES.request), nil otherwise.
	Reply chan int
}

// Queue is a single FIFO of Events. Any number of goroutines may call Push;
// exactly one goroutine should call Pop (spec.md §4.3's concurrency
// contract).
type Queue struct {
	ch chan Event
}

// NewQueue creates a Queue with the given buffer depth.
func NewQueue(depth int) *Queue {
	return &Queue{ch: make(chan Event, depth)}
}

// Push enqueues an event. It blocks if the queue is full, applying natural
// backpressure to producers (radio RX, KISS clients, timer watchdog).
func (q *Queue) Push(e Event) { q.ch <- e }

// Pop blocks until an event is available or done is closed.
func (q *Queue) Pop(done <-chan struct{}) (Event, bool) {
	select {
	case e := <-q.ch:
		return e, true
	case <-done:
		return Event{}, false
	}
}

// C exposes the underlying channel for use in a select alongside other
// wake sources (e.g. a timer wheel tick), while preserving FIFO order.
func (q *Queue) C() <-chan Event { return q.ch }
