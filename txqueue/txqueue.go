// Package txqueue implements the per-channel transmit queue and the
// CSMA/persistence channel-access procedure (spec.md §4.2). Each channel
// gets two priority FIFOs, drained by a Worker that seizes the channel,
// bundles frames, and hands them to an HDLC transmitter collaborator.
package txqueue

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Priority selects which of the two per-channel FIFOs a frame enters.
type Priority int

const (
	Low Priority = iota
	High
)

// Frame is one queued transmission. Frame categories that must be sent
// alone, never combined into a multi-frame burst (spec.md §4.2: APRS
// digipeated frames, speech, Morse, and DTMF bursts), are marked with
// Bundlable set to false.
type Frame struct {
	Payload    []byte
	Bundlable  bool // false forces a one-frame transmission
}

// Queue is the two-priority FIFO for a single channel.
type Queue struct {
	high, low chan Frame
	bytes     atomic.Int64 // sum of queued Frame.Payload lengths, both priorities
}

// NewQueue creates a Queue with the given per-priority buffer depth.
func NewQueue(depth int) *Queue {
	return &Queue{
		high: make(chan Frame, depth),
		low:  make(chan Frame, depth),
	}
}

// Append enqueues a frame at the given priority. It blocks if that FIFO is
// full; callers that must never block should select with a default case.
func (q *Queue) Append(p Priority, f Frame) {
	switch p {
	case High:
		q.high <- f
	default:
		q.low <- f
	}
	q.bytes.Add(int64(len(f.Payload)))
}

// Remove dequeues the next frame at the given priority, or reports ok=false
// if empty.
func (q *Queue) Remove(p Priority) (f Frame, ok bool) {
	ch := q.low
	if p == High {
		ch = q.high
	}
	select {
	case f = <-ch:
		q.bytes.Add(-int64(len(f.Payload)))
		return f, true
	default:
		return Frame{}, false
	}
}

// Count reports the number of queued frames across both priorities.
func (q *Queue) Count() int {
	return len(q.high) + len(q.low)
}

// QueuedBytes reports the total payload bytes queued across both
// priorities — backs the KISS "TXBUF" SetHardware query (spec.md §4.1).
func (q *Queue) QueuedBytes() int {
	return int(q.bytes.Load())
}

// Channel abstracts the per-channel collaborators the seize procedure
// needs: carrier/PTT sense, HDLC transmission, and timing configuration.
// Implementations are out of scope per spec.md §1 (modem, PTT hardware);
// this module only defines the interface.
type Channel struct {
	// DeviceLock serializes PTT-on duration across channels sharing one
	// audio device (spec.md §5).
	DeviceLock Locker

	FullDuplex bool

	TXDelayMs  int
	TXTailMs   int
	DwaitMs    int
	SlotTimeMs int
	Persist    uint8 // CSMA persistence threshold, 0-255
	BitRateBps int
	BundleMax  int

	CarrierOrPTT func() bool
	Transmit     func(bundle [][]byte) error // HDLC layer collaborator

	// SeizeConfirm is called once the channel has been acquired, before
	// frames are drained — the DLSM worker consumes this as
	// LM-SEIZE-CONFIRM (spec.md §4.2, §4.3).
	SeizeConfirm func()
}

// Locker is satisfied by *sync.Mutex; kept as an interface so tests can
// substitute a no-op.
type Locker interface {
	Lock()
	Unlock()
}

// ErrChannelAccessTimeout is returned when the 60s carrier-sense busy-wait
// in the seize procedure exceeds its deadline (spec.md §4.2, §5).
var ErrChannelAccessTimeout = errors.New("txqueue: channel access timeout")

const channelAccessTimeout = 60 * time.Second

// Worker drains Queue for Channel, implementing the seize procedure in
// spec.md §4.2. Run blocks until ctx is cancelled.
type Worker struct {
	Queue   *Queue
	Channel Channel
	Log     *log.Logger

	// sleeper is overridable in tests to avoid real time.Sleep.
	sleeper func(d time.Duration)
	rng     func() uint8
}

// NewWorker builds a Worker with production sleep/rng behavior.
func NewWorker(q *Queue, ch Channel, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		Queue:   q,
		Channel: ch,
		Log:     logger,
		sleeper: time.Sleep,
		rng:     func() uint8 { return uint8(rand.IntN(256)) },
	}
}

// Run continuously waits for work and drains it per the seize procedure,
// until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if w.Queue.Count() == 0 {
			w.sleeper(10 * time.Millisecond)
			continue
		}
		if err := w.seizeAndSend(ctx); err != nil {
			if errors.Is(err, ErrChannelAccessTimeout) {
				if _, ok := w.Queue.Remove(High); !ok {
					w.Queue.Remove(Low)
				}
				w.Log.Warn("channel access timeout, discarding pending frame", "err", err)
				continue
			}
			w.Log.Error("seize/send failed", "err", err)
		}
	}
}

// seizeAndSend implements spec.md §4.2 steps 1-5 plus the bundle/transmit
// wrapper.
func (w *Worker) seizeAndSend(ctx context.Context) error {
	ch := w.Channel

	if ch.DeviceLock != nil {
		ch.DeviceLock.Lock()
		defer ch.DeviceLock.Unlock()
	}

	if !ch.FullDuplex {
		if err := w.waitClearChannel(ctx); err != nil {
			return err
		}
		if ch.DwaitMs > 0 {
			w.sleeper(time.Duration(ch.DwaitMs) * time.Millisecond)
		}
		if err := w.persistenceLoop(ctx); err != nil {
			return err
		}
	}

	if ch.SeizeConfirm != nil {
		ch.SeizeConfirm()
	}

	bundle := w.drainBundle()
	if len(bundle) == 0 {
		return nil
	}
	payloads := make([][]byte, len(bundle))
	for i, f := range bundle {
		payloads[i] = f.Payload
	}

	start := time.Now()
	if ch.Transmit != nil {
		if err := ch.Transmit(payloads); err != nil {
			return err
		}
	}
	bitTime := w.computeBitTime(payloads)
	w.sleeper(bitTime)
	actual := time.Since(start)
	if actual > bitTime+100*time.Millisecond {
		w.Log.Warn("PTT-on duration exceeded computed bit-time", "bit_time", bitTime, "actual", actual)
	}
	return nil
}

// waitClearChannel busy-waits while carrier/PTT is asserted, aborting with
// ErrChannelAccessTimeout after 60s.
func (w *Worker) waitClearChannel(ctx context.Context) error {
	deadline := time.Now().Add(channelAccessTimeout)
	for w.Channel.CarrierOrPTT != nil && w.Channel.CarrierOrPTT() {
		if time.Now().After(deadline) {
			return ErrChannelAccessTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		w.sleeper(10 * time.Millisecond)
	}
	return nil
}

// persistenceLoop implements the slot-time + persistence draw (spec.md §4.2
// step 5), returning immediately if the high-priority FIFO gains a frame
// while waiting.
func (w *Worker) persistenceLoop(ctx context.Context) error {
	for {
		if len(w.Queue.high) > 0 {
			return nil
		}
		w.sleeper(time.Duration(w.Channel.SlotTimeMs) * time.Millisecond)
		if w.Channel.CarrierOrPTT != nil && w.Channel.CarrierOrPTT() {
			if err := w.waitClearChannel(ctx); err != nil {
				return err
			}
			continue
		}
		if len(w.Queue.high) > 0 {
			return nil
		}
		if w.rng() <= w.Channel.Persist {
			return nil
		}
	}
}

// drainBundle pops frames high-priority-first, stopping at an unbundlable
// frame or the configured bundle cap (spec.md §4.2). An unbundlable frame
// that starts a new bundle is sent alone.
func (w *Worker) drainBundle() []Frame {
	max := w.Channel.BundleMax
	if max <= 0 {
		max = 1
	}
	var bundle []Frame
	for _, p := range []Priority{High, Low} {
		for len(bundle) < max {
			f, ok := w.Queue.Remove(p)
			if !ok {
				break
			}
			if !f.Bundlable {
				if len(bundle) > 0 {
					// Put it back conceptually by handling separately: a
					// not-yet-sent unbundlable frame must start its own
					// transmission, so stop here and requeue it at the
					// front by re-appending (it goes to the back of this
					// priority FIFO, acceptable since it is rare and the
					// frame is eventually sent alone on the next burst).
					w.Queue.Append(p, f)
					return bundle
				}
				return []Frame{f}
			}
			bundle = append(bundle, f)
		}
	}
	return bundle
}

// computeBitTime computes TX-delay + data + TX-tail bit time for the
// bundle (spec.md §4.2 transmit wrapper).
func (w *Worker) computeBitTime(payloads [][]byte) time.Duration {
	ch := w.Channel
	if ch.BitRateBps <= 0 {
		return 0
	}
	totalBytes := 0
	for _, p := range payloads {
		totalBytes += len(p)
	}
	delayBits := float64(ch.TXDelayMs) / 1000 * float64(ch.BitRateBps)
	tailBits := float64(ch.TXTailMs) / 1000 * float64(ch.BitRateBps)
	dataBits := float64(totalBytes) * 8
	totalBits := delayBits + dataBits + tailBits
	seconds := totalBits / float64(ch.BitRateBps)
	return time.Duration(seconds * float64(time.Second))
}
