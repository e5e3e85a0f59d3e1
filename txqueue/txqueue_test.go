package txqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueAppendRemoveCount(t *testing.T) {
	q := NewQueue(4)
	q.Append(High, Frame{Payload: []byte("a"), Bundlable: true})
	q.Append(Low, Frame{Payload: []byte("b"), Bundlable: true})
	assert.Equal(t, 2, q.Count())

	f, ok := q.Remove(High)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), f.Payload)

	_, ok = q.Remove(High)
	assert.False(t, ok)

	f, ok = q.Remove(Low)
	require.True(t, ok)
	assert.Equal(t, []byte("b"), f.Payload)
}

type noopLock struct{}

func (noopLock) Lock()   {}
func (noopLock) Unlock() {}

func TestWorkerSeizeConfirmAndTransmit(t *testing.T) {
	q := NewQueue(4)
	q.Append(High, Frame{Payload: []byte("hi"), Bundlable: true})

	var seized bool
	var sent [][]byte
	ch := Channel{
		DeviceLock:   noopLock{},
		FullDuplex:   true, // skip carrier-sense/persistence for this test
		BundleMax:    7,
		BitRateBps:   1200,
		TXDelayMs:    0,
		TXTailMs:     0,
		SeizeConfirm: func() { seized = true },
		Transmit: func(bundle [][]byte) error {
			sent = bundle
			return nil
		},
	}
	w := NewWorker(q, ch, nil)
	w.sleeper = func(time.Duration) {}

	ctx, cancel := context.WithCancel(context.Background())
	err := w.seizeAndSend(ctx)
	cancel()
	require.NoError(t, err)
	assert.True(t, seized)
	require.Len(t, sent, 1)
	assert.Equal(t, []byte("hi"), sent[0])
}

func TestWorkerChannelAccessTimeout(t *testing.T) {
	q := NewQueue(4)
	q.Append(Low, Frame{Payload: []byte("x"), Bundlable: true})

	var sleeps int
	ch := Channel{
		FullDuplex:   false,
		CarrierOrPTT: func() bool { return true }, // never clears
		SlotTimeMs:   10,
		Persist:      255,
	}
	w := NewWorker(q, ch, nil)
	var elapsed time.Duration
	w.sleeper = func(d time.Duration) {
		elapsed += d
		sleeps++
	}

	err := w.seizeAndSend(context.Background())
	require.ErrorIs(t, err, ErrChannelAccessTimeout)
	assert.GreaterOrEqual(t, elapsed, 60*time.Second)
}

func TestDrainBundleStopsAtUnbundlable(t *testing.T) {
	q := NewQueue(8)
	q.Append(High, Frame{Payload: []byte("1"), Bundlable: true})
	q.Append(High, Frame{Payload: []byte("2"), Bundlable: false})
	q.Append(High, Frame{Payload: []byte("3"), Bundlable: true})

	w := &Worker{Queue: q, Channel: Channel{BundleMax: 7}}
	bundle := w.drainBundle()
	require.Len(t, bundle, 1)
	assert.Equal(t, []byte("1"), bundle[0].Payload)
}

func TestDrainBundleAloneWhenFirstUnbundlable(t *testing.T) {
	q := NewQueue(8)
	q.Append(High, Frame{Payload: []byte("apru"), Bundlable: false})
	q.Append(High, Frame{Payload: []byte("2"), Bundlable: true})

	w := &Worker{Queue: q, Channel: Channel{BundleMax: 7}}
	bundle := w.drainBundle()
	require.Len(t, bundle, 1)
	assert.Equal(t, []byte("apru"), bundle[0].Payload)
}

func TestDeviceLockSerializesTwoChannels(t *testing.T) {
	var mu sync.Mutex
	q1, q2 := NewQueue(2), NewQueue(2)
	q1.Append(High, Frame{Payload: []byte("a"), Bundlable: true})
	q2.Append(High, Frame{Payload: []byte("b"), Bundlable: true})

	var order []string
	var active, maxActive int
	var seq sync.Mutex
	mkChan := func(name string) Channel {
		return Channel{
			DeviceLock: &mu,
			FullDuplex: true,
			BundleMax:  1,
			Transmit: func(bundle [][]byte) error {
				seq.Lock()
				order = append(order, name)
				active++
				if active > maxActive {
					maxActive = active
				}
				seq.Unlock()
				time.Sleep(5 * time.Millisecond)
				seq.Lock()
				active--
				seq.Unlock()
				return nil
			},
		}
	}
	w1 := NewWorker(q1, mkChan("a"), nil)
	w1.sleeper = func(time.Duration) {}
	w2 := NewWorker(q2, mkChan("b"), nil)
	w2.sleeper = func(time.Duration) {}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); w1.seizeAndSend(context.Background()) }()
	go func() { defer wg.Done(); w2.seizeAndSend(context.Background()) }()
	wg.Wait()

	assert.Len(t, order, 2)
	assert.Equal(t, 1, maxActive) // never two transmissions at once
}
