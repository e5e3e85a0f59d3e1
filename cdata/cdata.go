// Package cdata implements a reference-counted pool of variable-length byte
// buffers tagged with an AX.25 PID, used for I-frame payloads throughout the
// data-link state machine.
package cdata

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MaxLen is the largest information field this module will ever hand out a
// buffer for (spec: information field <= 2048 bytes).
const MaxLen = 2048

// Buf is a reference-counted payload buffer. The zero value is not usable;
// obtain one from a Pool.
type Buf struct {
	pool *Pool
	refs int32

	PID  byte
	Data []byte
}

// Retain increments the reference count. Call before handing the buffer to a
// second owner (e.g. stashing a copy in tx_by_ns while also queueing it for
// transmission).
func (b *Buf) Retain() *Buf {
	atomic.AddInt32(&b.refs, 1)
	return b
}

// Release decrements the reference count, returning the buffer to its pool
// once it reaches zero. Calling Release more times than Retain+1 is a
// programmer error and panics, matching the teacher's sparing use of panic
// for invariant violations rather than exceptions (spec.md "Exceptions: none").
func (b *Buf) Release() {
	n := atomic.AddInt32(&b.refs, -1)
	switch {
	case n > 0:
		return
	case n == 0:
		b.pool.put(b)
	default:
		panic("cdata: Buf released more times than retained")
	}
}

// Pool is a sync.Pool-backed allocator of *Buf, with an optional capacity
// ceiling used to exercise the "resource errors are fatal" rule from
// spec.md §7 without relying on the Go runtime actually running out of
// memory.
type Pool struct {
	inner sync.Pool

	ceiling  int64 // 0 = unbounded
	inUse    int64
	exceeded int64 // diagnostics: count of Get calls that breached ceiling
}

// NewPool creates a pool. ceiling <= 0 means unbounded.
func NewPool(ceiling int) *Pool {
	p := &Pool{ceiling: int64(ceiling)}
	p.inner.New = func() any { return &Buf{pool: p} }
	return p
}

// ErrPoolExhausted is returned by Get when the configured ceiling is
// breached. Per spec.md §7 this is a fatal resource error; callers at the
// top of the process (cmd/axlinkd) are expected to log and abort rather than
// attempt to recover from it.
type ErrPoolExhausted struct{ Ceiling int64 }

func (e ErrPoolExhausted) Error() string {
	return fmt.Sprintf("cdata: pool exhausted (ceiling=%d)", e.Ceiling)
}

// Get returns a Buf with capacity for at least n bytes, refcount 1, tagged
// with pid. n must be <= MaxLen.
func (p *Pool) Get(pid byte, n int) (*Buf, error) {
	if n > MaxLen {
		return nil, fmt.Errorf("cdata: requested length %d exceeds MaxLen %d", n, MaxLen)
	}
	if p.ceiling > 0 {
		inUse := atomic.AddInt64(&p.inUse, 1)
		if inUse > p.ceiling {
			atomic.AddInt64(&p.inUse, -1)
			atomic.AddInt64(&p.exceeded, 1)
			return nil, ErrPoolExhausted{Ceiling: p.ceiling}
		}
	}
	b := p.inner.Get().(*Buf)
	b.refs = 1
	b.PID = pid
	if cap(b.Data) < n {
		b.Data = make([]byte, n)
	} else {
		b.Data = b.Data[:n]
	}
	return b, nil
}

// GetCopy allocates a buffer and copies data into it.
func (p *Pool) GetCopy(pid byte, data []byte) (*Buf, error) {
	b, err := p.Get(pid, len(data))
	if err != nil {
		return nil, err
	}
	copy(b.Data, data)
	return b, nil
}

func (p *Pool) put(b *Buf) {
	if p.ceiling > 0 {
		atomic.AddInt64(&p.inUse, -1)
	}
	b.Data = b.Data[:0]
	b.PID = 0
	p.inner.Put(b)
}

// InUse reports the number of buffers currently checked out. Only
// meaningful when the pool has a ceiling.
func (p *Pool) InUse() int64 { return atomic.LoadInt64(&p.inUse) }

// Exceeded reports how many Get calls breached the ceiling since creation.
func (p *Pool) Exceeded() int64 { return atomic.LoadInt64(&p.exceeded) }
