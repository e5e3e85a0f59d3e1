package cdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetCopyRoundtrip(t *testing.T) {
	p := NewPool(0)
	b, err := p.GetCopy(0xF0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, byte(0xF0), b.PID)
	assert.Equal(t, []byte("hello"), b.Data)
}

func TestPoolCeiling(t *testing.T) {
	p := NewPool(1)
	b1, err := p.Get(0, 4)
	require.NoError(t, err)

	_, err = p.Get(0, 4)
	require.Error(t, err)
	assert.IsType(t, ErrPoolExhausted{}, err)

	b1.Release()
	_, err = p.Get(0, 4)
	require.NoError(t, err)
}

func TestBufRetainRelease(t *testing.T) {
	p := NewPool(1)
	b, err := p.Get(0, 4)
	require.NoError(t, err)

	b.Retain()
	assert.EqualValues(t, 2, b.refs)
	b.Release()
	assert.EqualValues(t, 1, p.InUse())
	b.Release()
	assert.EqualValues(t, 0, p.InUse())
}

func TestBufOverReleasePanics(t *testing.T) {
	p := NewPool(0)
	b, err := p.Get(0, 4)
	require.NoError(t, err)
	b.Release()
	assert.Panics(t, func() { b.Release() })
}

func TestMaxLenRejected(t *testing.T) {
	p := NewPool(0)
	_, err := p.Get(0, MaxLen+1)
	require.Error(t, err)
}
