package anycast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingBufferReserveAndTake(t *testing.T) {
	p := newPendingBuffer()
	idx, err := p.reserve(pendingEntry{seq: 1, address: 9, payload: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, 1, p.size())

	entry, timer, ok := p.take(9, 1)
	require.True(t, ok)
	assert.Nil(t, timer, "no timer armed via setTimer in this test")
	assert.Equal(t, []byte("x"), entry.payload)
	assert.Equal(t, 0, p.size())
	_ = idx
}

func TestPendingBufferTakeNoMatch(t *testing.T) {
	p := newPendingBuffer()
	_, err := p.reserve(pendingEntry{seq: 1, address: 9})
	require.NoError(t, err)

	_, _, ok := p.take(9, 2)
	assert.False(t, ok, "seq must match exactly")

	_, _, ok = p.take(8, 1)
	assert.False(t, ok, "address must match exactly")
}

func TestPendingBufferCapacity(t *testing.T) {
	p := newPendingBuffer()
	for i := 0; i < pendingCapacity; i++ {
		_, err := p.reserve(pendingEntry{seq: uint8(i), address: AnycastAddress(i + 1)})
		require.NoError(t, err)
	}
	_, err := p.reserve(pendingEntry{seq: 99, address: 1})
	assert.ErrorIs(t, err, errBufferFull)
}

func TestPendingBufferRemoveAtTolerant(t *testing.T) {
	p := newPendingBuffer()
	idx, err := p.reserve(pendingEntry{seq: 1, address: 1})
	require.NoError(t, err)

	_, ok := p.removeAt(idx)
	assert.True(t, ok)

	// Second removeAt on the same, now-free slot must not panic or
	// report success — the timer/close race this tolerates (§5).
	_, ok = p.removeAt(idx)
	assert.False(t, ok)
}

func TestPendingBufferAllSnapshot(t *testing.T) {
	p := newPendingBuffer()
	_, err := p.reserve(pendingEntry{seq: 1, address: 1})
	require.NoError(t, err)
	_, err = p.reserve(pendingEntry{seq: 2, address: 2})
	require.NoError(t, err)

	all := p.all()
	assert.Len(t, all, 2)
}
