package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[uint32](3)
	assert.True(t, q.IsEmpty())

	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	require.NoError(t, q.Enqueue(3))
	assert.True(t, q.IsFull())
	assert.Equal(t, 3, q.Len())
	assert.ErrorIs(t, q.Enqueue(4), ErrQueueFull)

	v, _ := q.Dequeue()
	assert.Equal(t, uint32(1), v)
	// Wraps around.
	require.NoError(t, q.Enqueue(4))
	for _, want := range []uint32{2, 3, 4} {
		v, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	assert.Equal(t, 0, q.Len())
}
