package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueWrapsAround(t *testing.T) {
	q := NewRingQueue[uint64](3)
	assert.True(t, q.IsEmpty())

	for round := uint64(0); round < 4; round++ {
		for i := uint64(1); i <= 3; i++ {
			require.NoError(t, q.Enqueue(round*10+i))
		}
		assert.True(t, q.IsFull())
		assert.ErrorIs(t, q.Enqueue(99), ErrQueueFull)

		front, err := q.Peek()
		require.NoError(t, err)
		assert.Equal(t, round*10+1, front)

		for i := uint64(1); i <= 3; i++ {
			v, err := q.Dequeue()
			require.NoError(t, err)
			assert.Equal(t, round*10+i, v)
		}
		assert.Equal(t, 0, q.Len())
	}

	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	_, err = q.Peek()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	assert.Equal(t, 3, q.Cap())
}
