package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DeselectOutranksSelect(t *testing.T) {
	q := NewQueue(10)

	// Priorities mirror funnel.priorityDeselect (10) and
	// funnel.prioritySelect (0); the queue package only needs relative
	// ordering, so it doesn't import funnel's constants.
	require.NoError(t, q.Enqueue(&Task{ID: "select-1", Priority: 0, SubmittedAt: 1}))
	require.NoError(t, q.Enqueue(&Task{ID: "deselect-1", Priority: 10, SubmittedAt: 2}))

	first, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "deselect-1", first.ID, "a deselect submitted after a select still dequeues first")

	second, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "select-1", second.ID)
}

func TestQueue_SamePriorityBreaksTiesByArrivalThenID(t *testing.T) {
	q := NewQueue(10)

	require.NoError(t, q.Enqueue(&Task{ID: "b", Priority: 0, SubmittedAt: 5}))
	require.NoError(t, q.Enqueue(&Task{ID: "a", Priority: 0, SubmittedAt: 5}))
	require.NoError(t, q.Enqueue(&Task{ID: "c", Priority: 0, SubmittedAt: 1}))

	order := []string{}
	for i := 0; i < 3; i++ {
		task, ok := q.Dequeue()
		require.True(t, ok)
		order = append(order, task.ID)
	}

	assert.Equal(t, []string{"c", "a", "b"}, order, "earlier arrival dequeues first; equal timestamps break on task ID")
}

func TestQueue_EnqueueFailsWhenFull(t *testing.T) {
	q := NewQueue(1)
	require.NoError(t, q.Enqueue(&Task{ID: "first", SubmittedAt: 1}))

	err := q.Enqueue(&Task{ID: "second", SubmittedAt: 2})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestQueue_DequeueUnblocksOnClose(t *testing.T) {
	q := NewQueue(1)

	done := make(chan struct{})
	go func() {
		_, ok := q.Dequeue()
		assert.False(t, ok)
		close(done)
	}()

	q.Close()
	<-done
}

func TestQueue_EnqueueFailsAfterClose(t *testing.T) {
	q := NewQueue(1)
	q.Close()

	err := q.Enqueue(&Task{ID: "late", SubmittedAt: 1})
	assert.ErrorIs(t, err, ErrShuttingDown)
}
