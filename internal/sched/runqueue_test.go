package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ksched/internal/kthread"
)

func rqThreads(t *testing.T, priorities ...int32) []*kthread.Thread {
	t.Helper()
	reg := kthread.NewRegistry()
	out := make([]*kthread.Thread, len(priorities))
	for i, p := range priorities {
		th, err := reg.Create(p, kthread.AffinityOf(0), 0)
		require.NoError(t, err)
		out[i] = th
	}
	return out
}

func TestRunQueueInsertSorted(t *testing.T) {
	ths := rqThreads(t, 5, 1, 3)
	q := newRunQueue()
	for _, th := range ths {
		q.InsertSorted(th)
	}
	assert.Equal(t, []kthread.ID{ths[1].ID(), ths[2].ID(), ths[0].ID()}, q.IDs())
}

func TestRunQueueStableAmongEquals(t *testing.T) {
	ths := rqThreads(t, 3, 3, 1, 3)
	q := newRunQueue()
	for _, th := range ths {
		q.InsertSorted(th)
	}
	// arrival order preserved within priority 3
	assert.Equal(t, []kthread.ID{ths[2].ID(), ths[0].ID(), ths[1].ID(), ths[3].ID()}, q.IDs())
}

func TestRunQueueUpperBound(t *testing.T) {
	ths := rqThreads(t, 1, 3, 3, 7)
	q := newRunQueue()
	for _, th := range ths {
		q.InsertSorted(th)
	}

	assert.Equal(t, 0, q.UpperBound(0))
	assert.Equal(t, 1, q.UpperBound(1))
	assert.Equal(t, 3, q.UpperBound(3))
	assert.Equal(t, 3, q.UpperBound(5))
	assert.Equal(t, 4, q.UpperBound(7))
}

func TestRunQueueEqualRange(t *testing.T) {
	ths := rqThreads(t, 1, 3, 3, 7)
	q := newRunQueue()
	for _, th := range ths {
		q.InsertSorted(th)
	}

	lo, hi := q.EqualRange(3)
	assert.Equal(t, 1, lo)
	assert.Equal(t, 3, hi)

	lo, hi = q.EqualRange(7)
	assert.Equal(t, 3, lo)
	assert.Equal(t, 4, hi)

	lo, hi = q.EqualRange(5)
	assert.Equal(t, lo, hi, "empty range for absent priority")
}

func TestRunQueueRemove(t *testing.T) {
	ths := rqThreads(t, 1, 3, 7)
	q := newRunQueue()
	for _, th := range ths {
		q.InsertSorted(th)
	}

	assert.True(t, q.Remove(ths[1]))
	assert.False(t, q.Remove(ths[1]))
	assert.Equal(t, -1, q.IndexOf(ths[1]))
	assert.Equal(t, []kthread.ID{ths[0].ID(), ths[2].ID()}, q.IDs())
	assert.Nil(t, q.At(5))
}
