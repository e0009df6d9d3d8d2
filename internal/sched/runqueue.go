package sched

import (
	"github.com/emirpasic/gods/lists/doublylinkedlist"

	"ksched/internal/kthread"
)

// runQueue is an ordered sequence of thread references sorted ascending by
// numeric priority (descending precedence, ties stable in arrival order).
// Position 0 is the head: the thread currently executing on the core.
// Callers synchronize via the owning core's mutex (or the parked mutex).
type runQueue struct {
	l *doublylinkedlist.List
}

func newRunQueue() *runQueue {
	return &runQueue{l: doublylinkedlist.New()}
}

func (q *runQueue) Len() int { return q.l.Size() }

func (q *runQueue) At(i int) *kthread.Thread {
	v, ok := q.l.Get(i)
	if !ok {
		return nil
	}
	return v.(*kthread.Thread)
}

// Head returns the running thread, or nil for an empty queue.
func (q *runQueue) Head() *kthread.Thread { return q.At(0) }

func (q *runQueue) InsertAt(i int, t *kthread.Thread) { q.l.Insert(i, t) }
func (q *runQueue) RemoveAt(i int)                    { q.l.Remove(i) }
func (q *runQueue) IndexOf(t *kthread.Thread) int     { return q.l.IndexOf(t) }

// UpperBound returns the first index whose thread has a numerically greater
// priority than p, i.e. the sorted insertion point after all equals.
func (q *runQueue) UpperBound(p int32) int {
	it := q.l.Iterator()
	for it.Next() {
		if it.Value().(*kthread.Thread).Priority() > p {
			return it.Index()
		}
	}
	return q.l.Size()
}

// EqualRange returns the half-open index range of threads whose priority
// equals p. Empty range when none match.
func (q *runQueue) EqualRange(p int32) (lo, hi int) {
	lo, hi = -1, -1
	it := q.l.Iterator()
	for it.Next() {
		tp := it.Value().(*kthread.Thread).Priority()
		if tp == p && lo < 0 {
			lo = it.Index()
		}
		if tp > p {
			hi = it.Index()
			break
		}
	}
	if lo < 0 {
		return 0, 0
	}
	if hi < 0 {
		hi = q.l.Size()
	}
	return lo, hi
}

// InsertSorted places t after all threads of equal or higher precedence and
// returns the index it landed at.
func (q *runQueue) InsertSorted(t *kthread.Thread) int {
	i := q.UpperBound(t.Priority())
	q.l.Insert(i, t)
	return i
}

// Remove deletes t wherever it sits; reports whether it was present.
func (q *runQueue) Remove(t *kthread.Thread) bool {
	i := q.l.IndexOf(t)
	if i < 0 {
		return false
	}
	q.l.Remove(i)
	return true
}

// IDs lists the queued thread ids in order. Test and debug helper.
func (q *runQueue) IDs() []kthread.ID {
	ids := make([]kthread.ID, 0, q.l.Size())
	it := q.l.Iterator()
	for it.Next() {
		ids = append(ids, it.Value().(*kthread.Thread).ID())
	}
	return ids
}
