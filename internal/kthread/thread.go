package kthread

import (
	"sync"
	"sync/atomic"
	"time"
)

// ID uniquely identifies a guest logical thread.
type ID uint64

const (
	MinPriority int32 = 0  // highest precedence
	MaxPriority int32 = 63 // lowest precedence

	// ParkedCore is the core id sentinel for threads with no eligible core.
	ParkedCore int32 = -1
)

// Thread is the scheduling-relevant view of a guest logical thread. The
// registry owns the object; the scheduler only mutates these fields and never
// controls its lifetime.
//
// priority and coreID are read concurrently by load-balancing scans, hence
// atomic. averageTimeslice/timesliceStart are written under the owning core's
// mutex but read by other cores' scans, hence atomic as well. The preemption
// timer handle is only touched under the owning core's mutex.
type Thread struct {
	id       ID
	priority atomic.Int32
	coreID   atomic.Int32
	affinity atomic.Uint64

	averageTimeslice atomic.Int64
	timesliceStart   atomic.Int64

	preempted  atomic.Bool
	forceYield atomic.Bool

	// MigrationMu serializes load-balancing decisions about this thread.
	// Lock ordering: MigrationMu (outer) before any core-queue mutex (inner).
	MigrationMu sync.Mutex

	wake  chan struct{} // wait/notify latch; notify is sticky, waiters re-check their predicate
	yield chan struct{} // forced-yield requests, consumed at safe points

	yieldPending atomic.Bool // latched when a yield arrives before the hosting context exists
	hosted       atomic.Bool // hosting execution context installed

	preemptTimer *time.Timer
}

func newThread(id ID, priority int32, affinity Affinity, coreID int32) *Thread {
	t := &Thread{
		id:    id,
		wake:  make(chan struct{}, 1),
		yield: make(chan struct{}, 1),
	}
	t.priority.Store(priority)
	t.affinity.Store(uint64(affinity))
	t.coreID.Store(coreID)
	return t
}

func (t *Thread) ID() ID { return t.id }

func (t *Thread) Priority() int32 { return t.priority.Load() }

func (t *Thread) SetPriority(p int32) { t.priority.Store(p) }

func (t *Thread) CoreID() int32 { return t.coreID.Load() }

func (t *Thread) SetCoreID(id int32) { t.coreID.Store(id) }

func (t *Thread) Affinity() Affinity { return Affinity(t.affinity.Load()) }

func (t *Thread) SetAffinity(a Affinity) { t.affinity.Store(uint64(a)) }

func (t *Thread) AverageTimeslice() int64 { return t.averageTimeslice.Load() }

func (t *Thread) SetAverageTimeslice(v int64) { t.averageTimeslice.Store(v) }

func (t *Thread) TimesliceStart() int64 { return t.timesliceStart.Load() }

func (t *Thread) SetTimesliceStart(v int64) { t.timesliceStart.Store(v) }

func (t *Thread) IsPreempted() bool { return t.preempted.Load() }

func (t *Thread) SetPreempted(v bool) { t.preempted.Store(v) }

func (t *Thread) ForceYield() bool { return t.forceYield.Load() }

func (t *Thread) SetForceYield(v bool) { t.forceYield.Store(v) }

func (t *Thread) YieldPending() bool { return t.yieldPending.Load() }

func (t *Thread) SetYieldPending(v bool) { t.yieldPending.Store(v) }

// TakeYieldPending consumes the latched pending-yield flag.
func (t *Thread) TakeYieldPending() bool { return t.yieldPending.Swap(false) }

// Notify wakes the thread's wait latch. Safe from any goroutine; a notify
// against a thread that isn't waiting is retained for its next wait.
func (t *Thread) Notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Wait blocks until notified.
func (t *Thread) Wait() { <-t.wake }

// WaitFor blocks until notified or until d elapses; reports whether a notify
// arrived. The caller re-checks its predicate either way.
func (t *Thread) WaitFor(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.wake:
		return true
	case <-timer.C:
		return false
	}
}

// InstallContext marks the hosting execution context as live: yields are
// delivered to the latch from now on instead of the pending flag.
func (t *Thread) InstallContext() { t.hosted.Store(true) }

func (t *Thread) UninstallContext() { t.hosted.Store(false) }

// RaiseYield delivers a forced-yield interrupt. Before the hosting context is
// installed the request is latched as pending and consumed at the first safe
// point rather than dropped.
func (t *Thread) RaiseYield() {
	if !t.hosted.Load() {
		t.yieldPending.Store(true)
		return
	}
	select {
	case t.yield <- struct{}{}:
	default:
	}
}

// YieldRequests exposes the yield latch for safe-point polling.
func (t *Thread) YieldRequests() <-chan struct{} { return t.yield }

// DrainYield discards a stale yield request, if any.
func (t *Thread) DrainYield() {
	select {
	case <-t.yield:
	default:
	}
}

// ArmPreemption (re)arms the preemption timer for one quantum. fire runs on
// its own goroutine when the quantum expires; it is captured once, on the
// first arm. Caller holds the owning core's mutex.
func (t *Thread) ArmPreemption(quantum time.Duration, fire func()) {
	if t.preemptTimer == nil {
		t.preemptTimer = time.AfterFunc(quantum, fire)
	} else {
		t.preemptTimer.Reset(quantum)
	}
	t.preempted.Store(true)
}

// StopPreemptionTimer stops a still-armed timer. Stopping an expired one-shot
// timer is a no-op.
func (t *Thread) StopPreemptionTimer() {
	if t.preemptTimer != nil {
		t.preemptTimer.Stop()
	}
}
