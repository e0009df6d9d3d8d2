// internal/sched/scheduler.go

package sched

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ksched/internal/kthread"
)

// CoreContext is the per-virtual-core scheduling state. The queue mutex is
// the innermost lock; a thread's migration mutex, when needed, is taken
// before it. Two cores' mutexes are never held together.
type CoreContext struct {
	id                 int32
	preemptionPriority int32

	mu    sync.Mutex
	queue *runQueue

	// selfYielded names the thread displaced from the head by a self-insert
	// splice and not yet drained through its forced-yield Rotate. While set,
	// the core transiently carries two head-like entries.
	selfYielded *kthread.Thread
}

func (c *CoreContext) ID() int32 { return c.id }

// isHead reports the head-position predicate. Caller holds c.mu.
func (c *CoreContext) isHead(t *kthread.Thread) bool {
	return c.queue.Len() > 0 && c.queue.Head() == t
}

// Scheduler allocates host execution time to guest logical threads across a
// fixed set of virtual cores. It holds non-owning thread references only; the
// registry controls their lifetime.
type Scheduler struct {
	cores   []*CoreContext
	quantum time.Duration
	clock   Clock
	log     zerolog.Logger

	parkedMu    sync.Mutex
	parkedQueue *runQueue

	statusCh chan StatusEvent
}

// New creates a Scheduler with the given configuration.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		cores:       make([]*CoreContext, cfg.Cores),
		quantum:     time.Duration(cfg.QuantumMS) * time.Millisecond,
		clock:       NewTickClock(),
		log:         zerolog.Nop(),
		parkedQueue: newRunQueue(),
		statusCh:    make(chan StatusEvent, cfg.EventBuffer),
	}
	for i := range s.cores {
		s.cores[i] = &CoreContext{
			id:                 int32(i),
			preemptionPriority: cfg.PreemptionPriorities[i],
			queue:              newRunQueue(),
		}
	}
	return s
}

// SetLogger installs a logger for load-balancing debug output.
func (s *Scheduler) SetLogger(l zerolog.Logger) { s.log = l }

// StatusChannel exposes a read-only stream of scheduling events (optional consumers).
func (s *Scheduler) StatusChannel() <-chan StatusEvent { return s.statusCh }

// Quantum returns the preemption quantum.
func (s *Scheduler) Quantum() time.Duration { return s.quantum }

// Core returns the context of the given virtual core.
func (s *Scheduler) Core(id int32) *CoreContext { return s.cores[id] }

func (s *Scheduler) emit(kind StatusKind, t *kthread.Thread) {
	select {
	case s.statusCh <- StatusEvent{
		Time:     time.Now(),
		Kind:     kind,
		Thread:   t.ID(),
		Core:     t.CoreID(),
		Priority: t.Priority(),
	}:
	default:
	}
}

// accountTimeslice folds the just-observed run duration into the thread's
// estimate: one quarter previous estimate, three quarters latest slice.
func (s *Scheduler) accountTimeslice(t *kthread.Thread) {
	elapsed := s.clock.Ticks() - t.TimesliceStart()
	t.SetAverageTimeslice(t.AverageTimeslice()/4 + (3*elapsed)/4)
}

// beginTimeslice arms preemption when the thread's priority is at or below
// the core's threshold and stamps the slice start. Caller holds core.mu and
// t is the head.
func (s *Scheduler) beginTimeslice(t *kthread.Thread, core *CoreContext) {
	if t.Priority() <= core.preemptionPriority {
		t.ArmPreemption(s.quantum, func() { t.RaiseYield() })
	}
	t.SetTimesliceStart(s.clock.Ticks())
}

// LoadBalance selects the core where thread would be scheduled the earliest,
// judged by projected wait time from the resident threads' average
// timeslices, preferring the current core on exact ties since migration
// isn't free. With alwaysInsert the thread is enqueued on the chosen core in
// every case; without it, only a self-migration may move the thread, and by
// must be the thread itself.
func (s *Scheduler) LoadBalance(t, by *kthread.Thread, alwaysInsert bool) *CoreContext {
	t.MigrationMu.Lock()
	defer t.MigrationMu.Unlock()

	current := s.cores[t.CoreID()]
	current.mu.Lock()
	currentEmpty := current.queue.Len() == 0
	current.mu.Unlock()

	if currentEmpty || t.Affinity().Count() == 1 {
		if alwaysInsert {
			s.insertLocked(t, by)
		}
		s.log.Debug().Uint64("thread", uint64(t.ID())).Int32("core", current.id).Msg("load balance skipped early")
		return current
	}

	var optimal *CoreContext
	var minWait int64
	for _, candidate := range s.cores {
		if !t.Affinity().Test(candidate.id) {
			continue
		}

		var wait int64
		candidate.mu.Lock()
		if candidate.queue.Len() > 0 {
			running := candidate.queue.Head()
			if avg := running.AverageTimeslice(); avg != 0 {
				remaining := avg - (s.clock.Ticks() - running.TimesliceStart())
				if remaining < 1 {
					remaining = 1
				}
				wait += remaining
			} else if start := running.TimesliceStart(); start != 0 {
				wait += s.clock.Ticks() - start
			} else {
				wait++
			}

			for i := 1; i < candidate.queue.Len(); i++ {
				resident := candidate.queue.At(i)
				if resident.Priority() <= t.Priority() {
					if avg := resident.AverageTimeslice(); avg != 0 {
						wait += avg
					} else {
						wait++
					}
				}
			}
		}
		candidate.mu.Unlock()

		if optimal == nil || wait < minWait || (wait == minWait && candidate == current) {
			optimal = candidate
			minWait = wait
		}
	}

	if optimal != current {
		if !alwaysInsert {
			if by != t {
				panic(fmt.Sprintf("migrating an external thread (T%d) without alwaysInsert isn't supported", t.ID()))
			}
			s.RemoveThread(t)
		}
		t.SetCoreID(optimal.id)
		s.insertLocked(t, by)
		s.log.Debug().Uint64("thread", uint64(t.ID())).Int32("from", current.id).Int32("to", optimal.id).Msg("load balance migrated thread")
		s.emit(StatusMigrate, t)
	} else {
		if alwaysInsert {
			s.insertLocked(t, by)
		}
		s.log.Debug().Uint64("thread", uint64(t.ID())).Int32("core", current.id).Msg("load balance left thread in place")
	}

	return optimal
}

// InsertThread enqueues t on its current core, preserving precedence order.
// by is the acting thread (nil when an external subsystem inserts).
func (s *Scheduler) InsertThread(t, by *kthread.Thread) {
	s.insertLocked(t, by)
	s.emit(StatusInsert, t)
}

func (s *Scheduler) insertLocked(t, by *kthread.Thread) {
	core := s.cores[t.CoreID()]
	core.mu.Lock()
	defer core.mu.Unlock()

	next := core.queue.UpperBound(t.Priority())
	if next != 0 {
		core.queue.InsertAt(next, t)
		return
	}

	if core.queue.Len() == 0 {
		core.queue.InsertAt(0, t)
	} else if by == t {
		// The thread is re-inserting itself above the running head
		// (post-migration). Force-yield the head on its behalf and take the
		// head slot now instead of serializing on a yield round-trip; the
		// displaced head drains through Rotate at its next safe point.
		head := core.queue.Head()
		head.SetForceYield(true)
		core.selfYielded = head
		core.queue.InsertAt(0, t)
	} else {
		// Another thread lands above the head: slot it right behind and ask
		// the head to yield itself, which keeps the handoff strictly
		// serialized on the head's own rotation.
		core.queue.InsertAt(1, t)
		head := core.queue.Head()
		if by == head {
			by.SetYieldPending(true)
		} else {
			head.RaiseYield()
		}
	}

	if by != t {
		t.Notify()
	}
}

// WaitSchedule blocks the calling thread until it reaches the head of its
// core's queue. With loadBalance and more than one affine core, an
// exponential backoff drives self load-balancing: the first wait lasts two
// quanta, each unscheduled expiry triggers a migration attempt and doubles
// the next wait.
func (s *Scheduler) WaitSchedule(t *kthread.Thread, loadBalance bool) {
	core := s.cores[t.CoreID()]
	core.mu.Lock()
	if loadBalance && t.Affinity().Count() > 1 {
		threshold := 2 * s.quantum
		for !core.isHead(t) {
			core.mu.Unlock()
			if !t.WaitFor(threshold) {
				s.LoadBalance(t, t, false)
				core = s.cores[t.CoreID()]
				threshold *= 2
			}
			core.mu.Lock()
		}
	} else {
		for !core.isHead(t) {
			core.mu.Unlock()
			t.Wait()
			core.mu.Lock()
		}
	}

	t.DrainYield() // a preemption fire from an earlier slice is stale here
	s.beginTimeslice(t, core)
	core.mu.Unlock()
}

// TimedWaitSchedule is WaitSchedule bounded by timeout and without
// load-balancing retries; it reports whether the thread reached the head. On
// failure the thread stays enqueued and the caller decides how to proceed.
func (s *Scheduler) TimedWaitSchedule(t *kthread.Thread, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	core := s.cores[t.CoreID()]
	core.mu.Lock()
	for !core.isHead(t) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			core.mu.Unlock()
			return false
		}
		core.mu.Unlock()
		t.WaitFor(remaining)
		core.mu.Lock()
	}

	t.DrainYield()
	s.beginTimeslice(t, core)
	core.mu.Unlock()
	return true
}

// Rotate is called by the running thread when it gives up its slot:
// cooperatively, on preemption-timer expiry, or after being forcefully
// yielded by another thread's insertion. The thread's average timeslice is
// updated and it is respliced behind its priority equals.
func (s *Scheduler) Rotate(t *kthread.Thread, cooperative bool) {
	core := s.cores[t.CoreID()]
	core.mu.Lock()
	defer core.mu.Unlock()

	if core.isHead(t) {
		s.accountTimeslice(t)

		core.queue.RemoveAt(0)
		core.queue.InsertSorted(t)

		if head := core.queue.Head(); head != t {
			head.Notify()
		}

		if cooperative && t.IsPreempted() {
			t.StopPreemptionTimer()
		}
		t.SetPreempted(false)
	} else if t.ForceYield() {
		// Yielded by another thread on this thread's behalf: the splice
		// already happened, only the bookkeeping is owed. The thread may sit
		// anywhere within its priority equals, so scan that range instead of
		// assuming a position.
		lo, hi := core.queue.EqualRange(t.Priority())
		found := false
		for i := lo; i < hi; i++ {
			if core.queue.At(i) == t {
				found = true
				break
			}
		}
		if !found {
			panic(fmt.Sprintf("T%d called Rotate while not in C%d's queue after being forcefully yielded", t.ID(), t.CoreID()))
		}

		s.accountTimeslice(t)

		if cooperative && t.IsPreempted() {
			t.StopPreemptionTimer()
		}
		t.SetPreempted(false)

		if core.selfYielded == t {
			core.selfYielded = nil
		}
	} else {
		panic(fmt.Sprintf("T%d called Rotate while not in C%d's queue", t.ID(), t.CoreID()))
	}

	t.SetForceYield(false)
	s.emit(StatusRotate, t)
}

// UpdatePriority repositions a thread after its priority was changed by the
// owning subsystem.
func (s *Scheduler) UpdatePriority(t *kthread.Thread) {
	t.MigrationMu.Lock()
	defer t.MigrationMu.Unlock()

	if t.CoreID() == kthread.ParkedCore {
		// Parked order is re-established when the thread is woken and
		// reinserted.
		return
	}

	core := s.cores[t.CoreID()]
	core.mu.Lock()
	defer core.mu.Unlock()

	current := core.queue.IndexOf(t)
	if current < 0 {
		// Not queued: the new priority is handled automatically on insertion.
		return
	}

	if current == 0 {
		// It keeps running; it just needs to yield if it no longer outranks
		// the thread behind it, or pick up a preemption timer if the new
		// priority crosses the threshold.
		if next := core.queue.At(1); next != nil && next.Priority() < t.Priority() {
			t.RaiseYield()
		} else if !t.IsPreempted() && t.Priority() <= core.preemptionPriority {
			t.ArmPreemption(s.quantum, func() { t.RaiseYield() })
		}
		return
	}

	core.queue.RemoveAt(current)
	target := core.queue.UpperBound(t.Priority())
	if target == current {
		core.queue.InsertAt(current, t)
		return
	}

	if t.IsPreempted() && t.Priority() > core.preemptionPriority {
		t.StopPreemptionTimer()
		t.SetPreempted(false)
	}

	if target == 0 && core.queue.Len() > 0 {
		// Reinsertion at the head position follows the insertion protocol:
		// line up behind the running head and ask it to yield.
		core.queue.InsertAt(1, t)
		core.queue.Head().RaiseYield()
	} else {
		core.queue.InsertAt(target, t)
	}
	s.emit(StatusPriority, t)
}

// ParkThread steps the calling thread off its core. If another affine core
// is idle or running something of lower precedence the thread re-homes there
// directly; otherwise it waits in the parked queue until WakeParkedThread
// assigns it a core.
func (s *Scheduler) ParkThread(t *kthread.Thread) {
	t.MigrationMu.Lock()
	defer t.MigrationMu.Unlock()

	s.RemoveThread(t)

	originalCore := t.CoreID()
	t.SetCoreID(kthread.ParkedCore)
	for _, core := range s.cores {
		if core.id == originalCore || !t.Affinity().Test(core.id) {
			continue
		}
		core.mu.Lock()
		eligible := core.queue.Len() == 0 || core.queue.Head().Priority() > t.Priority()
		core.mu.Unlock()
		if eligible {
			t.SetCoreID(core.id)
			break
		}
	}

	if t.CoreID() == kthread.ParkedCore {
		s.parkedMu.Lock()
		s.parkedQueue.InsertSorted(t)
		s.emit(StatusPark, t)
		for !(s.parkedQueue.Head() == t && t.CoreID() != kthread.ParkedCore) {
			s.parkedMu.Unlock()
			t.Wait()
			s.parkedMu.Lock()
		}
		s.parkedQueue.RemoveAt(0)
		s.parkedMu.Unlock()
	}

	s.insertLocked(t, t)
}

// WakeParkedThread opportunistically admits the best-waiting parked thread
// onto the calling thread's core. Admission is conservative: the parked head
// must strictly outrank the caller, or tie with it while having waited
// longer than whatever would run next on this core.
func (s *Scheduler) WakeParkedThread(t *kthread.Thread) {
	s.parkedMu.Lock()
	defer s.parkedMu.Unlock()
	if s.parkedQueue.Len() == 0 {
		return
	}

	core := s.cores[t.CoreID()]
	core.mu.Lock()
	var next *kthread.Thread
	if cand := core.queue.At(1); cand != nil && cand.Priority() == t.Priority() {
		// Only a priority peer can be scheduled next; anything below the
		// caller would queue behind it again anyway.
		next = cand
	}
	core.mu.Unlock()

	parked := s.parkedQueue.Head()
	if parked.Priority() < t.Priority() ||
		(parked.Priority() == t.Priority() && (next == nil || parked.TimesliceStart() < next.TimesliceStart())) {
		parked.SetCoreID(t.CoreID())
		parked.Notify()
		s.emit(StatusWakePark, parked)
	}
}

// RemoveThread removes the calling thread from its queue, used ahead of
// migration and of thread termination. Any armed preemption timer is
// disarmed and pending yield state is cleared.
func (s *Scheduler) RemoveThread(t *kthread.Thread) {
	if t.CoreID() == kthread.ParkedCore {
		s.parkedMu.Lock()
		s.parkedQueue.Remove(t)
		s.parkedMu.Unlock()
	} else {
		core := s.cores[t.CoreID()]
		core.mu.Lock()
		idx := core.queue.IndexOf(t)
		if idx >= 0 {
			core.queue.RemoveAt(idx)
			if idx == 0 {
				// Unscheduled by the removal: settle the timeslice estimate
				// and hand the core to the next thread in line.
				if t.TimesliceStart() != 0 {
					s.accountTimeslice(t)
				}
				if head := core.queue.Head(); head != nil {
					head.Notify()
				}
			}
			if core.selfYielded == t {
				core.selfYielded = nil
			}
		}
		core.mu.Unlock()
	}

	if t.IsPreempted() {
		t.StopPreemptionTimer()
		t.SetPreempted(false)
	}
	t.SetYieldPending(false)
	t.SetForceYield(false)
	t.DrainYield()
	s.emit(StatusRemove, t)
}

// YieldCheck is the asynchronous-interrupt handler, run by the hosting
// goroutine at safe points. It consumes one pending forced yield, and is
// restricted to exactly Rotate plus re-entering WaitSchedule so the yield
// decision stays single-threaded with respect to the thread's own
// continuation. Reports whether a yield was honored.
func (s *Scheduler) YieldCheck(t *kthread.Thread) bool {
	select {
	case <-t.YieldRequests():
	default:
		if !t.TakeYieldPending() {
			return false
		}
	}
	t.SetYieldPending(false)
	s.Rotate(t, false)
	s.WaitSchedule(t, true)
	return true
}
