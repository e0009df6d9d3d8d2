// Package guest hosts guest logical threads on goroutines, one host context
// per thread, and feeds forced-yield interrupts back into the scheduler at
// safe points.
package guest

import (
	"sync"

	"ksched/internal/kthread"
	"ksched/internal/sched"
)

// Body is the guest code run on a hosted thread. It must call Exec.Poll at
// reasonable intervals; those are the safe points where forced yields and
// preemption fires are honored.
type Body func(ec *Exec)

// Exec is the per-thread execution context handed to a Body.
type Exec struct {
	s *sched.Scheduler
	t *kthread.Thread
}

func (ec *Exec) Thread() *kthread.Thread { return ec.t }

// Poll is a safe point: honors one pending forced yield, if any.
func (ec *Exec) Poll() bool { return ec.s.YieldCheck(ec.t) }

// Yield gives up the rest of the timeslice cooperatively and blocks until
// the thread is scheduled again.
func (ec *Exec) Yield() {
	ec.s.Rotate(ec.t, true)
	ec.s.WakeParkedThread(ec.t)
	ec.s.WaitSchedule(ec.t, true)
}

// Park steps off the current core until another core admits the thread.
func (ec *Exec) Park() {
	ec.s.ParkThread(ec.t)
	ec.s.WaitSchedule(ec.t, true)
}

// Runner starts and tracks hosted threads.
type Runner struct {
	s  *sched.Scheduler
	wg sync.WaitGroup
}

func NewRunner(s *sched.Scheduler) *Runner { return &Runner{s: s} }

// Start hosts t on its own goroutine: the thread is load-balanced onto a
// core, blocks until it is scheduled, runs body, and removes itself on
// return.
func (r *Runner) Start(t *kthread.Thread, body Body) {
	r.s.LoadBalance(t, nil, true)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t.InstallContext()
		defer t.UninstallContext()

		r.s.WaitSchedule(t, true)
		body(&Exec{s: r.s, t: t})
		r.s.RemoveThread(t)
	}()
}

// Wait blocks until every started thread has finished.
func (r *Runner) Wait() { r.wg.Wait() }
