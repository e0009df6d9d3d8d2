package guest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ksched/internal/kthread"
	"ksched/internal/sched"
)

// End-to-end: a mixed set of guest threads across two cores all run to
// completion under preemption, cooperative yielding, and parking.
func TestRunnerSchedulesMixedWorkload(t *testing.T) {
	cfg := sched.Load("")
	cfg.Cores = 2
	cfg.QuantumMS = 5
	cfg.PreemptionPriorities = []int32{30, 30}

	s := sched.New(cfg)
	reg := kthread.NewRegistry()
	runner := NewRunner(s)
	all := kthread.AffinityAll(cfg.Cores)
	quantum := s.Quantum()

	spawn := func(priority int32, affinity kthread.Affinity, core int32, body Body) *kthread.Thread {
		th, err := reg.Create(priority, affinity, core)
		require.NoError(t, err)
		runner.Start(th, body)
		return th
	}

	spawn(20, kthread.AffinityOf(0), 0, SpinWork(4*quantum, quantum/4))
	spawn(30, all, 0, SpinWork(4*quantum, quantum/4))
	spawn(30, all, 0, SpinWork(4*quantum, quantum/4))
	spawn(25, all, 1, YieldingWork(4, quantum/2))
	spawn(10, all, 1, func(ec *Exec) {
		ec.Park()
		busy(quantum / 2)
	})

	done := make(chan struct{})
	go func() { runner.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatal("guest threads did not finish")
	}
}
