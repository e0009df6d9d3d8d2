package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"ksched/internal/guest"
	"ksched/internal/kthread"
	"ksched/internal/sched"
)

func main() {
	cfg := sched.Load("config.yml")

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}).
		With().Timestamp().Logger()

	s := sched.New(cfg)
	s.SetLogger(logger)
	logger.Info().Int("cores", cfg.Cores).Int("quantum_ms", cfg.QuantumMS).Msg("scheduler up")

	go func() {
		for ev := range s.StatusChannel() {
			logger.Info().
				Str("event", ev.Kind.String()).
				Uint64("thread", uint64(ev.Thread)).
				Int32("core", ev.Core).
				Int32("priority", ev.Priority).
				Msg("sched")
		}
	}()

	reg := kthread.NewRegistry()
	runner := guest.NewRunner(s)

	all := kthread.AffinityAll(cfg.Cores)
	spawn := func(priority int32, affinity kthread.Affinity, body guest.Body) {
		t, err := reg.Create(priority, affinity, firstCore(affinity))
		if err != nil {
			logger.Fatal().Err(err).Msg("create thread")
		}
		runner.Start(t, body)
	}

	quantum := s.Quantum()

	// A pinned worker, a pair of priority peers round-robining at the
	// preemption threshold, and a couple of cooperative threads free to
	// migrate.
	spawn(20, kthread.AffinityOf(0), guest.SpinWork(20*quantum, quantum/4))
	spawn(cfg.PreemptionPriorities[0], all, guest.SpinWork(15*quantum, quantum/4))
	spawn(cfg.PreemptionPriorities[0], all, guest.SpinWork(15*quantum, quantum/4))
	spawn(30, all, guest.YieldingWork(8, quantum/2))
	spawn(35, all, guest.YieldingWork(8, quantum/2))

	runner.Wait()
	logger.Info().Int("threads", reg.Len()).Msg("all guest threads finished")
}

func firstCore(a kthread.Affinity) int32 {
	for c := int32(0); c < 64; c++ {
		if a.Test(c) {
			return c
		}
	}
	return 0
}
