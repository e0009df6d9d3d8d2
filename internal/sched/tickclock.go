// internal/sched/tickclock.go

package sched

import (
	"time"
)

// One tick is a microsecond of monotonic time. All timeslice accounting and
// the average-timeslice EMA are kept in ticks.
const TicksPerMillisecond int64 = 1000

// Clock supplies monotonic ticks. Production uses TickClock; tests substitute
// a manual clock to pin down the EMA arithmetic.
type Clock interface {
	Ticks() int64
}

// TickClock counts microseconds since construction.
type TickClock struct {
	epoch time.Time
}

func NewTickClock() *TickClock {
	return &TickClock{epoch: time.Now()}
}

func (c *TickClock) Ticks() int64 {
	return time.Since(c.epoch).Microseconds()
}
