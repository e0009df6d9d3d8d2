// internal/sched/schedulerEvent.go

package sched

import (
	"time"

	"ksched/internal/kthread"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusInsert StatusKind = iota
	StatusMigrate
	StatusRotate
	StatusPark
	StatusWakePark
	StatusRemove
	StatusPriority
)

// StatusEvent is emitted on key scheduling actions. Emission is non-blocking:
// when nobody drains the channel, events are dropped rather than stalling a
// critical section.
type StatusEvent struct {
	Time     time.Time
	Kind     StatusKind
	Thread   kthread.ID
	Core     int32
	Priority int32
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusInsert:
		return "Insert"
	case StatusMigrate:
		return "Migrate"
	case StatusRotate:
		return "Rotate"
	case StatusPark:
		return "Park"
	case StatusWakePark:
		return "WakePark"
	case StatusRemove:
		return "Remove"
	case StatusPriority:
		return "Priority"
	default:
		return "Unknown"
	}
}
