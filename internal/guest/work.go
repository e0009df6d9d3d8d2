package guest

import "time"

// SpinWork returns a body that burns roughly total of wall time, polling for
// forced yields between bursts.
func SpinWork(total, burst time.Duration) Body {
	return func(ec *Exec) {
		deadline := time.Now().Add(total)
		for time.Now().Before(deadline) {
			busy(burst)
			ec.Poll()
		}
	}
}

// YieldingWork returns a body that runs the given number of slices, giving
// up the core cooperatively after each one.
func YieldingWork(slices int, slice time.Duration) Body {
	return func(ec *Exec) {
		for i := 0; i < slices; i++ {
			busy(slice)
			if i < slices-1 {
				ec.Yield()
			}
		}
	}
}

func busy(d time.Duration) {
	end := time.Now().Add(d)
	for time.Now().Before(end) {
	}
}
