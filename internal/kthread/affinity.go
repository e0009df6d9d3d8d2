package kthread

import "math/bits"

// Affinity is a bitmask of virtual cores a thread may be scheduled on.
type Affinity uint64

// AffinityOf builds a mask from explicit core ids.
func AffinityOf(cores ...int32) Affinity {
	var a Affinity
	for _, c := range cores {
		a = a.Set(c)
	}
	return a
}

// AffinityAll covers cores [0, count).
func AffinityAll(count int) Affinity {
	return Affinity(1<<uint(count) - 1)
}

func (a Affinity) Set(core int32) Affinity { return a | 1<<uint(core) }

func (a Affinity) Clear(core int32) Affinity { return a &^ (1 << uint(core)) }

// Test reports whether the given core is in the mask.
func (a Affinity) Test(core int32) bool {
	return core >= 0 && a&(1<<uint(core)) != 0
}

// Count returns the number of eligible cores.
func (a Affinity) Count() int { return bits.OnesCount64(uint64(a)) }
