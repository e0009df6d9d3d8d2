package kthread

import (
	"fmt"
	"sync"
)

// Registry is the owning arena for thread records. The scheduler only ever
// holds non-owning references handed out from here; final removal from the
// scheduler must happen before Destroy.
type Registry struct {
	mu      sync.Mutex
	nextID  ID
	threads map[ID]*Thread
}

func NewRegistry() *Registry {
	return &Registry{nextID: 1, threads: make(map[ID]*Thread)}
}

// Create allocates a thread record with its scheduling fields initialized.
// Priority is clamped into the legal range, the way the emulated kernel does
// on thread creation.
func (r *Registry) Create(priority int32, affinity Affinity, coreID int32) (*Thread, error) {
	if affinity.Count() == 0 {
		return nil, fmt.Errorf("thread needs at least one affine core")
	}
	if !affinity.Test(coreID) {
		return nil, fmt.Errorf("core %d is not in affinity mask %#x", coreID, uint64(affinity))
	}
	if priority < MinPriority {
		priority = MinPriority
	} else if priority > MaxPriority {
		priority = MaxPriority
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t := newThread(r.nextID, priority, affinity, coreID)
	r.threads[t.id] = t
	r.nextID++
	return t, nil
}

func (r *Registry) Get(id ID) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.threads[id]
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads)
}

// Destroy releases a thread record. The thread must already have been removed
// from its run queue (scheduler RemoveThread).
func (r *Registry) Destroy(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.threads[id]; !ok {
		return fmt.Errorf("no such thread %d", id)
	}
	delete(r.threads, id)
	return nil
}
