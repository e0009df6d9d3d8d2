package kthread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffinity(t *testing.T) {
	a := AffinityOf(0, 2)
	assert.True(t, a.Test(0))
	assert.False(t, a.Test(1))
	assert.True(t, a.Test(2))
	assert.False(t, a.Test(ParkedCore))
	assert.Equal(t, 2, a.Count())

	assert.Equal(t, 1, a.Clear(2).Count())
	assert.Equal(t, 3, a.Set(1).Count())
	assert.Equal(t, 4, AffinityAll(4).Count())
}

func TestNotifyIsSticky(t *testing.T) {
	reg := NewRegistry()
	th, err := reg.Create(10, AffinityOf(0), 0)
	require.NoError(t, err)

	th.Notify()
	th.Notify() // collapses into the already-latched wakeup

	done := make(chan struct{})
	go func() {
		th.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("latched notify was lost")
	}

	assert.False(t, th.WaitFor(10*time.Millisecond))
}

func TestYieldLatchesUntilHosted(t *testing.T) {
	reg := NewRegistry()
	th, err := reg.Create(10, AffinityOf(0), 0)
	require.NoError(t, err)

	th.RaiseYield()
	select {
	case <-th.YieldRequests():
		t.Fatal("yield must latch as pending before the context is installed")
	default:
	}
	assert.True(t, th.TakeYieldPending())
	assert.False(t, th.TakeYieldPending())

	th.InstallContext()
	th.RaiseYield()
	assert.False(t, th.YieldPending())
	select {
	case <-th.YieldRequests():
	default:
		t.Fatal("yield not delivered to the hosted context")
	}

	th.RaiseYield()
	th.DrainYield()
	select {
	case <-th.YieldRequests():
		t.Fatal("drained yield should be gone")
	default:
	}
}

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Create(10, 0, 0)
	assert.Error(t, err, "empty affinity")
	_, err = reg.Create(10, AffinityOf(1), 0)
	assert.Error(t, err, "core outside mask")

	th, err := reg.Create(99, AffinityOf(0, 1), 1)
	require.NoError(t, err)
	assert.Equal(t, MaxPriority, th.Priority(), "priority clamped on create")
	assert.Equal(t, int32(1), th.CoreID())

	low, err := reg.Create(-3, AffinityOf(0), 0)
	require.NoError(t, err)
	assert.Equal(t, MinPriority, low.Priority())
	assert.NotEqual(t, th.ID(), low.ID())

	assert.Same(t, th, reg.Get(th.ID()))
	assert.Equal(t, 2, reg.Len())
	require.NoError(t, reg.Destroy(th.ID()))
	assert.Error(t, reg.Destroy(th.ID()))
	assert.Nil(t, reg.Get(th.ID()))
}
