package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManager_EnqueueJoinsFreeWhenUncontended(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Enqueue("p1", []string{"group-1"}, false))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := m.NextProcedure(ctx)
	require.NoError(t, err)
	require.Equal(t, "p1", p)
}

func TestManager_SecondEnqueueOnSameObjectWaits(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Enqueue("p1", []string{"group-1"}, false))
	require.NoError(t, m.Enqueue("p2", []string{"group-1"}, false))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	p, err := m.NextProcedure(ctx)
	require.NoError(t, err)
	require.Equal(t, "p1", p, "p1 enqueued first must become free first")

	// p2 must not be free until p1 releases.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	_, err = m.NextProcedure(ctx2)
	require.Error(t, err, "p2 must still be blocked behind p1")

	require.NoError(t, m.Release("p1"))

	ctx3, cancel3 := context.WithTimeout(context.Background(), time.Second)
	defer cancel3()
	p2, err := m.NextProcedure(ctx3)
	require.NoError(t, err)
	require.Equal(t, "p2", p2)
}

func TestManager_PriorityEnqueueDisplacesHead(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Enqueue("p1", []string{"group-1"}, false))

	// p1 is free but not yet taken by a worker: priority insertion ahead of
	// p1 (still queued) must remove p1 from free.
	require.NoError(t, m.Enqueue("failover", []string{"group-1"}, true))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := m.NextProcedure(ctx)
	require.NoError(t, err)
	require.Equal(t, "failover", p, "priority enqueue must win the head")
}

func TestManager_BreakConflictsMarksHoldersBroken(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Enqueue("p1", []string{"group-1"}, false))
	require.NoError(t, m.Enqueue("p2", []string{"group-1"}, false))

	broken := m.BreakConflicts([]string{"group-1"})
	require.ElementsMatch(t, []string{"p1", "p2"}, broken)
	require.True(t, m.IsBroken("p1"))
	require.True(t, m.IsBroken("p2"))
}

func TestManager_ReleaseUnknownProcedureErrors(t *testing.T) {
	m := NewManager()
	require.Error(t, m.Release("does-not-exist"))
}

func TestManager_LockBindsOwner(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Enqueue("p1", []string{"group-1"}, false))
	require.NoError(t, m.Lock("p1", "worker-1"))
	require.True(t, m.IsOwner("p1", "worker-1"))
	require.False(t, m.IsOwner("p1", "worker-2"))
}
