package controller

import (
	"testing"
	"time"

	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/registry"
	"github.com/stretchr/testify/require"
)

func TestPendingQueueOrdersByPriorityThenSubmitTimeThenID(t *testing.T) {
	now := time.Now()
	jobs := []*domain.Job{
		{ID: 3, State: domain.JobPending, Priority: 1, SubmittedAt: now},
		{ID: 1, State: domain.JobPending, Priority: 5, SubmittedAt: now.Add(time.Second)},
		{ID: 2, State: domain.JobPending, Priority: 5, SubmittedAt: now},
		{ID: 4, State: domain.JobRunning, Priority: 9, SubmittedAt: now},
	}

	pending := pendingQueue(jobs)

	require.Len(t, pending, 3)
	require.Equal(t, []uint64{2, 1, 3}, []uint64{pending[0].ID, pending[1].ID, pending[2].ID})
}

func TestDependencySatisfied(t *testing.T) {
	jobs := []*domain.Job{
		{ID: 1, State: domain.JobCompleted},
		{ID: 2, State: domain.JobRunning},
	}

	require.True(t, dependencySatisfied(jobs, 1))
	require.False(t, dependencySatisfied(jobs, 2))
	require.False(t, dependencySatisfied(jobs, 99))
}

func TestApplyReservationsDebitsCPUAndMergesWires(t *testing.T) {
	snap := registry.Snapshot{
		Nodes: []domain.Node{
			{Index: 0, CPUsFree: 4},
			{Index: 1, CPUsFree: 4},
		},
		Wires: map[[2]int]uint64{{0, 1}: 7},
	}

	out := applyReservations(snap, map[int]int{0: 3}, map[[2]int]bool{{1, 2}: true})

	require.Equal(t, 1, out.Nodes[0].CPUsFree)
	require.Equal(t, 4, out.Nodes[1].CPUsFree)
	require.Contains(t, out.Wires, [2]int{0, 1})
	require.Contains(t, out.Wires, [2]int{1, 2})
}

func TestApplyReservationsClampsAtZero(t *testing.T) {
	snap := registry.Snapshot{Nodes: []domain.Node{{Index: 0, CPUsFree: 2}}}

	out := applyReservations(snap, map[int]int{0: 5}, nil)

	require.Equal(t, 0, out.Nodes[0].CPUsFree)
}

func TestResolveIndicesAndIndexSet(t *testing.T) {
	snap := registry.Snapshot{Nodes: []domain.Node{{Index: 0, Name: "n0"}, {Index: 1, Name: "n1"}}}

	require.Equal(t, []int{1, 0}, resolveIndices(snap, []string{"n1", "n0", "missing"}))

	set := resolveIndexSet(snap, []string{"n0", "missing"})
	_, ok := set[0]
	require.True(t, ok)
	require.Len(t, set, 1)
}

func TestSchedulerPassAllocatesPendingJobToIdleNode(t *testing.T) {
	nodes := []domain.Node{testNode(0, "n0", 4)}
	parts := []*domain.Partition{testPartition("batch", 0)}
	ctrl := newTestController(t, nodes, parts)

	job := &domain.Job{
		User: "alice", Partition: "batch", MinNodes: 1, MaxNodes: 1,
		TimeLimit: time.Hour, State: domain.JobPending, SubmittedAt: time.Now(),
		Features: map[string]struct{}{},
	}
	job.ID = ctrl.nextJobID.Add(1) - 1
	require.NoError(t, ctrl.store.CreateJob(job))

	ctrl.scheduler.pass()

	got, err := ctrl.store.GetJob(job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobRunning, got.State)
	require.NotNil(t, got.Allocation)
	require.Equal(t, []int{0}, got.Allocation.Nodes)
}

func TestSchedulerPassFailsJobWhenPartitionTooSmall(t *testing.T) {
	nodes := []domain.Node{testNode(0, "n0", 4)}
	parts := []*domain.Partition{testPartition("batch", 0)}
	ctrl := newTestController(t, nodes, parts)

	job := &domain.Job{
		User: "alice", Partition: "batch", MinNodes: 2, MaxNodes: 2,
		TimeLimit: time.Hour, State: domain.JobPending, SubmittedAt: time.Now(),
		Features: map[string]struct{}{},
	}
	job.ID = ctrl.nextJobID.Add(1) - 1
	require.NoError(t, ctrl.store.CreateJob(job))

	ctrl.scheduler.pass()

	got, err := ctrl.store.GetJob(job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.JobFailed, got.State)
}
