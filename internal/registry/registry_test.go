package registry

import (
	"testing"
	"time"

	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/stretchr/testify/require"
)

func nodes(n int, cpus int) []domain.Node {
	out := make([]domain.Node, n)
	for i := range out {
		out[i] = domain.Node{Name: "n" + string(rune('0'+i)), CPUs: cpus}
	}
	return out
}

func TestNewAssignsDenseIndicesAndDefaults(t *testing.T) {
	r := New(nodes(3, 4), time.Minute)
	snap := r.Snapshot()
	require.Len(t, snap.Nodes, 3)
	for i, n := range snap.Nodes {
		require.Equal(t, i, n.Index)
		require.Equal(t, domain.NodeIdle, n.State)
		require.Equal(t, 4, n.CPUsFree)
	}
}

func TestApplyAndReleaseAllocation(t *testing.T) {
	r := New(nodes(1, 4), time.Minute)
	r.ApplyAllocation([]int{0}, []int{2})
	snap := r.Snapshot()
	require.Equal(t, domain.NodeMixed, snap.Nodes[0].State)
	require.Equal(t, 2, snap.Nodes[0].CPUsFree)

	r.ApplyAllocation([]int{0}, []int{2})
	snap = r.Snapshot()
	require.Equal(t, domain.NodeAllocated, snap.Nodes[0].State)
	require.Equal(t, 0, snap.Nodes[0].CPUsFree)

	r.ReleaseAllocation([]int{0}, []int{4})
	snap = r.Snapshot()
	require.Equal(t, domain.NodeIdle, snap.Nodes[0].State)
	require.Equal(t, 4, snap.Nodes[0].CPUsFree)
}

func TestUpdateHeartbeatClearsNoRespond(t *testing.T) {
	r := New(nodes(1, 4), 10*time.Millisecond)
	r.nodes[0].LastHeartbeat = time.Now().Add(-time.Hour)
	flagged := r.SweepNoRespond(time.Now())
	require.Equal(t, []int{0}, flagged)

	r.UpdateHeartbeat(0, time.Now(), 4)
	snap := r.Snapshot()
	require.False(t, snap.Nodes[0].Flags.Has(domain.NodeFlagNoRespond))
}

func TestDrainResumeIdempotent(t *testing.T) {
	r := New(nodes(1, 4), time.Minute)
	r.Drain([]int{0}, "maintenance")
	r.Drain([]int{0}, "maintenance")
	snap := r.Snapshot()
	require.True(t, snap.Nodes[0].Flags.Has(domain.NodeFlagDrain))
	require.Equal(t, "maintenance", snap.Nodes[0].Reason)

	r.Resume([]int{0})
	r.Resume([]int{0})
	snap = r.Snapshot()
	require.False(t, snap.Nodes[0].Flags.Has(domain.NodeFlagDrain))
}

func TestSchedulableRespectsFlags(t *testing.T) {
	n := &domain.Node{State: domain.NodeIdle, CPUsFree: 4}
	require.True(t, n.Schedulable(2))
	n.Flags |= domain.NodeFlagDrain
	require.False(t, n.Schedulable(2))
}
