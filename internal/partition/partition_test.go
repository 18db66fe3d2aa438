package partition

import (
	"testing"
	"time"

	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/registry"
	"github.com/stretchr/testify/require"
)

func makeRegistry(n int, cpus int) *registry.Registry {
	nodes := make([]domain.Node, n)
	for i := range nodes {
		nodes[i] = domain.Node{Name: string(rune('a' + i)), CPUs: cpus}
	}
	return registry.New(nodes, time.Minute)
}

func allIndices(n int) map[int]struct{} {
	m := make(map[int]struct{}, n)
	for i := 0; i < n; i++ {
		m[i] = struct{}{}
	}
	return m
}

func TestLinearPlacesContiguousByWeight(t *testing.T) {
	reg := makeRegistry(4, 4)
	part := &domain.Partition{Name: "p", NodeIndices: allIndices(4)}

	plan, rej := Linear{}.Place(reg.Snapshot(), part, Request{MinNodes: 1, MaxNodes: 2, CPUsPerNode: 2})
	require.Equal(t, RejectNone, rej)
	require.Len(t, plan.Nodes, 2)
	require.Equal(t, []int{0, 1}, plan.Nodes)
}

func TestLinearRejectsTooLargeWhenPartitionTooSmall(t *testing.T) {
	reg := makeRegistry(1, 2)
	part := &domain.Partition{Name: "p", NodeIndices: allIndices(1)}

	_, rej := Linear{}.Place(reg.Snapshot(), part, Request{MinNodes: 2, CPUsPerNode: 1})
	require.Equal(t, RejectTooLarge, rej)
}

func TestTopologyScenario6_2x2x2InA4x4x4Machine(t *testing.T) {
	dims := [3]int{4, 4, 4}
	topo := Topology{Dims: dims}
	reg := makeRegistry(4*4*4, 1)
	part := &domain.Partition{Name: "p", NodeIndices: allIndices(4 * 4 * 4)}

	// Pre-allocate the 2x2x2 subcube at the origin.
	reg.ApplyAllocation(cube(topo, [3]int{0, 0, 0}, [3]int{2, 2, 2}), onesOf(8))

	plan, rej := topo.Place(reg.Snapshot(), part, Request{
		MinNodes:    8,
		MaxNodes:    8,
		CPUsPerNode: 1,
		Geometry:    [3]int{2, 2, 2},
		ConnType:    ConnTorus,
		Rotate:      true,
	})
	require.Equal(t, RejectNone, rej)
	require.Len(t, plan.Nodes, 8)

	origin := map[int]struct{}{}
	for _, idx := range cube(topo, [3]int{0, 0, 0}, [3]int{2, 2, 2}) {
		origin[idx] = struct{}{}
	}
	for _, idx := range plan.Nodes {
		_, overlaps := origin[idx]
		require.False(t, overlaps, "chosen subcube must be disjoint from the already-allocated one")
	}
}

func cube(t Topology, origin, geom [3]int) []int {
	var out []int
	for dx := 0; dx < geom[0]; dx++ {
		for dy := 0; dy < geom[1]; dy++ {
			for dz := 0; dz < geom[2]; dz++ {
				out = append(out, t.index([3]int{origin[0] + dx, origin[1] + dy, origin[2] + dz}))
			}
		}
	}
	return out
}

func onesOf(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
