// Package registry implements the node registry and state machine described
// in spec.md §4.1: base state transitions, heartbeat tracking, and the
// admin-driven Drain/Resume/Down/SetFeatures operations.
package registry

import (
	"sync"
	"time"

	"github.com/ridgehpc/ridge/internal/domain"
)

// Snapshot is an immutable view of the registry taken under a single reader
// lock. Writers never block readers holding a prior snapshot: Snapshot
// returns copies, not references into the live table.
type Snapshot struct {
	Nodes []domain.Node // indexed by Node.Index
	Taken time.Time

	// Wires holds the switch-fabric cables currently reserved by topology
	// placements, keyed by the pair of midplane indices each cable
	// connects and valued by the owning job id. Populated only when the
	// cluster runs the topology backend; empty otherwise.
	Wires map[[2]int]uint64
}

// ByName returns the index of name within the snapshot, or false.
func (s *Snapshot) ByName(name string) (int, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// Registry owns the live node table.
type Registry struct {
	mu            sync.RWMutex
	nodes         []domain.Node
	byName        map[string]int
	slurmdTimeout time.Duration
	wires         map[[2]int]uint64 // switch cable (midplane pair) -> owning job id
}

// New builds a registry from a static node inventory. Node.Index is
// assigned densely in inventory order and never reused.
func New(nodes []domain.Node, slurmdTimeout time.Duration) *Registry {
	r := &Registry{
		nodes:         make([]domain.Node, len(nodes)),
		byName:        make(map[string]int, len(nodes)),
		slurmdTimeout: slurmdTimeout,
		wires:         make(map[[2]int]uint64),
	}
	for i, n := range nodes {
		n.Index = i
		if n.State == domain.NodeUnknown {
			n.State = domain.NodeIdle
		}
		if n.CPUsFree == 0 {
			n.CPUsFree = n.CPUs
		}
		r.nodes[i] = n
		r.byName[n.Name] = i
	}
	return r
}

// LookupByName returns the index of a node by name.
func (r *Registry) LookupByName(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	return idx, ok
}

// Snapshot takes a consistent, immutable copy of the node table.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cp := make([]domain.Node, len(r.nodes))
	copy(cp, r.nodes)
	wires := make(map[[2]int]uint64, len(r.wires))
	for k, v := range r.wires {
		wires[k] = v
	}
	return Snapshot{Nodes: cp, Taken: time.Now(), Wires: wires}
}

// UpdateHeartbeat records a heartbeat observation for node index. Missing a
// heartbeat for slurmdTimeout transitions the node to NO_RESPOND; a
// subsequent heartbeat clears the flag without disturbing the base state.
func (r *Registry) UpdateHeartbeat(index int, observed time.Time, cpusFree int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.nodes) {
		return
	}
	n := &r.nodes[index]
	n.LastHeartbeat = observed
	n.CPUsFree = cpusFree
	n.Flags &^= domain.NodeFlagNoRespond
}

// SweepNoRespond marks every node whose last heartbeat is older than
// slurmdTimeout as NO_RESPOND. Returns the indices newly flagged.
func (r *Registry) SweepNoRespond(now time.Time) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var flagged []int
	for i := range r.nodes {
		n := &r.nodes[i]
		if n.Flags.Has(domain.NodeFlagNoRespond) {
			continue
		}
		if n.LastHeartbeat.IsZero() {
			continue
		}
		if now.Sub(n.LastHeartbeat) > r.slurmdTimeout {
			n.Flags |= domain.NodeFlagNoRespond
			flagged = append(flagged, i)
		}
	}
	return flagged
}

// Drain marks nodes DRAIN with reason. Idempotent.
func (r *Registry) Drain(indices []int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range indices {
		if i < 0 || i >= len(r.nodes) {
			continue
		}
		r.nodes[i].Flags |= domain.NodeFlagDrain
		r.nodes[i].Reason = reason
	}
}

// Resume clears DRAIN and the administrator reason. Idempotent.
func (r *Registry) Resume(indices []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range indices {
		if i < 0 || i >= len(r.nodes) {
			continue
		}
		r.nodes[i].Flags &^= domain.NodeFlagDrain
		r.nodes[i].Reason = ""
	}
}

// Down marks nodes DOWN with reason. Idempotent.
func (r *Registry) Down(indices []int, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range indices {
		if i < 0 || i >= len(r.nodes) {
			continue
		}
		r.nodes[i].State = domain.NodeDown
		r.nodes[i].Reason = reason
	}
}

// SetFeatures replaces the feature tag set for nodes. Idempotent.
func (r *Registry) SetFeatures(indices []int, features map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range indices {
		if i < 0 || i >= len(r.nodes) {
			continue
		}
		r.nodes[i].Features = features
	}
}

// ApplyAllocation decrements free CPU on the given nodes and transitions
// their base state to ALLOCATED (fully consumed) or MIXED (partially
// consumed). Called only by the scheduler with the write lock already
// implied by single-writer discipline at the controller layer.
func (r *Registry) ApplyAllocation(nodeIdx []int, perNodeCPU []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, idx := range nodeIdx {
		if idx < 0 || idx >= len(r.nodes) {
			continue
		}
		n := &r.nodes[idx]
		n.CPUsFree -= perNodeCPU[i]
		if n.CPUsFree <= 0 {
			n.State = domain.NodeAllocated
		} else {
			n.State = domain.NodeMixed
		}
	}
}

// ReleaseAllocation returns CPU budget to the given nodes, transitioning
// back to IDLE when fully free.
func (r *Registry) ReleaseAllocation(nodeIdx []int, perNodeCPU []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, idx := range nodeIdx {
		if idx < 0 || idx >= len(r.nodes) {
			continue
		}
		n := &r.nodes[idx]
		n.CPUsFree += perNodeCPU[i]
		if n.CPUsFree >= n.CPUs {
			n.CPUsFree = n.CPUs
			n.State = domain.NodeIdle
		} else {
			n.State = domain.NodeMixed
		}
	}
}

// ApplyWiring reserves the switch-fabric cables a topology placement's
// wiring plan occupies, per spec.md §4.2's "every internal/external switch
// port required to stitch the region" language. A no-op for Linear
// placements, whose Allocation.WiringPlan is nil.
func (r *Registry) ApplyWiring(jobID uint64, wiring *domain.WiringPlan) {
	if wiring == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range wiring.Edges() {
		r.wires[e] = jobID
	}
}

// ReleaseWiring frees the cables a wiring plan held, once its allocation
// ends.
func (r *Registry) ReleaseWiring(wiring *domain.WiringPlan) {
	if wiring == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range wiring.Edges() {
		delete(r.wires, e)
	}
}

// MarkNodeFail transitions nodes to DOWN with the FAIL flag set, per
// spec.md §5's node-failure handling.
func (r *Registry) MarkNodeFail(indices []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range indices {
		if i < 0 || i >= len(r.nodes) {
			continue
		}
		r.nodes[i].State = domain.NodeDown
		r.nodes[i].Flags |= domain.NodeFlagFail
	}
}
