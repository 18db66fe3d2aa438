package domain

import "time"

// Credential is the signed, at-most-once launch token the controller hands
// to the node agent for a given (job, step), per spec.md §4.5.
type Credential struct {
	JobID    uint64
	StepID   uint32
	UID      uint32
	GID      uint32
	Nodes    []string // sorted, canonical node name list
	Deadline time.Time
	Nonce    string

	Signature []byte
}

// WiringPlan records the topology backend's chosen axis rotation and node
// ordering for an allocation, so the node agent can reconstruct the same
// neighbor wiring the scheduler computed, per spec.md §4.2.
type WiringPlan struct {
	Rotation string // one of "ABC","ACB","CAB","CBA","BCA","BAC"
	Dims     [3]int
	Coords   [][3]int // parallel to Allocation.Nodes
	WrapAxis [3]bool  // axes whose carved region wrapped past the machine boundary
}

// index maps a grid coordinate to its dense node index, matching the
// partition package's own Topology.index.
func (w *WiringPlan) index(c [3]int) int {
	return c[0] + c[1]*w.Dims[0] + c[2]*w.Dims[0]*w.Dims[1]
}

// Edges returns the unordered node-index pairs identifying every physical
// switch cable this plan's fabric must hold reserved: one per pair of
// midplanes adjacent along an axis within Coords, plus the torus
// pass-through cable on any axis recorded in WrapAxis, per spec.md §4.2
// ("allocating pass-through wires between dimensions when the request
// spans non-contiguous midplanes"). Two plans that share an edge are
// contending for the same cable.
func (w *WiringPlan) Edges() [][2]int {
	if w == nil {
		return nil
	}
	inSet := make(map[[3]int]bool, len(w.Coords))
	for _, c := range w.Coords {
		inSet[c] = true
	}

	seen := make(map[[2]int]bool)
	var edges [][2]int
	add := func(a, b int) {
		if a > b {
			a, b = b, a
		}
		key := [2]int{a, b}
		if seen[key] {
			return
		}
		seen[key] = true
		edges = append(edges, key)
	}

	for _, c := range w.Coords {
		for axis := 0; axis < 3; axis++ {
			n := c
			n[axis]++
			if n[axis] >= w.Dims[axis] {
				if !w.WrapAxis[axis] {
					continue
				}
				n[axis] = 0
			}
			if inSet[n] {
				add(w.index(c), w.index(n))
			}
		}
	}
	return edges
}
