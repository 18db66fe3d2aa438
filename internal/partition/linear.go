package partition

import (
	"sort"

	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/registry"
)

// Linear is the commodity-cluster placement backend: it picks a
// contiguous-by-weight prefix of schedulable nodes, honoring feature
// constraints and the partition's min/max node counts, per spec.md §4.2.
// Ties broken by node weight then index.
type Linear struct{}

func (Linear) Place(snap registry.Snapshot, part *domain.Partition, req Request) (*Plan, RejectKind) {
	if req.Contiguous {
		return placeContiguous(snap, part, req)
	}
	return placeByWeight(snap, part, req)
}

func eligibleFor(snap registry.Snapshot, req Request, idx int) bool {
	if _, excluded := req.ExcludeNodes[idx]; excluded {
		return false
	}
	n := snap.Nodes[idx]
	return n.Schedulable(req.CPUsPerNode) && hasFeatures(n.Features, req.Features)
}

// placeByWeight is Linear's default search: a weight-asc/index-asc prefix of
// schedulable nodes, with any node named in req.IncludeNodes forced into the
// result (spec.md §4.2's per-job node-include list).
func placeByWeight(snap registry.Snapshot, part *domain.Partition, req Request) (*Plan, RejectKind) {
	candidates := make([]int, 0, len(part.NodeIndices))
	for idx := range part.NodeIndices {
		candidates = append(candidates, idx)
	}
	sort.Slice(candidates, func(i, j int) bool {
		ni, nj := snap.Nodes[candidates[i]], snap.Nodes[candidates[j]]
		if ni.Weight != nj.Weight {
			return ni.Weight < nj.Weight
		}
		return candidates[i] < candidates[j]
	})

	for _, idx := range req.IncludeNodes {
		if _, inPart := part.NodeIndices[idx]; !inPart || !eligibleFor(snap, req, idx) {
			return nil, RejectNoFit
		}
	}

	chosenSet := make(map[int]struct{}, req.MaxNodes)
	for _, idx := range req.IncludeNodes {
		chosenSet[idx] = struct{}{}
	}
	for _, idx := range candidates {
		if req.MaxNodes > 0 && len(chosenSet) >= req.MaxNodes {
			break
		}
		if _, already := chosenSet[idx]; already {
			continue
		}
		if !eligibleFor(snap, req, idx) {
			continue
		}
		chosenSet[idx] = struct{}{}
	}

	chosen := make([]int, 0, len(chosenSet))
	for idx := range chosenSet {
		chosen = append(chosen, idx)
	}
	sort.Slice(chosen, func(i, j int) bool {
		ni, nj := snap.Nodes[chosen[i]], snap.Nodes[chosen[j]]
		if ni.Weight != nj.Weight {
			return ni.Weight < nj.Weight
		}
		return chosen[i] < chosen[j]
	})

	if len(chosen) < req.MinNodes {
		if len(candidates) < req.MinNodes {
			return nil, RejectTooLarge
		}
		return nil, RejectNoFit
	}

	perNodeCPU := make([]int, len(chosen))
	for i := range chosen {
		perNodeCPU[i] = req.CPUsPerNode
	}
	return &Plan{Nodes: chosen, PerNodeCPU: perNodeCPU}, RejectNone
}

// placeContiguous finds a contiguous ascending run of node indices
// satisfying Min/MaxNodes, used when req.Contiguous is set.
func placeContiguous(snap registry.Snapshot, part *domain.Partition, req Request) (*Plan, RejectKind) {
	indices := make([]int, 0, len(part.NodeIndices))
	for idx := range part.NodeIndices {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	required := make(map[int]struct{}, len(req.IncludeNodes))
	for _, idx := range req.IncludeNodes {
		required[idx] = struct{}{}
	}

	best := -1
	bestLen := 0
	for start := 0; start < len(indices); start++ {
		if !eligibleFor(snap, req, indices[start]) {
			continue
		}
		end := start
		for end+1 < len(indices) && indices[end+1] == indices[end]+1 && eligibleFor(snap, req, indices[end+1]) {
			end++
			if req.MaxNodes > 0 && end-start+1 >= req.MaxNodes {
				break
			}
		}
		runLen := end - start + 1
		if runLen < req.MinNodes {
			continue
		}
		window := runLen
		if req.MaxNodes > 0 && window > req.MaxNodes {
			window = req.MaxNodes
		}
		if containsRequired(indices[start:start+window], required) {
			best = start
			bestLen = window
			break
		}
	}

	if best < 0 {
		if len(indices) < req.MinNodes {
			return nil, RejectTooLarge
		}
		return nil, RejectNoFit
	}

	chosen := append([]int(nil), indices[best:best+bestLen]...)
	sort.SliceStable(chosen, func(i, j int) bool {
		return snap.Nodes[chosen[i]].Weight < snap.Nodes[chosen[j]].Weight
	})
	perNodeCPU := make([]int, len(chosen))
	for i := range chosen {
		perNodeCPU[i] = req.CPUsPerNode
	}
	return &Plan{Nodes: chosen, PerNodeCPU: perNodeCPU}, RejectNone
}

func containsRequired(run []int, required map[int]struct{}) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[int]struct{}, len(run))
	for _, idx := range run {
		set[idx] = struct{}{}
	}
	for idx := range required {
		if _, ok := set[idx]; !ok {
			return false
		}
	}
	return true
}

func hasFeatures(have, want map[string]struct{}) bool {
	for f := range want {
		if _, ok := have[f]; !ok {
			return false
		}
	}
	return true
}
