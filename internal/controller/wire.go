package controller

import (
	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/partition"
	"github.com/ridgehpc/ridge/internal/registry"
	"github.com/ridgehpc/ridge/internal/rpcwire"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// toPlacementRequest translates the wire JobSpec into the placement
// backend's Request, resolving node names against snap the way the
// scheduler's own pass does.
func (s *Server) toPlacementRequest(snap registry.Snapshot, spec *rpcwire.JobSpec) partition.Request {
	features := make(map[string]struct{}, len(spec.Features))
	for _, f := range spec.Features {
		features[f] = struct{}{}
	}
	return partition.Request{
		MinNodes:     spec.MinNodes,
		MaxNodes:     spec.MaxNodes,
		CPUsPerNode:  1,
		Features:     features,
		Contiguous:   spec.Contiguous,
		IncludeNodes: resolveIndices(snap, spec.IncludeNodes),
		ExcludeNodes: resolveIndexSet(snap, spec.ExcludeNodes),
		Geometry:     spec.Geometry,
		ConnType:     partition.ParseConnType(spec.ConnType),
		Rotate:       spec.Rotate,
		Elongate:     spec.Elongate,
	}
}

// nodeNamesOf returns the node names backing job's allocation, in
// allocation order, used to scope a step's launch credential to exactly
// the nodes the job owns.
func (s *Server) nodeNamesOf(job *domain.Job) []string {
	if job.Allocation == nil {
		return nil
	}
	snap := s.ctrl.registry.Snapshot()
	names := make([]string, 0, len(job.Allocation.Nodes))
	for _, idx := range job.Allocation.Nodes {
		if idx >= 0 && idx < len(snap.Nodes) {
			names = append(names, snap.Nodes[idx].Name)
		}
	}
	return names
}

// wireAllocation converts a domain.Allocation to its wire form for the
// AllocateBlocking/LookupAllocation responses, per spec.md §6.
func (s *Server) wireAllocation(a *domain.Allocation) *rpcwire.Allocation {
	if a == nil {
		return nil
	}
	snap := s.ctrl.registry.Snapshot()
	names := make([]string, len(a.Nodes))
	for i, idx := range a.Nodes {
		if idx >= 0 && idx < len(snap.Nodes) {
			names[i] = snap.Nodes[idx].Name
		}
	}
	var wireCred *rpcwire.Credential
	if a.Credential != nil {
		wireCred = &rpcwire.Credential{
			JobID:     a.Credential.JobID,
			StepID:    a.Credential.StepID,
			UID:       a.Credential.UID,
			GID:       a.Credential.GID,
			Nodes:     a.Credential.Nodes,
			Deadline:  timestamppb.New(a.Credential.Deadline),
			Nonce:     a.Credential.Nonce,
			Signature: a.Credential.Signature,
		}
	}
	return &rpcwire.Allocation{
		JobID:      a.JobID,
		Nodes:      names,
		PerNodeCPU: a.PerNodeCPU,
		Deadline:   timestamppb.New(a.Deadline),
		Credential: wireCred,
	}
}

// buildTasks expands a step's per-node task counts into the flat Tasks
// slice and global-id-to-node-index map the controller tracks for exit
// aggregation and credential scoping, per spec.md §3's Task/Step model.
func buildTasks(tasksPerNode []int, allocNodes []int) ([]domain.Task, []int) {
	total := 0
	for _, n := range tasksPerNode {
		total += n
	}
	tasks := make([]domain.Task, 0, total)
	taskNode := make([]int, 0, total)
	globalID := 0
	for ni, count := range tasksPerNode {
		nodeIdx := -1
		if ni < len(allocNodes) {
			nodeIdx = allocNodes[ni]
		}
		for local := 0; local < count; local++ {
			tasks = append(tasks, domain.Task{GlobalID: globalID, LocalID: local, NodeIdx: nodeIdx})
			taskNode = append(taskNode, nodeIdx)
			globalID++
		}
	}
	return tasks, taskNode
}

// parseIOMode maps the wire IOMode string to its domain enum, defaulting to
// IOModeAll per spec.md §4.7 when unset or unrecognized.
func parseIOMode(mode string) domain.IOMode {
	switch mode {
	case "none":
		return domain.IOModeNone
	case "task":
		return domain.IOModeTask
	case "pattern":
		return domain.IOModePattern
	default:
		return domain.IOModeAll
	}
}
