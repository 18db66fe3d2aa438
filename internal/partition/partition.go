// Package partition implements the partition model and placement backends
// described in spec.md §4.2: a named policy over a subset of nodes, queried
// by name and by node, and two pluggable placement backends (linear,
// topology) selected by configuration per spec.md §9's capability-interface
// design note.
package partition

import (
	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/registry"
)

// Table owns the set of configured partitions.
type Table struct {
	byName map[string]*domain.Partition
}

// NewTable builds a partition table from a static list.
func NewTable(parts []*domain.Partition) *Table {
	t := &Table{byName: make(map[string]*domain.Partition, len(parts))}
	for _, p := range parts {
		t.byName[p.Name] = p
	}
	return t
}

// Lookup returns the named partition, or false.
func (t *Table) Lookup(name string) (*domain.Partition, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// ForNode returns every partition containing nodeIdx. Partitions MAY
// overlap on nodes, per spec.md §3.
func (t *Table) ForNode(nodeIdx int) []*domain.Partition {
	var out []*domain.Partition
	for _, p := range t.byName {
		if _, ok := p.NodeIndices[nodeIdx]; ok {
			out = append(out, p)
		}
	}
	return out
}

// RejectKind enumerates the placement backend's typed failure modes.
type RejectKind int

const (
	RejectNone RejectKind = iota
	RejectTooLarge
	RejectNoFit
	RejectNoWires
)

func (k RejectKind) String() string {
	switch k {
	case RejectTooLarge:
		return "TooLarge"
	case RejectNoFit:
		return "NoFit"
	case RejectNoWires:
		return "NoWires"
	default:
		return "none"
	}
}

// Request describes a job's placement constraints, consumed by either
// backend.
type Request struct {
	MinNodes     int
	MaxNodes     int
	CPUsPerNode  int
	Features     map[string]struct{}
	Contiguous   bool
	IncludeNodes []int
	ExcludeNodes map[int]struct{}

	// Topology-only fields (spec.md §4.2).
	Geometry [3]int
	ConnType ConnType
	Rotate   bool
	Elongate bool
}

// ConnType is the topology backend's requested connectivity.
type ConnType int

const (
	ConnTorus ConnType = iota
	ConnMesh
	ConnSmall
	ConnNav
)

// ParseConnType maps the wire/config string form to ConnType, defaulting to
// ConnTorus for empty or unrecognized values, per spec.md §4.2.
func ParseConnType(s string) ConnType {
	switch s {
	case "mesh":
		return ConnMesh
	case "small":
		return ConnSmall
	case "nav":
		return ConnNav
	default:
		return ConnTorus
	}
}

// Plan is the result of a successful placement: an ordered node set and
// per-node CPU grant.
type Plan struct {
	Nodes      []int // ordered per spec.md §4.4: (weight asc, index asc)
	PerNodeCPU []int
	Wiring     *domain.WiringPlan // non-nil only for topology placement
}

// Backend is the placement backend capability interface. Both variants are
// purely functional over an immutable snapshot; they never mutate shared
// state, per spec.md §4.2.
type Backend interface {
	Place(snap registry.Snapshot, part *domain.Partition, req Request) (*Plan, RejectKind)
}
