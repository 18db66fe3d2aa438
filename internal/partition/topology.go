package partition

import (
	"sort"

	"github.com/ridgehpc/ridge/internal/domain"
	"github.com/ridgehpc/ridge/internal/registry"
)

// rotationOrder is the fixed axis-permutation search order required by
// spec.md §4.4, lifted from original_source/src/plugins/select/bluegene's
// block_allocator.c candidate geometry enumeration rather than invented.
var rotationOrder = []string{"ABC", "ACB", "CAB", "CBA", "BCA", "BAC"}

func permute(g [3]int, rotation string) [3]int {
	idx := func(axis byte) int {
		switch axis {
		case 'A':
			return 0
		case 'B':
			return 1
		default:
			return 2
		}
	}
	return [3]int{g[idx(rotation[0])], g[idx(rotation[1])], g[idx(rotation[2])]}
}

// Topology is the mesh/torus placement backend, per spec.md §4.2. It
// enumerates candidate geometries by rotating through the six axis
// permutations and, for each, searches the physical grid for a free
// sub-rectangle.
type Topology struct {
	Dims [3]int // physical machine geometry
}

func (t Topology) coords(idx int) [3]int {
	x := idx % t.Dims[0]
	y := (idx / t.Dims[0]) % t.Dims[1]
	z := idx / (t.Dims[0] * t.Dims[1])
	return [3]int{x, y, z}
}

func (t Topology) index(c [3]int) int {
	return c[0] + c[1]*t.Dims[0] + c[2]*t.Dims[0]*t.Dims[1]
}

func (t Topology) Place(snap registry.Snapshot, part *domain.Partition, req Request) (*Plan, RejectKind) {
	connType := req.ConnType
	preferred := []ConnType{connType}
	if connType == ConnNav {
		// spec.md §9 Open Questions: prefer torus when nav is ambiguous.
		preferred = []ConnType{ConnTorus, ConnMesh}
	}

	geoms := [][3]int{req.Geometry}
	if req.Elongate {
		geoms = append(geoms, elongatedGeometries(req.Geometry)...)
	}

	rotations := rotationOrder
	if !req.Rotate {
		rotations = rotationOrder[:1]
	}

	sawTooLarge := false
	sawWireBlock := false
	tried := 0

	for _, baseGeom := range geoms {
		for _, conn := range preferred {
			for _, rot := range rotations {
				geom := permute(baseGeom, rot)
				if geom[0] > t.Dims[0] || geom[1] > t.Dims[1] || geom[2] > t.Dims[2] {
					sawTooLarge = true
					continue
				}
				plan, ok, wireBlocked := t.searchOrigins(snap, part, req, geom, conn, rot)
				if wireBlocked {
					sawWireBlock = true
				}
				if ok {
					return plan, RejectNone
				}
				tried++
			}
		}
	}

	if tried == 0 && sawTooLarge {
		return nil, RejectTooLarge
	}
	if sawWireBlock {
		return nil, RejectNoWires
	}
	return nil, RejectNoFit
}

// elongatedGeometries generates alternate box shapes with the same total
// node volume as geom by moving whole factors of one axis's length onto
// another, per spec.md §4.2's "elongating along axes of the machine".
// Grounded on original_source/src/plugins/select/bluegene/block_allocator.c,
// which tries a small set of re-factored dimension triples for a requested
// node count rather than a single fixed shape.
func elongatedGeometries(geom [3]int) [][3]int {
	if geom[0] <= 0 || geom[1] <= 0 || geom[2] <= 0 {
		return nil
	}
	seen := map[[3]int]bool{geom: true}
	var out [][3]int
	for from := 0; from < 3; from++ {
		for to := 0; to < 3; to++ {
			if from == to || geom[from] <= 1 {
				continue
			}
			for factor := 2; factor <= geom[from]; factor++ {
				if geom[from]%factor != 0 {
					continue
				}
				cand := geom
				cand[from] /= factor
				cand[to] *= factor
				if seen[cand] {
					continue
				}
				seen[cand] = true
				out = append(out, cand)
			}
		}
	}
	return out
}

func (t Topology) searchOrigins(snap registry.Snapshot, part *domain.Partition, req Request, geom [3]int, conn ConnType, rotation string) (*Plan, bool, bool) {
	wraps := conn == ConnTorus

	maxOX, maxOY, maxOZ := t.Dims[0], t.Dims[1], t.Dims[2]
	if !wraps {
		maxOX = t.Dims[0] - geom[0] + 1
		maxOY = t.Dims[1] - geom[1] + 1
		maxOZ = t.Dims[2] - geom[2] + 1
		if maxOX <= 0 || maxOY <= 0 || maxOZ <= 0 {
			return nil, false, false
		}
	}

	sawWireBlock := false
	for ox := 0; ox < maxOX; ox++ {
		for oy := 0; oy < maxOY; oy++ {
			for oz := 0; oz < maxOZ; oz++ {
				nodes, coords, wrapAxis, ok, wireBlocked := t.carve(snap, part, req, geom, [3]int{ox, oy, oz}, wraps)
				if wireBlocked {
					sawWireBlock = true
				}
				if !ok {
					continue
				}
				perNodeCPU := make([]int, len(nodes))
				for i := range nodes {
					perNodeCPU[i] = req.CPUsPerNode
				}
				return &Plan{
					Nodes:      nodes,
					PerNodeCPU: perNodeCPU,
					Wiring: &domain.WiringPlan{
						Rotation: rotation,
						Dims:     t.Dims,
						Coords:   coords,
						WrapAxis: wrapAxis,
					},
				}, true, sawWireBlock
			}
		}
	}
	return nil, false, sawWireBlock
}

// carve attempts to build one candidate region at origin. It returns
// ok=false if any node in the region fails a schedulability/feature/
// membership check, and separately reports wireBlocked=true when every
// node-level check passed but the region's switch fabric is already
// committed to another allocation (spec.md §4.2: "every internal/external
// switch port required to stitch the region is unused").
func (t Topology) carve(snap registry.Snapshot, part *domain.Partition, req Request, geom, origin [3]int, wraps bool) ([]int, [][3]int, [3]int, bool, bool) {
	var nodes []int
	var coords [][3]int
	var wrapAxis [3]bool

	for dx := 0; dx < geom[0]; dx++ {
		for dy := 0; dy < geom[1]; dy++ {
			for dz := 0; dz < geom[2]; dz++ {
				c := [3]int{origin[0] + dx, origin[1] + dy, origin[2] + dz}
				if wraps {
					for axis := 0; axis < 3; axis++ {
						if c[axis] >= t.Dims[axis] {
							c[axis] %= t.Dims[axis]
							wrapAxis[axis] = true
						}
					}
				} else if c[0] >= t.Dims[0] || c[1] >= t.Dims[1] || c[2] >= t.Dims[2] {
					return nil, nil, wrapAxis, false, false
				}
				idx := t.index(c)
				if _, inPart := part.NodeIndices[idx]; !inPart {
					return nil, nil, wrapAxis, false, false
				}
				if _, excluded := req.ExcludeNodes[idx]; excluded {
					return nil, nil, wrapAxis, false, false
				}
				n := snap.Nodes[idx]
				if !n.Schedulable(req.CPUsPerNode) {
					return nil, nil, wrapAxis, false, false
				}
				if !hasFeatures(n.Features, req.Features) {
					return nil, nil, wrapAxis, false, false
				}
				nodes = append(nodes, idx)
				coords = append(coords, c)
			}
		}
	}

	if !containsAll(nodes, req.IncludeNodes) {
		return nil, nil, wrapAxis, false, false
	}

	plan := &domain.WiringPlan{Dims: t.Dims, Coords: coords, WrapAxis: wrapAxis}
	for _, e := range plan.Edges() {
		if _, busy := snap.Wires[e]; busy {
			return nil, nil, wrapAxis, false, true
		}
	}

	sort.Slice(nodes, func(i, j int) bool {
		ni, nj := snap.Nodes[nodes[i]], snap.Nodes[nodes[j]]
		if ni.Weight != nj.Weight {
			return ni.Weight < nj.Weight
		}
		return nodes[i] < nodes[j]
	})
	for i, idx := range nodes {
		coords[i] = t.coords(idx)
	}
	return nodes, coords, wrapAxis, true, false
}

// containsAll reports whether every index in want is present in nodes.
func containsAll(nodes []int, want []int) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[int]struct{}, len(nodes))
	for _, idx := range nodes {
		set[idx] = struct{}{}
	}
	for _, idx := range want {
		if _, ok := set[idx]; !ok {
			return false
		}
	}
	return true
}
