// Package membrane implements a dynamically triangulated surface for
// Monte-Carlo simulation of two-dimensional elastic membranes embedded in
// three-dimensional space. The mesh tracks per-node mixed areas, signed
// volume contributions and discrete mean curvature, and supports two local
// rewrite operations, node displacement and edge flip, keeping a global
// geometry aggregate coherent after each one.
package membrane

import (
	"fmt"
	"math"

	"github.com/soypat/geometry/md3"
	"gonum.org/v1/gonum/floats"
)

// None is the id stored where no node applies, such as the receiver fields
// of a rejected flip. Its value sits at the top of the signed 64-bit range
// so that using it as an index fails loudly.
const None = math.MaxInt64

// MinDegree is the bulk degree floor: no bulk node ever holds fewer ring
// neighbors, and a node must have strictly more to donate an edge in a
// flip.
const MinDegree = 5

// validateTol bounds the floating-point drift tolerated between cached and
// recomputed quantities when checking mesh coherence.
const validateTol = 1e-9

// Variant selects the surface topology of a mesh.
type Variant uint8

const (
	// Spherical meshes are closed surfaces with no boundary; every node is
	// bulk.
	Spherical Variant = iota
	// Planar meshes are rectangular patches whose outer frame is frozen:
	// boundary positions are immutable, their geometric quantities stay
	// zero and edges touching them never flip.
	Planar
)

func (v Variant) String() string {
	switch v {
	case Spherical:
		return "spherical"
	case Planar:
		return "planar"
	}
	return "unknown"
}

// Mesh is a dynamically triangulated surface: an indexed node store, the
// surface variant, the frozen boundary set of planar patches and the
// running global totals. All mutation goes through [Mesh.Displace],
// [Mesh.FlipEdge] and [Mesh.UnflipEdge], each of which restores every mesh
// invariant before returning.
type Mesh struct {
	store    Store
	variant  Variant
	boundary map[int]struct{}
	totals   Totals
}

// Variant returns the surface topology of the mesh.
func (m *Mesh) Variant() Variant { return m.variant }

// Len returns the number of nodes.
func (m *Mesh) Len() int { return m.store.Len() }

// Node returns the node with the given id for read access. Out-of-range
// ids panic.
func (m *Mesh) Node(id int) *Node { return m.store.At(id) }

// Pos returns the position of node id.
func (m *Mesh) Pos(id int) md3.Vec { return m.store.nodes[id].pos }

// Degree returns the number of ring neighbors of node id.
func (m *Mesh) Degree(id int) int { return len(m.store.nodes[id].neighbors) }

// Neighbor returns the k-th ring neighbor of node id.
func (m *Mesh) Neighbor(id, k int) int { return m.store.nodes[id].neighbors[k] }

// Edge returns the cached vector from node id to its k-th ring neighbor.
func (m *Mesh) Edge(id, k int) md3.Vec { return m.store.nodes[id].edges[k] }

// Ring returns a copy of the cyclically ordered neighbor ids of node id.
func (m *Mesh) Ring(id int) []int {
	nd := &m.store.nodes[id]
	ring := make([]int, len(nd.neighbors))
	copy(ring, nd.neighbors)
	return ring
}

// EdgeTo returns the cached edge vector from node i to its neighbor j.
// Asking for a node that is not a neighbor is a programmer error and
// panics.
func (m *Mesh) EdgeTo(i, j int) md3.Vec {
	k := m.store.nodes[i].ringIndex(j)
	if k < 0 {
		panic(fmt.Sprintf("membrane: node %d has no neighbor %d", i, j))
	}
	return m.store.nodes[i].edges[k]
}

// IsBoundary reports whether node id belongs to the frozen frame of a
// planar patch. Always false on spherical meshes.
func (m *Mesh) IsBoundary(id int) bool {
	if m.variant != Planar {
		return false
	}
	_, ok := m.boundary[id]
	return ok
}

// BoundaryLen returns the number of frozen boundary nodes.
func (m *Mesh) BoundaryLen() int { return len(m.boundary) }

// Totals returns the running global (area, volume, bending energy)
// aggregate. It is built once at construction and maintained by exact
// deltas; the mesh never rescans itself during steady-state simulation.
func (m *Mesh) Totals() Totals { return m.totals }

// NodeTotals returns the (area, volume, bending energy) triple of a single
// node.
func (m *Mesh) NodeTotals(id int) Totals {
	nd := &m.store.nodes[id]
	return Totals{nd.area, nd.volume, nd.bending}
}

// RecomputeTotals rescans every node and returns fresh global totals. It
// exists for validation and tests; steady-state code reads [Mesh.Totals].
func (m *Mesh) RecomputeTotals() Totals {
	n := m.store.Len()
	area := make([]float64, n)
	vol := make([]float64, n)
	bend := make([]float64, n)
	for i := range m.store.nodes {
		nd := &m.store.nodes[i]
		area[i], vol[i], bend[i] = nd.area, nd.volume, nd.bending
	}
	return Totals{floats.Sum(area), floats.Sum(vol), floats.Sum(bend)}
}

// Displace shifts node id by delta and restores all geometry that depends
// on its position: the node itself and its ring, plus the global totals by
// the exact local difference. Bond-length admissibility is the caller's
// concern, not the mesh's. Displacing a frozen boundary node is a no-op.
func (m *Mesh) Displace(id int, delta md3.Vec) {
	if m.IsBoundary(id) {
		return
	}
	pre := m.twoRingTotals(id)
	nd := &m.store.nodes[id]
	nd.pos = md3.Add(nd.pos, delta)
	m.updateTwoRing(id)
	post := m.twoRingTotals(id)
	m.totals = m.totals.Add(post.Sub(pre))
}

// Validate checks the mesh invariants: ring symmetry, edge coherence, ring
// order, the bulk degree floor, the two-common-neighbor property of bonded
// bulk pairs and the fidelity of the running totals. It returns a
// descriptive error for the first violation found, or nil.
func (m *Mesh) Validate() error {
	for i := range m.store.nodes {
		nd := &m.store.nodes[i]
		deg := len(nd.neighbors)
		closed := !m.IsBoundary(i)
		if closed && deg < MinDegree {
			return fmt.Errorf("node %d: degree %d below floor %d", i, deg, MinDegree)
		}
		for k, j := range nd.neighbors {
			if j < 0 || j >= m.store.Len() {
				return fmt.Errorf("node %d: neighbor id %d out of range", i, j)
			}
			nj := &m.store.nodes[j]
			if !nj.hasNeighbor(i) {
				return fmt.Errorf("node %d: neighbor %d does not list it back", i, j)
			}
			want := md3.Sub(nj.pos, nd.pos)
			if md3.Norm(md3.Sub(nd.edges[k], want)) > validateTol {
				return fmt.Errorf("node %d: stale edge vector toward %d", i, j)
			}
			// Boundary rings are open fans: the wraparound pair closes no
			// triangle.
			if closed || k < deg-1 {
				next := nd.neighbors[(k+1)%deg]
				if !nj.hasNeighbor(next) {
					return fmt.Errorf("node %d: ring entries %d and %d do not close a triangle", i, j, next)
				}
			}
			if !m.IsBoundary(i) && !m.IsBoundary(j) {
				if c := m.store.commonNeighborCount(i, j); c != 2 {
					return fmt.Errorf("bond %d-%d: %d common neighbors, want 2", i, j, c)
				}
			}
		}
	}
	fresh := m.RecomputeTotals()
	diff := m.totals.Sub(fresh)
	if math.Abs(diff.Area) > validateTol || math.Abs(diff.Volume) > validateTol ||
		math.Abs(diff.BendingEnergy) > validateTol {
		return fmt.Errorf("running totals %+v drifted from recomputed %+v", m.totals, fresh)
	}
	return nil
}
