package membrane

import (
	"slices"

	"github.com/soypat/geometry/md3"
)

// Node is a single vertex of a triangulated surface together with the
// cached geometric quantities associated with it. Nodes are created by the
// mesh constructors and live for the whole simulation; displacements and
// edge flips mutate them in place through [Mesh] methods.
type Node struct {
	pos md3.Vec
	// neighbors is the ring: the cyclically ordered ids of the adjacent
	// nodes such that consecutive entries close a triangle with this node.
	// edges caches the vector from this node to each ring neighbor and is
	// always mutated together with neighbors.
	neighbors []int
	edges     []md3.Vec
	// proximity holds ids of nodes within the Verlet cutoff. Rebuilt
	// explicitly by [Mesh.BuildProximity], never maintained incrementally.
	proximity map[int]struct{}
	area      float64
	volume    float64
	bending   float64
	curv      md3.Vec
}

// Pos returns the node position in lab-frame coordinates.
func (nd *Node) Pos() md3.Vec { return nd.pos }

// Degree returns the number of ring neighbors.
func (nd *Node) Degree() int { return len(nd.neighbors) }

// Area returns the mixed (Voronoi-like) area associated with the node.
func (nd *Node) Area() float64 { return nd.area }

// Volume returns the signed tetrahedral contribution of the node's cell to
// the volume enclosed by the surface, relative to the origin.
func (nd *Node) Volume() float64 { return nd.volume }

// BendingEnergy returns ‖K‖²·A/2 where K is the discrete mean-curvature
// vector: the Canham-Helfrich integrand with unit bending rigidity.
func (nd *Node) BendingEnergy() float64 { return nd.bending }

// Curvature returns the discrete mean-curvature vector.
func (nd *Node) Curvature() md3.Vec { return nd.curv }

// ringIndex returns the position of id in the ring, or -1 if id is not a
// neighbor.
func (nd *Node) ringIndex(id int) int {
	for k, j := range nd.neighbors {
		if j == id {
			return k
		}
	}
	return -1
}

func (nd *Node) hasNeighbor(id int) bool { return nd.ringIndex(id) >= 0 }

// Store is an indexed collection of nodes. Ids are dense in [0, Len).
// Topology is mutated only through the primitives below, which touch a
// single ring and leave partner nodes and geometry untouched; [Mesh] is
// responsible for using them in matched pairs.
type Store struct {
	nodes []Node
}

// Len returns the number of nodes in the store.
func (s *Store) Len() int { return len(s.nodes) }

// At returns the node with the given id. Out-of-range ids are a programmer
// error and panic.
func (s *Store) At(id int) *Node { return &s.nodes[id] }

// emplaceNeighbor inserts newID before ringIdx in center's ring and caches
// the corresponding edge vector computed from newPos. It does not update
// the partner node nor any geometry.
func (s *Store) emplaceNeighbor(center, newID, ringIdx int, newPos md3.Vec) {
	nd := &s.nodes[center]
	nd.neighbors = slices.Insert(nd.neighbors, ringIdx, newID)
	nd.edges = slices.Insert(nd.edges, ringIdx, md3.Sub(newPos, nd.pos))
}

// popNeighbor removes other and its cached edge from center's ring. No-op
// if other is not a neighbor.
func (s *Store) popNeighbor(center, other int) {
	k := s.nodes[center].ringIndex(other)
	if k < 0 {
		return
	}
	s.removeNeighborAt(center, k)
}

// removeNeighborAt removes the ring entry at index k of center.
func (s *Store) removeNeighborAt(center, k int) {
	nd := &s.nodes[center]
	nd.neighbors = slices.Delete(nd.neighbors, k, k+1)
	nd.edges = slices.Delete(nd.edges, k, k+1)
}

// commonNeighborCount counts nodes adjacent to both a and b. On a coherent
// triangulation two bonded bulk nodes share exactly two: the far corners of
// the two triangles meeting at their edge.
func (s *Store) commonNeighborCount(a, b int) int {
	nb := &s.nodes[b]
	n := 0
	for _, j := range s.nodes[a].neighbors {
		if nb.hasNeighbor(j) {
			n++
		}
	}
	return n
}
