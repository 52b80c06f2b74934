package membrane

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/soypat/geometry/md3"
)

// NewSphere builds a closed triangulated sphere of the given radius by
// subdividing an icosahedron: at subdivision level n every icosahedral edge
// is split into n+1 equal segments and every face filled with the matching
// equidistant grid of sub-triangles, after which all points are projected
// onto the sphere. The node count obeys 12 + 30n + 10n(n-1) exactly.
//
// verletRadius is the proximity-list cutoff; a nonpositive value leaves the
// lists empty until [Mesh.BuildProximity] is called.
func NewSphere(level int, radius, verletRadius float64) (*Mesh, error) {
	if level < 0 {
		return nil, errors.New("negative subdivision level")
	}
	if radius <= 0 {
		return nil, errors.New("zero or negative sphere radius")
	}
	pos, tris := icosphere(level)
	if want := 12 + 30*level + 10*level*(level-1); len(pos) != want {
		panic(fmt.Sprintf("membrane: icosphere generator emitted %d nodes, want %d", len(pos), want))
	}
	for i := range pos {
		pos[i] = md3.Scale(radius/md3.Norm(pos[i]), pos[i])
	}
	rings, err := ringsFromTriangles(len(pos), tris)
	if err != nil {
		return nil, err
	}
	center := massCenter(pos)
	orientRings(pos, rings, nil, func(i int) md3.Vec {
		return md3.Sub(pos[i], center)
	})
	m := &Mesh{variant: Spherical}
	m.initNodes(pos, rings, nil, verletRadius)
	return m, nil
}

// NewPlanarPatch builds a rectangular lx by ly patch triangulated on an
// nx by ny grid with row-alternating diagonals. The outer frame is frozen:
// its positions never move, its geometric quantities stay zero and its
// edges never flip. Bulk rings are oriented upward, relative to a
// reference point above the patch center.
func NewPlanarPatch(nx, ny int, lx, ly, verletRadius float64) (*Mesh, error) {
	if nx < 3 || ny < 3 {
		return nil, errors.New("planar patch needs at least 3 nodes per side")
	}
	if lx <= 0 || ly <= 0 {
		return nil, errors.New("zero or negative patch dimension")
	}
	dx := lx / float64(nx-1)
	dy := ly / float64(ny-1)
	pos := make([]md3.Vec, nx*ny)
	boundary := make(map[int]struct{})
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			id := iy*nx + ix
			pos[id] = md3.Vec{X: float64(ix) * dx, Y: float64(iy) * dy}
			if ix == 0 || iy == 0 || ix == nx-1 || iy == ny-1 {
				boundary[id] = struct{}{}
			}
		}
	}
	var tris [][3]int
	for cy := 0; cy < ny-1; cy++ {
		for cx := 0; cx < nx-1; cx++ {
			v00 := cy*nx + cx
			v10 := v00 + 1
			v01 := v00 + nx
			v11 := v01 + 1
			if cy%2 == 0 {
				tris = append(tris, [3]int{v00, v10, v11}, [3]int{v00, v11, v01})
			} else {
				tris = append(tris, [3]int{v00, v10, v01}, [3]int{v10, v11, v01})
			}
		}
	}
	rings, err := ringsFromTriangles(len(pos), tris)
	if err != nil {
		return nil, err
	}
	// Chirality reference above the patch. Works for nearly flat patches;
	// strongly warped reloads would need a sturdier procedure.
	ref := md3.Add(massCenter(pos), md3.Vec{Z: 0.25 * math.Max(lx, ly)})
	orientRings(pos, rings, boundary, func(i int) md3.Vec {
		return md3.Sub(ref, pos[i])
	})
	m := &Mesh{variant: Planar}
	m.initNodes(pos, rings, boundary, verletRadius)
	return m, nil
}

// initNodes populates the store from generated positions and rings, runs
// the first full geometry pass, sums the initial totals and builds the
// proximity lists.
func (m *Mesh) initNodes(pos []md3.Vec, rings [][]int, boundary map[int]struct{}, verletRadius float64) {
	m.boundary = boundary
	m.store.nodes = make([]Node, len(pos))
	for i := range pos {
		nd := &m.store.nodes[i]
		nd.pos = pos[i]
		// Ring headroom absorbs the one insertion a flip performs without
		// reallocating in steady state.
		nd.neighbors = make([]int, len(rings[i]), len(rings[i])+2)
		copy(nd.neighbors, rings[i])
		nd.edges = make([]md3.Vec, len(rings[i]), len(rings[i])+2)
		nd.proximity = make(map[int]struct{})
	}
	var t Totals
	for i := range m.store.nodes {
		m.updateNodeGeometry(i)
		t.accumulate(&m.store.nodes[i])
	}
	m.totals = t
	if verletRadius > 0 {
		m.BuildProximity(verletRadius)
	}
}

// icosahedron returns the 12 vertices and 20 faces of a regular
// icosahedron with circumradius sqrt(1+phi²).
func icosahedron() ([]md3.Vec, [][3]int) {
	phi := (1 + math.Sqrt(5)) / 2
	verts := []md3.Vec{
		{X: -1, Y: phi}, {X: 1, Y: phi}, {X: -1, Y: -phi}, {X: 1, Y: -phi},
		{Y: -1, Z: phi}, {Y: 1, Z: phi}, {Y: -1, Z: -phi}, {Y: 1, Z: -phi},
		{X: phi, Z: -1}, {X: phi, Z: 1}, {X: -phi, Z: -1}, {X: -phi, Z: 1},
	}
	faces := [][3]int{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}
	return verts, faces
}

// icoGrid deduplicates subdivision points shared between icosahedral faces:
// corners keep their base ids and edge interiors are stored once per edge,
// keyed from the lower id endpoint.
type icoGrid struct {
	pos   []md3.Vec
	level int
	edges map[[2]int][]int
}

// point appends a fresh subdivision point and returns its id.
func (g *icoGrid) point(p md3.Vec) int {
	g.pos = append(g.pos, p)
	return len(g.pos) - 1
}

// lerpEdge returns the t-th of s equidistant points from a toward b.
func lerpEdge(a, b md3.Vec, t, s int) md3.Vec {
	return md3.Scale(1/float64(s), md3.Add(md3.Scale(float64(s-t), a), md3.Scale(float64(t), b)))
}

// edgePoints returns the ids of the interior subdivision points of edge
// u-v ordered from u to v, creating them on first use.
func (g *icoGrid) edgePoints(u, v int) []int {
	lo, hi := u, v
	if lo > hi {
		lo, hi = hi, lo
	}
	key := [2]int{lo, hi}
	ids, ok := g.edges[key]
	if !ok {
		s := g.level + 1
		ids = make([]int, g.level)
		for t := 1; t <= g.level; t++ {
			ids[t-1] = g.point(lerpEdge(g.pos[lo], g.pos[hi], t, s))
		}
		g.edges[key] = ids
	}
	if u == lo {
		return ids
	}
	rev := make([]int, len(ids))
	for i, id := range ids {
		rev[len(ids)-1-i] = id
	}
	return rev
}

// icosphere subdivides each icosahedral face into an equidistant grid of
// (level+1)² sub-triangles, sharing corner and edge points between faces.
// Positions are left on the icosahedron; the caller projects them.
func icosphere(level int) ([]md3.Vec, [][3]int) {
	base, faces := icosahedron()
	if level == 0 {
		return base, faces
	}
	g := icoGrid{pos: base, level: level, edges: make(map[[2]int][]int)}
	s := level + 1
	var tris [][3]int
	for _, f := range faces {
		// id[i][j] indexes the barycentric grid row i (0..s) column j
		// (0..i), with corners A=id[0][0], B=id[s][0], C=id[s][s].
		id := make([][]int, s+1)
		for i := 0; i <= s; i++ {
			id[i] = make([]int, i+1)
		}
		id[0][0], id[s][0], id[s][s] = f[0], f[1], f[2]
		ab := g.edgePoints(f[0], f[1])
		ac := g.edgePoints(f[0], f[2])
		bc := g.edgePoints(f[1], f[2])
		for i := 1; i < s; i++ {
			id[i][0] = ab[i-1]
			id[i][i] = ac[i-1]
		}
		for j := 1; j < s; j++ {
			id[s][j] = bc[j-1]
		}
		a, b, c := g.pos[f[0]], g.pos[f[1]], g.pos[f[2]]
		for i := 2; i < s; i++ {
			for j := 1; j < i; j++ {
				p := md3.Add(md3.Scale(float64(s-i), a), md3.Add(md3.Scale(float64(i-j), b), md3.Scale(float64(j), c)))
				id[i][j] = g.point(md3.Scale(1/float64(s), p))
			}
		}
		for i := 0; i < s; i++ {
			for j := 0; j <= i; j++ {
				tris = append(tris, [3]int{id[i][j], id[i+1][j], id[i+1][j+1]})
				if j < i {
					tris = append(tris, [3]int{id[i][j], id[i+1][j+1], id[i][j+1]})
				}
			}
		}
	}
	return g.pos, tris
}

// ringsFromTriangles chains each node's incident triangles into a
// cyclically ordered neighbor ring. Boundary fans are open paths and start
// at a fan end; direction is settled later by orientRings.
func ringsFromTriangles(n int, tris [][3]int) ([][]int, error) {
	link := make([]map[int][]int, n)
	for _, t := range tris {
		for c := 0; c < 3; c++ {
			v, x, y := t[c], t[(c+1)%3], t[(c+2)%3]
			if link[v] == nil {
				link[v] = make(map[int][]int, 8)
			}
			link[v][x] = append(link[v][x], y)
			link[v][y] = append(link[v][y], x)
		}
	}
	rings := make([][]int, n)
	for v := 0; v < n; v++ {
		lk := link[v]
		if len(lk) == 0 {
			return nil, fmt.Errorf("node %d belongs to no triangle", v)
		}
		// Deterministic start: the smallest fan end on open fans, the
		// smallest neighbor otherwise.
		start := -1
		for j, wings := range lk {
			if len(wings) == 1 && (start < 0 || j < start) {
				start = j
			}
		}
		if start < 0 {
			for j := range lk {
				if start < 0 || j < start {
					start = j
				}
			}
		}
		ring := make([]int, 1, len(lk))
		ring[0] = start
		prev, cur := -1, start
		for len(ring) < len(lk) {
			next := -1
			for _, w := range lk[cur] {
				if w != prev {
					next = w
					break
				}
			}
			if next < 0 || next == start {
				break
			}
			ring = append(ring, next)
			prev, cur = cur, next
		}
		if len(ring) != len(lk) {
			return nil, fmt.Errorf("node %d has a non-manifold triangle fan", v)
		}
		rings[v] = ring
	}
	return rings, nil
}

// orientRings flips every ring whose winding disagrees with the outward
// direction supplied for its node, so that consecutive edge cross products
// point outward. Boundary fans are open: their wraparound pair is skipped.
func orientRings(pos []md3.Vec, rings [][]int, boundary map[int]struct{}, outward func(i int) md3.Vec) {
	for v, ring := range rings {
		n := len(ring)
		if n < 2 {
			continue
		}
		pairs := n
		if _, open := boundary[v]; open {
			pairs = n - 1
		}
		var acc float64
		for k := 0; k < pairs; k++ {
			e0 := md3.Sub(pos[ring[k]], pos[v])
			e1 := md3.Sub(pos[ring[(k+1)%n]], pos[v])
			acc += md3.Dot(md3.Cross(e0, e1), outward(v))
		}
		if acc < 0 {
			slices.Reverse(ring)
		}
	}
}

// massCenter returns the arithmetic mean of the given positions.
func massCenter(pos []md3.Vec) md3.Vec {
	var c md3.Vec
	for _, p := range pos {
		c = md3.Add(c, p)
	}
	return md3.Scale(1/float64(len(pos)), c)
}
