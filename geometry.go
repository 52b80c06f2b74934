package membrane

import "github.com/soypat/geometry/md3"

// Totals is the additive (area, volume, bending energy) triple the engine
// maintains globally and per update neighborhood.
type Totals struct {
	Area          float64
	Volume        float64
	BendingEnergy float64
}

// Add returns the componentwise sum of t and u.
func (t Totals) Add(u Totals) Totals {
	return Totals{t.Area + u.Area, t.Volume + u.Volume, t.BendingEnergy + u.BendingEnergy}
}

// Sub returns the componentwise difference of t and u.
func (t Totals) Sub(u Totals) Totals {
	return Totals{t.Area - u.Area, t.Volume - u.Volume, t.BendingEnergy - u.BendingEnergy}
}

// accumulate adds the node's local quantities to t.
func (t *Totals) accumulate(nd *Node) {
	t.Area += nd.area
	t.Volume += nd.volume
	t.BendingEnergy += nd.bending
}

// cot returns the cotangent of the angle between a and b. The denominator
// is not checked: a degenerate (collinear) pair propagates Inf or NaN, on
// the assumption that the driver's bond-length guards keep triangles fat.
func cot(a, b md3.Vec) float64 {
	return md3.Dot(a, b) / md3.Norm(md3.Cross(a, b))
}

// mixedArea is the Meyer et al. mixed-area rule for the portion of one
// triangle associated with the corner at the ring center. triArea is the
// full triangle area, cotj and cotj1 the cotangents at the two ring
// neighbors spanning the triangle.
func mixedArea(ej, ej1 md3.Vec, triArea, cotj, cotj1 float64) float64 {
	if cotj > 0 && cotj1 > 0 {
		if md3.Dot(ej, ej1) > 0 {
			// Voronoi-safe triangle: non-obtuse at the center.
			return (cotj1*md3.Norm2(ej) + cotj*md3.Norm2(ej1)) / 8
		}
		// Obtuse at the center.
		return triArea / 2
	}
	// Obtuse at one of the neighbors.
	return triArea / 4
}

// updateNodeGeometry refreshes the cached edge vectors of node i and
// recomputes its mixed area, signed volume contribution, mean-curvature
// vector and bending energy density from the current positions of its ring.
// Boundary nodes of planar patches get their edges refreshed but keep all
// scalars at zero.
func (m *Mesh) updateNodeGeometry(i int) {
	nd := &m.store.nodes[i]
	for k, j := range nd.neighbors {
		nd.edges[k] = md3.Sub(m.store.nodes[j].pos, nd.pos)
	}
	if m.IsBoundary(i) {
		nd.area, nd.volume, nd.bending = 0, 0, 0
		nd.curv = md3.Vec{}
		return
	}
	var area float64
	var normal, kappa md3.Vec
	n := len(nd.neighbors)
	for j := 0; j < n; j++ {
		ej := nd.edges[j]
		ej1 := nd.edges[(j+1)%n]
		// l spans the opposite side of the triangle (i, j, j+1).
		l := md3.Sub(ej1, ej)
		cotj := cot(ej, md3.Scale(-1, l))
		cotj1 := cot(ej1, l)
		face := md3.Cross(ej, ej1)
		fnorm := md3.Norm(face)
		aij := mixedArea(ej, ej1, fnorm/2, cotj, cotj1)
		area += aij
		normal = md3.Add(normal, md3.Scale(aij/fnorm, face))
		kappa = md3.Sub(kappa, md3.Add(md3.Scale(cotj1, ej), md3.Scale(cotj, ej1)))
	}
	nd.area = area
	nd.volume = md3.Dot(nd.pos, normal) / 3
	nd.curv = md3.Scale(-1/(2*area), kappa)
	nd.bending = md3.Norm2(kappa) / (8 * area)
}

// updateTwoRing recomputes local geometry for i and every ring neighbor of
// i: the exact set whose quantities depend on i's position.
func (m *Mesh) updateTwoRing(i int) {
	m.updateNodeGeometry(i)
	for _, j := range m.store.nodes[i].neighbors {
		m.updateNodeGeometry(j)
	}
}

// twoRingTotals sums the stored quantities of i and its ring.
func (m *Mesh) twoRingTotals(i int) Totals {
	var t Totals
	nd := &m.store.nodes[i]
	t.accumulate(nd)
	for _, j := range nd.neighbors {
		t.accumulate(&m.store.nodes[j])
	}
	return t
}

// diamondTotals sums the stored quantities of the four nodes involved in an
// edge flip.
func (m *Mesh) diamondTotals(a, b, cm, cp int) Totals {
	var t Totals
	t.accumulate(&m.store.nodes[a])
	t.accumulate(&m.store.nodes[b])
	t.accumulate(&m.store.nodes[cm])
	t.accumulate(&m.store.nodes[cp])
	return t
}
