package membrane

import (
	"fmt"

	"github.com/soypat/geometry/md3"
)

// FlipResult reports the outcome of a flip attempt. When the flip was not
// applied both receiver ids hold [None] so that indexing with them fails
// loudly.
type FlipResult struct {
	// Applied is true when the edge was actually transferred.
	Applied bool
	// CMinus and CPlus are the two common neighbors of the donor pair: the
	// nodes that received the edge.
	CMinus int
	CPlus  int

	// ka and kb are the ring positions b and a held in the donors' rings
	// before the flip; UnflipEdge reinserts them there.
	ka, kb int
}

func (r FlipResult) String() string {
	if !r.Applied {
		return "flip(not applied)"
	}
	return fmt.Sprintf("flip(%d-%d)", r.CMinus, r.CPlus)
}

var flipRejected = FlipResult{CMinus: None, CPlus: None}

// flipRecord captures the exact ring indices touched by an unchecked edge
// transfer so a failed attempt can be rolled back bit-exactly even in
// degenerate cases where the receivers were already adjacent.
type flipRecord struct {
	a, b, cm, cp int
	ka, kb       int // positions b and a held in the donors' rings
	kcm, kcp     int // positions the receivers' new entries were inserted at
}

// FlipEdge attempts to transfer the edge between bonded nodes a and b to
// their two common neighbors. The receivers are located by walking a's
// ring: the entries immediately before and after b. Calling it on a pair
// that is not bonded is a programmer error and panics.
//
// The flip is applied only when every guard passes: no node of the diamond
// lies on a frozen boundary, both donors keep at least [MinDegree]
// neighbors afterwards, the squared receiver distance lies strictly inside
// (minLen2, maxLen2), the donors share exactly two common neighbors, and
// after the tentative rewrite the receivers do too. A rewrite that fails
// the last guard is rolled back and reported as not applied.
//
// On success the geometry of the four diamond nodes is recomputed and the
// global totals adjusted by the exact local difference.
func (m *Mesh) FlipEdge(a, b int, minLen2, maxLen2 float64) FlipResult {
	na := &m.store.nodes[a]
	k := na.ringIndex(b)
	if k < 0 {
		panic(fmt.Sprintf("membrane: flip of non-bonded pair %d-%d", a, b))
	}
	deg := len(na.neighbors)
	cm := na.neighbors[(k+deg-1)%deg]
	cp := na.neighbors[(k+1)%deg]
	if m.IsBoundary(a) || m.IsBoundary(b) || m.IsBoundary(cm) || m.IsBoundary(cp) {
		return flipRejected
	}
	if len(na.neighbors) <= MinDegree || len(m.store.nodes[b].neighbors) <= MinDegree {
		// Donating the edge would sink a donor below the degree floor.
		return flipRejected
	}
	d2 := md3.Norm2(md3.Sub(m.store.nodes[cp].pos, m.store.nodes[cm].pos))
	if d2 <= minLen2 || d2 >= maxLen2 {
		return flipRejected
	}
	if m.store.commonNeighborCount(a, b) != 2 {
		return flipRejected
	}
	pre := m.diamondTotals(a, b, cm, cp)
	rec := m.flipRewrite(a, b, cm, cp)
	if m.store.commonNeighborCount(cm, cp) != 2 {
		// The receivers were already adjacent on the far side of the
		// quadrilateral; the transfer would pinch the surface.
		m.rollbackRewrite(rec)
		return flipRejected
	}
	m.updateDiamond(a, b, cm, cp)
	post := m.diamondTotals(a, b, cm, cp)
	m.totals = m.totals.Add(post.Sub(pre))
	return FlipResult{Applied: true, CMinus: cm, CPlus: cp, ka: rec.ka, kb: rec.kb}
}

// UnflipEdge reverses the most recent successful flip of the edge between
// a and b using the receivers recorded in r: the receivers donate the edge
// back. It trusts its arguments completely and performs no validation; it
// must be called at most once per successful flip and only while no other
// mutation has happened in between.
func (m *Mesh) UnflipEdge(a, b int, r FlipResult) {
	cm, cp := r.CMinus, r.CPlus
	pre := m.diamondTotals(a, b, cm, cp)
	// Reverse transfer with swapped roles. a and b go back to the ring
	// indices recorded by the forward flip, so no ring comes back rotated.
	m.store.emplaceNeighbor(b, a, r.kb, m.store.nodes[a].pos)
	m.store.emplaceNeighbor(a, b, r.ka, m.store.nodes[b].pos)
	m.store.popNeighbor(cm, cp)
	m.store.popNeighbor(cp, cm)
	m.updateDiamond(a, b, cm, cp)
	post := m.diamondTotals(a, b, cm, cp)
	m.totals = m.totals.Add(post.Sub(pre))
}

// flipRewrite performs the unchecked topology rewrite transferring the
// edge a-b to cm-cp. Insertion positions are chosen so every ring stays
// counterclockwise as seen from outside: cp lands right before a in cm's
// ring and cm right before b in cp's ring.
func (m *Mesh) flipRewrite(a, b, cm, cp int) flipRecord {
	s := &m.store
	kcm := s.nodes[cm].ringIndex(a)
	kcp := s.nodes[cp].ringIndex(b)
	if kcm < 0 || kcp < 0 {
		panic(fmt.Sprintf("membrane: nodes %d and %d are no common neighbors of bond %d-%d", cm, cp, a, b))
	}
	s.emplaceNeighbor(cm, cp, kcm, s.nodes[cp].pos)
	s.emplaceNeighbor(cp, cm, kcp, s.nodes[cm].pos)
	ka := s.nodes[a].ringIndex(b)
	kb := s.nodes[b].ringIndex(a)
	s.removeNeighborAt(a, ka)
	s.removeNeighborAt(b, kb)
	return flipRecord{a: a, b: b, cm: cm, cp: cp, ka: ka, kb: kb, kcm: kcm, kcp: kcp}
}

// rollbackRewrite undoes a flipRewrite by replaying the recorded indices
// backwards, restoring every ring bit-exactly.
func (m *Mesh) rollbackRewrite(r flipRecord) {
	s := &m.store
	s.emplaceNeighbor(r.a, r.b, r.ka, s.nodes[r.b].pos)
	s.emplaceNeighbor(r.b, r.a, r.kb, s.nodes[r.a].pos)
	s.removeNeighborAt(r.cm, r.kcm)
	s.removeNeighborAt(r.cp, r.kcp)
}

// updateDiamond recomputes local geometry for the four nodes of a flip.
func (m *Mesh) updateDiamond(a, b, cm, cp int) {
	m.updateNodeGeometry(a)
	m.updateNodeGeometry(b)
	m.updateNodeGeometry(cm)
	m.updateNodeGeometry(cp)
}
