package membrane

import "github.com/soypat/geometry/md3"

// BuildProximity rebuilds every node's proximity list: the symmetric set of
// node pairs closer than radius. Callers typically pass a small multiple of
// the maximum allowed bond length so the lists can guard against non-bonded
// overlap between rebuilds. The scan is a naive O(N²) pass; there is no
// incremental maintenance.
func (m *Mesh) BuildProximity(radius float64) {
	r2 := radius * radius
	nodes := m.store.nodes
	for i := range nodes {
		clear(nodes[i].proximity)
	}
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			if md3.Norm2(md3.Sub(nodes[j].pos, nodes[i].pos)) < r2 {
				nodes[i].proximity[j] = struct{}{}
				nodes[j].proximity[i] = struct{}{}
			}
		}
	}
}

// ProximityLen returns the number of nodes currently on id's proximity
// list.
func (m *Mesh) ProximityLen(id int) int { return len(m.store.nodes[id].proximity) }

// ForEachProximity calls fn for every node on id's proximity list until fn
// returns false. Iteration order is unspecified.
func (m *Mesh) ForEachProximity(id int, fn func(j int) bool) {
	for j := range m.store.nodes[id].proximity {
		if !fn(j) {
			return
		}
	}
}
