package membrane

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/soypat/geometry/md3"
)

// ErrBadSnapshot is wrapped by every reload failure caused by malformed
// input.
var ErrBadSnapshot = errors.New("membrane: malformed snapshot")

// nodeRecord is the serialized attribute map of one node. Per-neighbor edge
// vectors are not stored; they are derived from positions at load time.
type nodeRecord struct {
	Area          float64    `json:"area"`
	Volume        float64    `json:"volume"`
	BendingEnergy float64    `json:"bending_energy_unit"`
	Position      [3]float64 `json:"position"`
	Curvature     [3]float64 `json:"curvature_vec"`
	Neighbors     []int      `json:"neighbor_ids"`
	Proximity     []int      `json:"proximity_ids"`
}

// WriteSnapshot serializes the mesh as a JSON object keyed by decimal node
// id. Ring order is preserved verbatim; proximity ids are sorted for
// reproducible output.
func (m *Mesh) WriteSnapshot(w io.Writer) error {
	records := make(map[string]nodeRecord, m.Len())
	for i := range m.store.nodes {
		nd := &m.store.nodes[i]
		prox := make([]int, 0, len(nd.proximity))
		for j := range nd.proximity {
			prox = append(prox, j)
		}
		sort.Ints(prox)
		records[strconv.Itoa(i)] = nodeRecord{
			Area:          nd.area,
			Volume:        nd.volume,
			BendingEnergy: nd.bending,
			Position:      [3]float64{nd.pos.X, nd.pos.Y, nd.pos.Z},
			Curvature:     [3]float64{nd.curv.X, nd.curv.Y, nd.curv.Z},
			Neighbors:     append([]int{}, nd.neighbors...),
			Proximity:     prox,
		}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(records)
}

// ReadSphereSnapshot reconstructs a spherical mesh from a snapshot written
// by [Mesh.WriteSnapshot]. Edge vectors are rederived from the loaded
// positions and the global totals resummed. Planar reload is deliberately
// unsupported: frozen-boundary membership is not part of the snapshot.
func ReadSphereSnapshot(r io.Reader) (*Mesh, error) {
	var records map[string]nodeRecord
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadSnapshot, err.Error())
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrBadSnapshot)
	}
	m := &Mesh{variant: Spherical}
	m.store.nodes = make([]Node, len(records))
	seen := make([]bool, len(records))
	for key, rec := range records {
		id, err := strconv.Atoi(key)
		if err != nil || id < 0 || id >= len(records) {
			return nil, fmt.Errorf("%w: node ids must be dense decimals, got %q", ErrBadSnapshot, key)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate node id %d", ErrBadSnapshot, id)
		}
		seen[id] = true
		nd := &m.store.nodes[id]
		nd.pos = md3.Vec{X: rec.Position[0], Y: rec.Position[1], Z: rec.Position[2]}
		nd.curv = md3.Vec{X: rec.Curvature[0], Y: rec.Curvature[1], Z: rec.Curvature[2]}
		nd.area = rec.Area
		nd.volume = rec.Volume
		nd.bending = rec.BendingEnergy
		nd.neighbors = make([]int, len(rec.Neighbors), len(rec.Neighbors)+2)
		copy(nd.neighbors, rec.Neighbors)
		nd.edges = make([]md3.Vec, len(rec.Neighbors), len(rec.Neighbors)+2)
		nd.proximity = make(map[int]struct{}, len(rec.Proximity))
		for _, j := range rec.Proximity {
			nd.proximity[j] = struct{}{}
		}
	}
	for i := range m.store.nodes {
		nd := &m.store.nodes[i]
		if len(nd.neighbors) < MinDegree {
			return nil, fmt.Errorf("%w: node %d has %d neighbors", ErrBadSnapshot, i, len(nd.neighbors))
		}
		for k, j := range nd.neighbors {
			if j < 0 || j >= len(m.store.nodes) {
				return nil, fmt.Errorf("%w: node %d lists unknown neighbor %d", ErrBadSnapshot, i, j)
			}
			nd.edges[k] = md3.Sub(m.store.nodes[j].pos, nd.pos)
		}
	}
	m.totals = m.RecomputeTotals()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadSnapshot, err.Error())
	}
	return m, nil
}
