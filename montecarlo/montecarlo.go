// Package montecarlo wraps the membrane rewrite primitives in a Metropolis
// acceptance loop: it proposes node displacements and edge flips, guards
// bond lengths, and reverses updates the acceptance rule turns down.
package montecarlo

import (
	"errors"
	"math"
	"math/rand"

	"github.com/soypat/geometry/md3"
	"github.com/soypat/membrane"
)

// Energy evaluates the energy attributed to one node of the mesh. The
// driver treats it as pure: it may read any geometry but must not mutate
// the mesh. Model parameters are closed over by the caller.
type Energy func(m *membrane.Mesh, id int) float64

// Driver runs Metropolis updates against a mesh it references but does not
// own. It is not safe for concurrent use; a Monte-Carlo sweep is an ordered
// sequence of proposals.
type Driver struct {
	mesh     *membrane.Mesh
	energy   Energy
	rng      *rand.Rand
	minBond2 float64
	maxBond2 float64
	kT       float64

	moveAttempts       uint64
	moveReversals      uint64
	moveBondRejections uint64
	flipAttempts       uint64
	flipReversals      uint64
	flipBondRejections uint64
}

// NewDriver validates the configuration and returns a driver. The random
// source and energy function are referenced, never owned; seed the source
// for reproducible runs.
func NewDriver(m *membrane.Mesh, energy Energy, rng *rand.Rand, minBond, maxBond, kT float64) (*Driver, error) {
	if m == nil {
		return nil, errors.New("nil mesh")
	}
	if energy == nil {
		return nil, errors.New("nil energy function")
	}
	if rng == nil {
		return nil, errors.New("nil random source")
	}
	if minBond <= 0 || maxBond <= minBond {
		return nil, errors.New("bond lengths must satisfy 0 < min < max")
	}
	if kT < 0 {
		return nil, errors.New("negative thermal scale")
	}
	return &Driver{
		mesh:     m,
		energy:   energy,
		rng:      rng,
		minBond2: minBond * minBond,
		maxBond2: maxBond * maxBond,
		kT:       kT,
	}, nil
}

// Temperature returns the current thermal scale kT.
func (d *Driver) Temperature() float64 { return d.kT }

// SetTemperature changes the thermal scale. Zero selects greedy mode: any
// uphill update is reversed.
func (d *Driver) SetTemperature(kT float64) {
	if kT < 0 {
		panic("montecarlo: negative thermal scale")
	}
	d.kT = kT
}

// ProposeMove attempts to displace node id by delta under the Metropolis
// rule and reports whether the move was kept. Moves that would carry a bond
// from inside the admissible length window to outside, or a proximity pair
// below the minimum separation, are rejected before touching the mesh.
func (d *Driver) ProposeMove(id int, delta md3.Vec) bool {
	d.moveAttempts++
	if !d.moveAdmissible(id, delta) {
		d.moveBondRejections++
		return false
	}
	eOld := d.energy(d.mesh, id)
	d.mesh.Displace(id, delta)
	eNew := d.energy(d.mesh, id)
	if d.reverse(eNew - eOld) {
		d.mesh.Displace(id, md3.Scale(-1, delta))
		d.moveReversals++
		return false
	}
	return true
}

// ProposeFlip attempts to flip the edge between node id and a ring
// neighbor picked uniformly at random, and reports whether the flip was
// kept.
func (d *Driver) ProposeFlip(id int) bool {
	return d.ProposeFlipNeighbor(id, d.mesh.Neighbor(id, d.rng.Intn(d.mesh.Degree(id))))
}

// ProposeFlipNeighbor attempts to flip the edge between the bonded nodes
// id and nbr under the Metropolis rule and reports whether the flip was
// kept. nbr is a node id, never a ring index.
func (d *Driver) ProposeFlipNeighbor(id, nbr int) bool {
	d.flipAttempts++
	eOld := d.energy(d.mesh, id)
	res := d.mesh.FlipEdge(id, nbr, d.minBond2, d.maxBond2)
	if !res.Applied {
		d.flipBondRejections++
		return false
	}
	eNew := d.energy(d.mesh, id)
	if d.reverse(eNew - eOld) {
		d.mesh.UnflipEdge(id, nbr, res)
		d.flipReversals++
		return false
	}
	return true
}

// Sweep makes one pass over the mesh in id order: an attempted displacement
// with components uniform in ±moveScale for every bulk node, then an
// attempted random-neighbor flip for every bulk node. The observable result
// depends on the order of proposals.
func (d *Driver) Sweep(moveScale float64) {
	n := d.mesh.Len()
	for id := 0; id < n; id++ {
		if d.mesh.IsBoundary(id) {
			continue
		}
		delta := md3.Vec{
			X: (2*d.rng.Float64() - 1) * moveScale,
			Y: (2*d.rng.Float64() - 1) * moveScale,
			Z: (2*d.rng.Float64() - 1) * moveScale,
		}
		d.ProposeMove(id, delta)
	}
	for id := 0; id < n; id++ {
		if d.mesh.IsBoundary(id) {
			continue
		}
		d.ProposeFlip(id)
	}
}

// reverse applies the Metropolis rule to an energy difference and reports
// whether the update must be undone.
func (d *Driver) reverse(dE float64) bool {
	if dE <= 0 {
		return false
	}
	if d.kT == 0 {
		return true
	}
	return d.rng.Float64() > math.Exp(-dE/d.kT)
}

// moveAdmissible checks the bond-length guards for displacing id by delta.
func (d *Driver) moveAdmissible(id int, delta md3.Vec) bool {
	m := d.mesh
	newPos := md3.Add(m.Pos(id), delta)
	for k, deg := 0, m.Degree(id); k < deg; k++ {
		old2 := md3.Norm2(m.Edge(id, k))
		new2 := md3.Norm2(md3.Sub(m.Pos(m.Neighbor(id, k)), newPos))
		inside := old2 >= d.minBond2 && old2 <= d.maxBond2
		if inside && (new2 < d.minBond2 || new2 > d.maxBond2) {
			return false
		}
	}
	ok := true
	m.ForEachProximity(id, func(j int) bool {
		old2 := md3.Norm2(md3.Sub(m.Pos(j), m.Pos(id)))
		new2 := md3.Norm2(md3.Sub(m.Pos(j), newPos))
		if new2 < d.minBond2 && old2 >= d.minBond2 {
			ok = false
		}
		return ok
	})
	return ok
}

// MoveAttempts returns the number of displacement proposals made.
func (d *Driver) MoveAttempts() uint64 { return d.moveAttempts }

// MoveReversals returns the number of displacements undone by the
// acceptance rule.
func (d *Driver) MoveReversals() uint64 { return d.moveReversals }

// BondRejectedMoves returns the number of displacement proposals rejected
// by the bond-length guards before touching the mesh.
func (d *Driver) BondRejectedMoves() uint64 { return d.moveBondRejections }

// FlipAttempts returns the number of flip proposals made.
func (d *Driver) FlipAttempts() uint64 { return d.flipAttempts }

// FlipReversals returns the number of applied flips undone by the
// acceptance rule.
func (d *Driver) FlipReversals() uint64 { return d.flipReversals }

// BondRejectedFlips returns the number of flip proposals the mesh refused
// to apply, for topology or bond-length reasons.
func (d *Driver) BondRejectedFlips() uint64 { return d.flipBondRejections }
