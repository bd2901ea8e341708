package track

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Batch is one graph of detector hits: per-hit features and truth attributes
// plus candidate edges between hits. All per-hit slices are aligned with the
// rows of X, all per-edge slices with the columns of EdgeIndex.
type Batch struct {
	// X holds one feature row per hit.
	X *mat.Dense
	// Pt is the transverse momentum of the particle each hit belongs to.
	// Noise hits carry pt 0.
	Pt []float64
	// ParticleID identifies the particle that produced each hit; 0 marks noise.
	ParticleID []int64
	// Reconstructable flags hits whose particle can be reconstructed at all
	// (left enough hits in the detector).
	Reconstructable []bool
	// Sector is the angular detector partition index of each hit; -1 marks
	// hits not uniquely assigned to a sector.
	Sector []int
	// EdgeIndex lists directed candidate edges: EdgeIndex[0][e] is the source
	// hit index of edge e, EdgeIndex[1][e] the target.
	EdgeIndex [2][]int
	// EdgeAttr holds one feature row per edge.
	EdgeAttr *mat.Dense
	// Y is the binary truth label per edge: 1 if both endpoints belong to the
	// same particle.
	Y []float64
}

// NumNodes returns the number of hits in the batch.
func (b *Batch) NumNodes() int {
	if b.X == nil {
		return len(b.Pt)
	}
	r, _ := b.X.Dims()
	return r
}

// NumEdges returns the number of candidate edges in the batch.
func (b *Batch) NumEdges() int {
	return len(b.EdgeIndex[0])
}

// Validate checks the structural invariants of the batch: aligned per-hit and
// per-edge slice lengths and edge endpoints that reference valid hit indices.
func (b *Batch) Validate() error {
	n := b.NumNodes()
	if len(b.Pt) != n {
		return fmt.Errorf("track: pt length %d does not match %d hits", len(b.Pt), n)
	}
	if len(b.ParticleID) != n {
		return fmt.Errorf("track: particle_id length %d does not match %d hits", len(b.ParticleID), n)
	}
	if len(b.Reconstructable) != n {
		return fmt.Errorf("track: reconstructable length %d does not match %d hits", len(b.Reconstructable), n)
	}
	if len(b.Sector) != n {
		return fmt.Errorf("track: sector length %d does not match %d hits", len(b.Sector), n)
	}
	if len(b.EdgeIndex[0]) != len(b.EdgeIndex[1]) {
		return fmt.Errorf("track: edge_index halves disagree: %d source vs %d target indices",
			len(b.EdgeIndex[0]), len(b.EdgeIndex[1]))
	}
	e := b.NumEdges()
	if len(b.Y) != e {
		return fmt.Errorf("track: y length %d does not match %d edges", len(b.Y), e)
	}
	if b.EdgeAttr != nil {
		rows, _ := b.EdgeAttr.Dims()
		if rows != e {
			return fmt.Errorf("track: edge_attr has %d rows for %d edges", rows, e)
		}
	}
	for side := 0; side < 2; side++ {
		for i, idx := range b.EdgeIndex[side] {
			if idx < 0 || idx >= n {
				return fmt.Errorf("track: edge %d references hit %d outside [0, %d)", i, idx, n)
			}
		}
	}
	return nil
}
