package track

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TruthCutConfig selects which hits take part in training based on ground
// truth. Cuts are combined with AND; the zero value disables all of them.
type TruthCutConfig struct {
	// PtThreshold drops hits of particles with pt at or below the threshold.
	// Noise hits are exempt: they carry pt 0 and would otherwise always fail
	// the cut, so the noise class is left for ExcludeNoise to act on.
	PtThreshold float64
	// ExcludeNoise drops hits with particle id 0.
	ExcludeNoise bool
	// RequireReconstructable keeps only hits of reconstructable particles.
	RequireReconstructable bool
}

// Trivial reports whether every cut is disabled. Trivial configs are a
// fast-path no-op: the evaluator skips masked-batch construction entirely.
func (c TruthCutConfig) Trivial() bool {
	return !(c.PtThreshold > 0) && !c.ExcludeNoise && !c.RequireReconstructable
}

// MaskPair holds the per-hit and per-edge inclusion masks of one batch.
// Edge[e] is true exactly when both endpoint hits of e survive.
type MaskPair struct {
	Node []bool
	Edge []bool
}

// Masks computes the inclusion masks for b under the configured cuts.
func (c TruthCutConfig) Masks(b *Batch) MaskPair {
	node := make([]bool, b.NumNodes())
	for i := range node {
		node[i] = true
	}
	if c.PtThreshold > 0 {
		for i := range node {
			if b.ParticleID[i] > 0 {
				node[i] = node[i] && b.Pt[i] > c.PtThreshold
			}
		}
	}
	if c.ExcludeNoise {
		for i := range node {
			node[i] = node[i] && b.ParticleID[i] > 0
		}
	}
	if c.RequireReconstructable {
		for i := range node {
			node[i] = node[i] && b.Reconstructable[i]
		}
	}
	edge := make([]bool, b.NumEdges())
	for e := range edge {
		edge[e] = node[b.EdgeIndex[0][e]] && node[b.EdgeIndex[1][e]]
	}
	return MaskPair{Node: node, Edge: edge}
}

// ApplyMask builds a new batch containing only the hits and edges selected by
// m. Surviving hits are renumbered contiguously from 0 preserving their
// original relative order, and edge endpoints are rewritten through that
// renumbering. Panics if a surviving edge references a dropped hit; that
// cannot happen for masks produced by Masks.
func ApplyMask(b *Batch, m MaskPair) *Batch {
	remap := maskRemap(m.Node)

	kept := 0
	for _, keep := range m.Node {
		if keep {
			kept++
		}
	}

	out := &Batch{
		X:               filterRows(b.X, m.Node, kept),
		Pt:              filterFloats(b.Pt, m.Node),
		ParticleID:      filterInt64s(b.ParticleID, m.Node),
		Reconstructable: filterBools(b.Reconstructable, m.Node),
		Sector:          filterInts(b.Sector, m.Node),
		EdgeAttr:        filterRows(b.EdgeAttr, m.Edge, countTrue(m.Edge)),
		Y:               filterFloats(b.Y, m.Edge),
	}
	for e, keep := range m.Edge {
		if !keep {
			continue
		}
		src, dst := b.EdgeIndex[0][e], b.EdgeIndex[1][e]
		if remap[src] < 0 || remap[dst] < 0 {
			panic(fmt.Sprintf("track: edge %d survived its mask but endpoint %d/%d did not", e, src, dst))
		}
		out.EdgeIndex[0] = append(out.EdgeIndex[0], remap[src])
		out.EdgeIndex[1] = append(out.EdgeIndex[1], remap[dst])
	}
	return out
}

// maskRemap maps original hit indices to contiguous post-mask indices,
// order-preserving. Dropped hits map to -1.
func maskRemap(node []bool) []int {
	remap := make([]int, len(node))
	next := 0
	for i, keep := range node {
		if keep {
			remap[i] = next
			next++
		} else {
			remap[i] = -1
		}
	}
	return remap
}

func countTrue(mask []bool) int {
	n := 0
	for _, b := range mask {
		if b {
			n++
		}
	}
	return n
}

func filterRows(m *mat.Dense, keep []bool, kept int) *mat.Dense {
	if m == nil || kept == 0 {
		return nil
	}
	_, cols := m.Dims()
	out := mat.NewDense(kept, cols, nil)
	j := 0
	for i, k := range keep {
		if !k {
			continue
		}
		out.SetRow(j, m.RawRowView(i))
		j++
	}
	return out
}

func filterFloats(xs []float64, keep []bool) []float64 {
	out := make([]float64, 0, len(xs))
	for i, k := range keep {
		if k {
			out = append(out, xs[i])
		}
	}
	return out
}

func filterInt64s(xs []int64, keep []bool) []int64 {
	out := make([]int64, 0, len(xs))
	for i, k := range keep {
		if k {
			out = append(out, xs[i])
		}
	}
	return out
}

func filterInts(xs []int, keep []bool) []int {
	out := make([]int, 0, len(xs))
	for i, k := range keep {
		if k {
			out = append(out, xs[i])
		}
	}
	return out
}

func filterBools(xs []bool, keep []bool) []bool {
	out := make([]bool, 0, len(xs))
	for i, k := range keep {
		if k {
			out = append(out, xs[i])
		}
	}
	return out
}
