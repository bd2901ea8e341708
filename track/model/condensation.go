// Package model provides the reference track-condensation network: a shared
// tanh layer over hit features with heads for edge weights, condensation
// likelihoods and latent clustering coordinates, plus a hand-written reverse
// pass. It is a small reference network; anything implementing
// track.TrainableModel can replace it.
package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/GageDeZoort/gnn-tracking/track"
	"github.com/GageDeZoort/gnn-tracking/track/nn"
)

// Config sizes a condensation net. The zero value of every optional field
// selects a default; NodeDim is required.
type Config struct {
	// NodeDim is the width of the hit feature rows.
	NodeDim int
	// EdgeDim is the width of the edge feature rows; zero means edges carry
	// no features of their own.
	EdgeDim int
	// HiddenDim sizes the shared tanh layer; values below 1 select 40.
	HiddenDim int
	// LatentDim sizes the clustering space; values below 1 select 2.
	LatentDim int
	// PredictTrackParams enables the optional track-parameter head.
	PredictTrackParams bool
	// TrackParamDim sizes the track-parameter head; values below 1 select 3.
	TrackParamDim int
	// Seed feeds weight initialization.
	Seed int64
}

// CondensationNet implements track.TrainableModel. A hidden representation
// h = tanh(x·We + be) feeds three heads: latent coordinates H = h·Wl + bl,
// condensation likelihood B = sigmoid(h·Wb + bb) and per-edge weights
// W = sigmoid([h_src, h_dst, edge_attr]·Ww + bw).
type CondensationNet struct {
	cfg Config

	encW, encB   *nn.Param
	latW, latB   *nn.Param
	betaW, betaB *nn.Param
	edgeW, edgeB *nn.Param
	tpW, tpB     *nn.Param

	// Forward activations cached for the reverse pass.
	lastX         *mat.Dense
	lastH1        *mat.Dense
	lastBeta      []float64
	lastW         []float64
	lastEdgeIndex [2][]int
	lastEdgeAttr  *mat.Dense
}

// New builds a condensation net with Glorot-initialized weights.
func New(cfg Config) (*CondensationNet, error) {
	if cfg.NodeDim < 1 {
		return nil, fmt.Errorf("model: hit feature width must be positive, got %d", cfg.NodeDim)
	}
	if cfg.EdgeDim < 0 {
		return nil, fmt.Errorf("model: edge feature width must not be negative, got %d", cfg.EdgeDim)
	}
	if cfg.HiddenDim < 1 {
		cfg.HiddenDim = 40
	}
	if cfg.LatentDim < 1 {
		cfg.LatentDim = 2
	}
	if cfg.TrackParamDim < 1 {
		cfg.TrackParamDim = 3
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	n := &CondensationNet{cfg: cfg}
	n.encW = nn.NewParamGlorot("encoder.weight", cfg.NodeDim, cfg.HiddenDim, rng)
	n.encB = nn.NewParam("encoder.bias", 1, cfg.HiddenDim)
	n.latW = nn.NewParamGlorot("latent.weight", cfg.HiddenDim, cfg.LatentDim, rng)
	n.latB = nn.NewParam("latent.bias", 1, cfg.LatentDim)
	n.betaW = nn.NewParamGlorot("beta.weight", cfg.HiddenDim, 1, rng)
	n.betaB = nn.NewParam("beta.bias", 1, 1)
	n.edgeW = nn.NewParamGlorot("edge.weight", 2*cfg.HiddenDim+cfg.EdgeDim, 1, rng)
	n.edgeB = nn.NewParam("edge.bias", 1, 1)
	if cfg.PredictTrackParams {
		n.tpW = nn.NewParamGlorot("track_params.weight", cfg.HiddenDim, cfg.TrackParamDim, rng)
		n.tpB = nn.NewParam("track_params.bias", 1, cfg.TrackParamDim)
	}
	return n, nil
}

// Apply runs the forward pass and caches the activations the next Backward
// call consumes.
func (n *CondensationNet) Apply(b *track.Batch) (*track.Outputs, error) {
	if b.X == nil {
		return nil, fmt.Errorf("model: batch carries no hit features")
	}
	rows, cols := b.X.Dims()
	if cols != n.cfg.NodeDim {
		return nil, fmt.Errorf("model: batch has %d hit features, net expects %d", cols, n.cfg.NodeDim)
	}
	nEdges := len(b.EdgeIndex[0])
	if n.cfg.EdgeDim > 0 && nEdges > 0 {
		if b.EdgeAttr == nil {
			return nil, fmt.Errorf("model: batch carries no edge features, net expects %d", n.cfg.EdgeDim)
		}
		if _, ec := b.EdgeAttr.Dims(); ec != n.cfg.EdgeDim {
			return nil, fmt.Errorf("model: batch has %d edge features, net expects %d", ec, n.cfg.EdgeDim)
		}
	}

	h1 := &mat.Dense{}
	h1.Mul(b.X, n.encW.W)
	addRowBias(h1, n.encB.W)
	tanhInPlace(h1)

	latent := &mat.Dense{}
	latent.Mul(h1, n.latW.W)
	addRowBias(latent, n.latB.W)

	beta := make([]float64, rows)
	betaCol := n.betaW.W.RawMatrix().Data
	betaBias := n.betaB.W.At(0, 0)
	for i := 0; i < rows; i++ {
		beta[i] = sigmoid(betaBias + floats.Dot(h1.RawRowView(i), betaCol))
	}

	hidden := n.cfg.HiddenDim
	edgeCol := n.edgeW.W.RawMatrix().Data
	edgeBias := n.edgeB.W.At(0, 0)
	w := make([]float64, nEdges)
	for e := 0; e < nEdges; e++ {
		src, dst := b.EdgeIndex[0][e], b.EdgeIndex[1][e]
		z := edgeBias
		z += floats.Dot(h1.RawRowView(src), edgeCol[:hidden])
		z += floats.Dot(h1.RawRowView(dst), edgeCol[hidden:2*hidden])
		if n.cfg.EdgeDim > 0 {
			z += floats.Dot(b.EdgeAttr.RawRowView(e), edgeCol[2*hidden:])
		}
		w[e] = sigmoid(z)
	}

	var tp *mat.Dense
	if n.cfg.PredictTrackParams {
		tp = &mat.Dense{}
		tp.Mul(h1, n.tpW.W)
		addRowBias(tp, n.tpB.W)
	}

	n.lastX = b.X
	n.lastH1 = h1
	n.lastBeta = beta
	n.lastW = w
	n.lastEdgeIndex = b.EdgeIndex
	n.lastEdgeAttr = b.EdgeAttr

	return &track.Outputs{
		EdgeWeight:  w,
		Latent:      latent,
		Beta:        beta,
		TrackParams: tp,
	}, nil
}

// Backward folds gradients with respect to the outputs of the most recent
// Apply into the parameter gradients. The optional track-parameter head
// receives no gradients.
func (n *CondensationNet) Backward(g *track.OutputGrads) {
	if n.lastH1 == nil {
		panic("model: Backward called before Apply")
	}
	rows, hidden := n.lastH1.Dims()
	dH1 := mat.NewDense(rows, hidden, nil)

	if g.Beta != nil {
		wcol := n.betaW.W.RawMatrix().Data
		gcol := n.betaW.G.RawMatrix().Data
		for i := 0; i < rows; i++ {
			bv := n.lastBeta[i]
			dz := g.Beta[i] * bv * (1 - bv)
			if dz == 0 {
				continue
			}
			hrow := n.lastH1.RawRowView(i)
			drow := dH1.RawRowView(i)
			for k := 0; k < hidden; k++ {
				gcol[k] += hrow[k] * dz
				drow[k] += wcol[k] * dz
			}
			n.betaB.G.Set(0, 0, n.betaB.G.At(0, 0)+dz)
		}
	}

	if g.Latent != nil {
		var wg mat.Dense
		wg.Mul(n.lastH1.T(), g.Latent)
		n.latW.G.Add(n.latW.G, &wg)
		addColSums(n.latB.G, g.Latent)
		var back mat.Dense
		back.Mul(g.Latent, n.latW.W.T())
		dH1.Add(dH1, &back)
	}

	if g.EdgeWeight != nil {
		wcol := n.edgeW.W.RawMatrix().Data
		gcol := n.edgeW.G.RawMatrix().Data
		for e := range g.EdgeWeight {
			wv := n.lastW[e]
			dz := g.EdgeWeight[e] * wv * (1 - wv)
			if dz == 0 {
				continue
			}
			src := n.lastEdgeIndex[0][e]
			dst := n.lastEdgeIndex[1][e]
			srow := n.lastH1.RawRowView(src)
			trow := n.lastH1.RawRowView(dst)
			dsrow := dH1.RawRowView(src)
			dtrow := dH1.RawRowView(dst)
			for k := 0; k < hidden; k++ {
				gcol[k] += srow[k] * dz
				gcol[hidden+k] += trow[k] * dz
				dsrow[k] += wcol[k] * dz
				dtrow[k] += wcol[hidden+k] * dz
			}
			if n.cfg.EdgeDim > 0 {
				arow := n.lastEdgeAttr.RawRowView(e)
				for k := 0; k < n.cfg.EdgeDim; k++ {
					gcol[2*hidden+k] += arow[k] * dz
				}
			}
			n.edgeB.G.Set(0, 0, n.edgeB.G.At(0, 0)+dz)
		}
	}

	// Through tanh, then into the encoder.
	for i := 0; i < rows; i++ {
		hrow := n.lastH1.RawRowView(i)
		drow := dH1.RawRowView(i)
		for k := range drow {
			drow[k] *= 1 - hrow[k]*hrow[k]
		}
	}
	var wg mat.Dense
	wg.Mul(n.lastX.T(), dH1)
	n.encW.G.Add(n.encW.G, &wg)
	addColSums(n.encB.G, dH1)
}

// Params returns the trainable parameters in a stable order.
func (n *CondensationNet) Params() []*nn.Param {
	ps := []*nn.Param{n.encW, n.encB, n.latW, n.latB, n.betaW, n.betaB, n.edgeW, n.edgeB}
	if n.cfg.PredictTrackParams {
		ps = append(ps, n.tpW, n.tpB)
	}
	return ps
}

// ZeroGrads clears every parameter gradient.
func (n *CondensationNet) ZeroGrads() {
	for _, p := range n.Params() {
		p.ZeroGrad()
	}
}

func addRowBias(m, bias *mat.Dense) {
	rows, cols := m.Dims()
	b := bias.RawMatrix().Data
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		for k := 0; k < cols; k++ {
			row[k] += b[k]
		}
	}
}

func addColSums(dst, m *mat.Dense) {
	rows, cols := m.Dims()
	d := dst.RawMatrix().Data
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		for k := 0; k < cols; k++ {
			d[k] += row[k]
		}
	}
}

func tanhInPlace(m *mat.Dense) {
	data := m.RawMatrix().Data
	for i, v := range data {
		data[i] = math.Tanh(v)
	}
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }
