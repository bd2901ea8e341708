// Package nn holds the small neural-network substrate the trainer drives:
// named parameter tensors, gradient-descent optimizers with serializable
// state, and per-epoch learning-rate schedules.
package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Param is one named trainable tensor together with its gradient
// accumulator. W and G always share dimensions.
type Param struct {
	Name string
	W    *mat.Dense
	G    *mat.Dense
}

// NewParam allocates a zero-valued parameter of the given shape.
func NewParam(name string, rows, cols int) *Param {
	return &Param{
		Name: name,
		W:    mat.NewDense(rows, cols, nil),
		G:    mat.NewDense(rows, cols, nil),
	}
}

// NewParamGlorot allocates a parameter initialized with Glorot-uniform
// weights drawn from rng, the usual starting point for tanh layers.
func NewParamGlorot(name string, rows, cols int, rng *rand.Rand) *Param {
	p := NewParam(name, rows, cols)
	limit := math.Sqrt(6.0 / float64(rows+cols))
	data := p.W.RawMatrix().Data
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * limit
	}
	return p
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() {
	data := p.G.RawMatrix().Data
	for i := range data {
		data[i] = 0
	}
}

// Size returns the number of scalar entries in the parameter.
func (p *Param) Size() int {
	r, c := p.W.Dims()
	return r * c
}
