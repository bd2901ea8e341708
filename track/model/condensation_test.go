package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/GageDeZoort/gnn-tracking/track"
)

func tinyBatch() *track.Batch {
	return &track.Batch{
		X: mat.NewDense(4, 3, []float64{
			0.2, -0.1, 0.5,
			-0.3, 0.4, 0.1,
			0.7, 0.0, -0.2,
			0.1, 0.6, 0.3,
		}),
		EdgeIndex: [2][]int{{0, 1, 2}, {1, 2, 3}},
		EdgeAttr: mat.NewDense(3, 2, []float64{
			0.1, -0.2,
			0.0, 0.3,
			-0.4, 0.1,
		}),
	}
}

func tinyNet(t *testing.T) *CondensationNet {
	t.Helper()
	net, err := New(Config{NodeDim: 3, EdgeDim: 2, HiddenDim: 4, LatentDim: 2, Seed: 1})
	require.NoError(t, err)
	return net
}

func TestNew_RequiresNodeDim(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{NodeDim: 2, EdgeDim: -1})
	assert.Error(t, err)
}

func TestNew_DefaultsHiddenAndLatentDims(t *testing.T) {
	net, err := New(Config{NodeDim: 3})
	require.NoError(t, err)

	_, hidden := net.Params()[0].W.Dims()
	assert.Equal(t, 40, hidden)
	_, latent := net.Params()[2].W.Dims()
	assert.Equal(t, 2, latent)
}

func TestApply_OutputShapes(t *testing.T) {
	net := tinyNet(t)
	out, err := net.Apply(tinyBatch())
	require.NoError(t, err)

	rows, cols := out.Latent.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 2, cols)
	assert.Len(t, out.Beta, 4)
	assert.Len(t, out.EdgeWeight, 3)
	assert.Nil(t, out.TrackParams)

	for i, b := range out.Beta {
		assert.Greater(t, b, 0.0, "beta[%d]", i)
		assert.Less(t, b, 1.0, "beta[%d]", i)
	}
	for e, w := range out.EdgeWeight {
		assert.Greater(t, w, 0.0, "w[%d]", e)
		assert.Less(t, w, 1.0, "w[%d]", e)
	}
}

func TestApply_TrackParamHead_IsOptional(t *testing.T) {
	net, err := New(Config{NodeDim: 3, HiddenDim: 4, PredictTrackParams: true, TrackParamDim: 3, Seed: 1})
	require.NoError(t, err)

	b := tinyBatch()
	b.EdgeAttr = nil
	b.EdgeIndex = [2][]int{{}, {}}
	out, err := net.Apply(b)
	require.NoError(t, err)

	require.NotNil(t, out.TrackParams)
	rows, cols := out.TrackParams.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 3, cols)
	assert.Len(t, net.Params(), 10)
}

func TestApply_DimensionMismatches_Error(t *testing.T) {
	net := tinyNet(t)

	wrongFeatures := tinyBatch()
	wrongFeatures.X = mat.NewDense(4, 2, nil)
	_, err := net.Apply(wrongFeatures)
	assert.Error(t, err)

	missingAttr := tinyBatch()
	missingAttr.EdgeAttr = nil
	_, err = net.Apply(missingAttr)
	assert.Error(t, err)

	_, err = net.Apply(&track.Batch{})
	assert.Error(t, err)
}

func TestApply_SameSeed_Reproducible(t *testing.T) {
	a := tinyNet(t)
	b := tinyNet(t)

	outA, err := a.Apply(tinyBatch())
	require.NoError(t, err)
	outB, err := b.Apply(tinyBatch())
	require.NoError(t, err)

	assert.Equal(t, outA.EdgeWeight, outB.EdgeWeight)
	assert.Equal(t, outA.Beta, outB.Beta)
}

func TestBackward_BeforeApply_Panics(t *testing.T) {
	net := tinyNet(t)
	assert.Panics(t, func() { net.Backward(&track.OutputGrads{}) })
}

func TestParams_StableNames(t *testing.T) {
	net := tinyNet(t)
	want := []string{
		"encoder.weight", "encoder.bias",
		"latent.weight", "latent.bias",
		"beta.weight", "beta.bias",
		"edge.weight", "edge.bias",
	}
	params := net.Params()
	require.Len(t, params, len(want))
	for i, p := range params {
		assert.Equal(t, want[i], p.Name)
	}
}

func TestZeroGrads_ClearsEveryParam(t *testing.T) {
	net := tinyNet(t)
	out, err := net.Apply(tinyBatch())
	require.NoError(t, err)
	net.Backward(&track.OutputGrads{Beta: onesLike(out.Beta)})

	net.ZeroGrads()
	for _, p := range net.Params() {
		for _, g := range p.G.RawMatrix().Data {
			assert.Zero(t, g, "param %s", p.Name)
		}
	}
}

// surrogate evaluates the linear functional <c, outputs> used by the
// finite-difference check; its output gradients are the coefficients
// themselves.
func surrogate(t *testing.T, net *CondensationNet, b *track.Batch, cW, cB []float64, cH *mat.Dense) float64 {
	t.Helper()
	out, err := net.Apply(b)
	require.NoError(t, err)
	total := 0.0
	for e := range cW {
		total += cW[e] * out.EdgeWeight[e]
	}
	for i := range cB {
		total += cB[i] * out.Beta[i]
	}
	rows, cols := cH.Dims()
	for i := 0; i < rows; i++ {
		for k := 0; k < cols; k++ {
			total += cH.At(i, k) * out.Latent.At(i, k)
		}
	}
	return total
}

func TestBackward_MatchesFiniteDifferences(t *testing.T) {
	// GIVEN fixed output coefficients on every head
	net := tinyNet(t)
	b := tinyBatch()
	cW := []float64{0.7, -1.1, 0.4}
	cB := []float64{1.0, -0.5, 0.8, 0.3}
	cH := mat.NewDense(4, 2, []float64{
		0.2, -0.3,
		0.5, 0.1,
		-0.6, 0.4,
		0.3, -0.2,
	})

	// WHEN the analytic reverse pass runs
	_, err := net.Apply(b)
	require.NoError(t, err)
	net.ZeroGrads()
	net.Backward(&track.OutputGrads{
		EdgeWeight: cW,
		Beta:       cB,
		Latent:     mat.DenseCopyOf(cH),
	})

	// THEN every parameter gradient matches a central difference
	const h = 1e-6
	for _, p := range net.Params() {
		analytic := append([]float64{}, p.G.RawMatrix().Data...)
		weights := p.W.RawMatrix().Data
		for i := range weights {
			orig := weights[i]
			weights[i] = orig + h
			plus := surrogate(t, net, b, cW, cB, cH)
			weights[i] = orig - h
			minus := surrogate(t, net, b, cW, cB, cH)
			weights[i] = orig

			numeric := (plus - minus) / (2 * h)
			if math.Abs(numeric-analytic[i]) > 1e-5 {
				t.Errorf("%s[%d]: analytic %v vs numeric %v", p.Name, i, analytic[i], numeric)
			}
		}
	}
}

func onesLike(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		out[i] = 1
	}
	return out
}
