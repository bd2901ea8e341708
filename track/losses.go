package track

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// wClamp keeps sigmoid outputs away from 0 and 1 in log terms.
	wClamp = 1e-7
	// betaClamp keeps condensation likelihoods inside the domain of atanh.
	betaClamp = 1e-4
)

// EdgeWeightLoss is the binary cross entropy between predicted edge weights
// and the edge truth labels.
type EdgeWeightLoss struct{}

// Loss implements LossFunc.
func (EdgeWeightLoss) Loss(out *Outputs) (LossResult, error) {
	if out.EdgeWeight == nil {
		return LossResult{}, fmt.Errorf("track: edge weight loss requires the W output")
	}
	n := len(out.EdgeWeight)
	grad := make([]float64, n)
	if n == 0 {
		return Scalar(0, &OutputGrads{EdgeWeight: grad}), nil
	}
	total := 0.0
	inv := 1.0 / float64(n)
	for e, w := range out.EdgeWeight {
		w = clamp(w, wClamp, 1-wClamp)
		y := out.Y[e]
		total -= y*math.Log(w) + (1-y)*math.Log(1-w)
		grad[e] = inv * (w - y) / (w * (1 - w))
	}
	return Scalar(total*inv, &OutputGrads{EdgeWeight: grad}), nil
}

// PotentialLoss is the condensation potential: every hit is attracted to the
// condensation point of its own particle and repelled, inside the unit
// hinge, from the condensation points of all other particles. The
// condensation point of a particle is its highest-beta hit; charges grow as
// atanh(beta)^2 + QMin. Returns a composite result with components
// "attractive" and "repulsive".
type PotentialLoss struct {
	// QMin is the charge floor; non-positive values fall back to 0.01.
	QMin float64
}

// Loss implements LossFunc.
func (l PotentialLoss) Loss(out *Outputs) (LossResult, error) {
	if out.Latent == nil || out.Beta == nil {
		return LossResult{}, fmt.Errorf("track: potential loss requires the H and B outputs")
	}
	qMin := l.QMin
	if qMin <= 0 {
		qMin = 0.01
	}
	n, dim := out.Latent.Dims()
	if n == 0 {
		return Composite(map[string]LossTerm{
			"attractive": {},
			"repulsive":  {},
		}), nil
	}

	// Charges and their derivative w.r.t. beta.
	q := make([]float64, n)
	dq := make([]float64, n)
	for i, b := range out.Beta {
		b = clamp(b, 0, 1-betaClamp)
		at := math.Atanh(b)
		q[i] = at*at + qMin
		dq[i] = 2 * at / (1 - b*b)
	}

	alphas := condensationPoints(out.ParticleID, out.Beta)

	attr, rep := 0.0, 0.0
	gaX := mat.NewDense(n, dim, nil)
	gaB := make([]float64, n)
	grX := mat.NewDense(n, dim, nil)
	grB := make([]float64, n)

	diff := make([]float64, dim)
	for j := 0; j < n; j++ {
		xj := out.Latent.RawRowView(j)
		for pid, a := range alphas {
			xa := out.Latent.RawRowView(a)
			d2 := 0.0
			for k := 0; k < dim; k++ {
				diff[k] = xj[k] - xa[k]
				d2 += diff[k] * diff[k]
			}
			if out.ParticleID[j] == pid {
				attr += q[j] * q[a] * d2
				for k := 0; k < dim; k++ {
					gaX.Set(j, k, gaX.At(j, k)+q[j]*q[a]*2*diff[k])
					gaX.Set(a, k, gaX.At(a, k)-q[j]*q[a]*2*diff[k])
				}
				gaB[j] += dq[j] * q[a] * d2
				gaB[a] += q[j] * dq[a] * d2
			} else {
				d := math.Sqrt(d2)
				if d >= 1 {
					continue
				}
				hinge := 1 - d
				rep += q[j] * q[a] * hinge
				if d > 1e-12 {
					for k := 0; k < dim; k++ {
						grX.Set(j, k, grX.At(j, k)-q[j]*q[a]*diff[k]/d)
						grX.Set(a, k, grX.At(a, k)+q[j]*q[a]*diff[k]/d)
					}
				}
				grB[j] += dq[j] * q[a] * hinge
				grB[a] += q[j] * dq[a] * hinge
			}
		}
	}

	inv := 1.0 / float64(n)
	scaleDense(gaX, inv)
	scaleDense(grX, inv)
	scaleFloats(gaB, inv)
	scaleFloats(grB, inv)
	return Composite(map[string]LossTerm{
		"attractive": {Value: attr * inv, Grad: &OutputGrads{Latent: gaX, Beta: gaB}},
		"repulsive":  {Value: rep * inv, Grad: &OutputGrads{Latent: grX, Beta: grB}},
	}), nil
}

// BackgroundLoss drives the condensation likelihood of every particle's
// condensation point towards 1 and, scaled by SB, the likelihood of noise
// hits towards 0.
type BackgroundLoss struct {
	// SB scales the noise suppression term; non-positive values fall back
	// to 0.1.
	SB float64
}

// Loss implements LossFunc.
func (l BackgroundLoss) Loss(out *Outputs) (LossResult, error) {
	if out.Beta == nil {
		return LossResult{}, fmt.Errorf("track: background loss requires the B output")
	}
	sb := l.SB
	if sb <= 0 {
		sb = 0.1
	}
	n := len(out.Beta)
	grad := make([]float64, n)
	if n == 0 {
		return Scalar(0, &OutputGrads{Beta: grad}), nil
	}

	alphas := condensationPoints(out.ParticleID, out.Beta)
	total := 0.0
	if len(alphas) > 0 {
		invK := 1.0 / float64(len(alphas))
		for _, a := range alphas {
			total += (1 - out.Beta[a]) * invK
			grad[a] -= invK
		}
	}
	noise := 0
	for _, pid := range out.ParticleID {
		if pid == 0 {
			noise++
		}
	}
	if noise > 0 {
		invN := 1.0 / float64(noise)
		for i, pid := range out.ParticleID {
			if pid == 0 {
				total += sb * out.Beta[i] * invN
				grad[i] += sb * invN
			}
		}
	}
	return Scalar(total, &OutputGrads{Beta: grad}), nil
}

// condensationPoints returns, per non-noise particle id, the index of its
// highest-beta hit.
func condensationPoints(pids []int64, beta []float64) map[int64]int {
	alphas := make(map[int64]int)
	for i, pid := range pids {
		if pid <= 0 {
			continue
		}
		if a, ok := alphas[pid]; !ok || beta[i] > beta[a] {
			alphas[pid] = i
		}
	}
	return alphas
}

func clamp(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

func scaleDense(m *mat.Dense, s float64) {
	data := m.RawMatrix().Data
	for i := range data {
		data[i] *= s
	}
}

func scaleFloats(xs []float64, s float64) {
	for i := range xs {
		xs[i] *= s
	}
}
