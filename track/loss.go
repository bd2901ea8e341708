package track

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// OutputGrads carries gradients of a scalar objective with respect to the
// model outputs that require them. Fields are nil when the objective does not
// touch the corresponding output.
type OutputGrads struct {
	EdgeWeight []float64
	Latent     *mat.Dense
	Beta       []float64
}

// addScaled accumulates w*t into g, allocating destination storage on first
// use. Matrices must share their dense row-major layout, which holds for all
// grads produced in this package.
func (g *OutputGrads) addScaled(t *OutputGrads, w float64) {
	if t == nil {
		return
	}
	if t.EdgeWeight != nil {
		if g.EdgeWeight == nil {
			g.EdgeWeight = make([]float64, len(t.EdgeWeight))
		}
		floats.AddScaled(g.EdgeWeight, w, t.EdgeWeight)
	}
	if t.Latent != nil {
		if g.Latent == nil {
			r, c := t.Latent.Dims()
			g.Latent = mat.NewDense(r, c, nil)
		}
		floats.AddScaled(g.Latent.RawMatrix().Data, w, t.Latent.RawMatrix().Data)
	}
	if t.Beta != nil {
		if g.Beta == nil {
			g.Beta = make([]float64, len(t.Beta))
		}
		floats.AddScaled(g.Beta, w, t.Beta)
	}
}

// LossTerm is one scalar objective value with optional gradients. Grad may be
// nil in evaluation-only use.
type LossTerm struct {
	Value float64
	Grad  *OutputGrads
}

// LossResult is the outcome of one loss function: either a single scalar term
// or a named decomposition whose components are weighted independently by the
// aggregator.
type LossResult struct {
	scalar *LossTerm
	sub    map[string]LossTerm
}

// Scalar wraps a single-valued loss result.
func Scalar(value float64, grad *OutputGrads) LossResult {
	return LossResult{scalar: &LossTerm{Value: value, Grad: grad}}
}

// Composite wraps a decomposed loss result keyed by component name.
func Composite(terms map[string]LossTerm) LossResult {
	return LossResult{sub: terms}
}

// IsComposite reports whether the result is a named decomposition.
func (r LossResult) IsComposite() bool {
	return r.sub != nil
}

// LossFunc computes a training objective from evaluated model outputs.
type LossFunc interface {
	Loss(out *Outputs) (LossResult, error)
}

// LossFuncFn adapts a plain function to the LossFunc interface.
type LossFuncFn func(out *Outputs) (LossResult, error)

// Loss implements LossFunc.
func (f LossFuncFn) Loss(out *Outputs) (LossResult, error) {
	return f(out)
}

// flatLossName builds the flattened key of one component of a decomposed
// loss: component "attractive" of loss "potential" becomes
// "attractive_potential". Loss weights use the same keys.
func flatLossName(sub, loss string) string {
	return sub + "_" + loss
}

// LossSet aggregates a set of named loss functions into one weighted total.
type LossSet struct {
	Funcs   map[string]LossFunc
	Weights WeightStrategy
}

// Aggregate invokes every loss function on out, flattens decomposed results,
// and combines values and gradients with the weights supplied by the
// strategy. It returns the weighted total, the raw value per flattened name,
// and the combined gradients (nil when no term carried any).
//
// A NaN total returns ErrDivergence: training must abort rather than continue
// or checkpoint a diverged state.
func (s *LossSet) Aggregate(out *Outputs) (float64, map[string]float64, *OutputGrads, error) {
	names := make([]string, 0, len(s.Funcs))
	for name := range s.Funcs {
		names = append(names, name)
	}
	sort.Strings(names)

	terms := make(map[string]LossTerm)
	perName := make(map[string]float64)
	for _, name := range names {
		res, err := s.Funcs[name].Loss(out)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("track: loss %q: %w", name, err)
		}
		if res.IsComposite() {
			for sub, term := range res.sub {
				key := flatLossName(sub, name)
				terms[key] = term
				perName[key] = term.Value
			}
		} else {
			terms[name] = *res.scalar
			perName[name] = res.scalar.Value
		}
	}

	if r, ok := s.Weights.(realizer); ok {
		r.realize(perName)
	}

	total := 0.0
	grads := &OutputGrads{}
	carried := false
	flat := make([]string, 0, len(terms))
	for key := range terms {
		flat = append(flat, key)
	}
	sort.Strings(flat)
	for _, key := range flat {
		term := terms[key]
		w := s.Weights.WeightOf(key)
		total += w * term.Value
		if term.Grad != nil {
			grads.addScaled(term.Grad, w)
			carried = true
		}
	}
	if math.IsNaN(total) {
		return 0, nil, nil, fmt.Errorf("track: aggregating %d loss terms: %w", len(terms), ErrDivergence)
	}
	if !carried {
		grads = nil
	}
	return total, perName, grads, nil
}
