package search

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws a value for one parameter of a running trial, possibly using
// the history of completed trials in the study.
type Sampler interface {
	Sample(s *Study, name string, d Distribution) float64
}

// fromUnit maps u in [0, 1) into the distribution's range, respecting log
// spacing; integer rounding happens in clip.
func (d Distribution) fromUnit(u float64) float64 {
	if d.Log {
		lo, hi := math.Log(d.Low), math.Log(d.High)
		return math.Exp(lo + u*(hi-lo))
	}
	return d.Low + u*(d.High-d.Low)
}

// transform maps a parameter value into the space the TPE kernels live in.
func (d Distribution) transform(x float64) float64 {
	if d.Log {
		return math.Log(x)
	}
	return x
}

func (d Distribution) invTransform(z float64) float64 {
	if d.Log {
		return math.Exp(z)
	}
	return z
}

// RandomSampler draws every parameter uniformly from its range.
type RandomSampler struct {
	rng *rand.Rand
}

// NewRandomSampler builds a seeded uniform sampler.
func NewRandomSampler(seed int64) *RandomSampler {
	return &RandomSampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample implements Sampler.
func (r *RandomSampler) Sample(_ *Study, _ string, d Distribution) float64 {
	return d.clip(d.fromUnit(r.rng.Float64()))
}

// TPEConfig configures a TPESampler.
type TPEConfig struct {
	Seed int64
	// StartupTrials is the number of completed observations below which
	// sampling stays uniform.
	StartupTrials int
	// Gamma is the fraction of observations treated as "good".
	Gamma float64
	// Candidates is the number of proposals scored per suggestion.
	Candidates int
}

// DefaultTPEConfig returns the sampler settings used when none are given.
func DefaultTPEConfig() TPEConfig {
	return TPEConfig{
		StartupTrials: 10,
		Gamma:         0.25,
		Candidates:    24,
	}
}

// TPESampler implements tree-structured Parzen estimation: completed trials
// are split into good and bad halves by objective value, both are modeled
// with Normal kernel densities, and the candidate maximizing the good/bad
// density ratio is chosen.
type TPESampler struct {
	cfg TPEConfig
	rng *rand.Rand
}

// NewTPESampler builds a seeded TPE sampler, filling zero config fields from
// DefaultTPEConfig.
func NewTPESampler(cfg TPEConfig) *TPESampler {
	def := DefaultTPEConfig()
	if cfg.StartupTrials <= 0 {
		cfg.StartupTrials = def.StartupTrials
	}
	if cfg.Gamma <= 0 || cfg.Gamma >= 1 {
		cfg.Gamma = def.Gamma
	}
	if cfg.Candidates <= 0 {
		cfg.Candidates = def.Candidates
	}
	return &TPESampler{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// Sample implements Sampler.
func (s *TPESampler) Sample(st *Study, name string, d Distribution) float64 {
	type obs struct {
		z     float64
		value float64
	}
	var history []obs
	for _, t := range st.trials {
		if t.state != TrialComplete {
			continue
		}
		if x, ok := t.params[name]; ok {
			history = append(history, obs{z: d.transform(x), value: t.value})
		}
	}
	if len(history) < s.cfg.StartupTrials {
		return d.clip(d.fromUnit(s.rng.Float64()))
	}

	sort.Slice(history, func(a, b int) bool {
		if st.cfg.Direction == Maximize {
			return history[a].value > history[b].value
		}
		return history[a].value < history[b].value
	})
	nGood := int(s.cfg.Gamma * float64(len(history)))
	if nGood < 1 {
		nGood = 1
	}
	good := make([]float64, 0, nGood)
	bad := make([]float64, 0, len(history)-nGood)
	for i, o := range history {
		if i < nGood {
			good = append(good, o.z)
		} else {
			bad = append(bad, o.z)
		}
	}

	zLo, zHi := d.transform(d.Low), d.transform(d.High)
	width := zHi - zLo
	if width <= 0 {
		return d.clip(d.Low)
	}
	sigma := width / math.Max(1, math.Sqrt(float64(len(history))))

	bestZ, bestScore := 0.0, math.Inf(-1)
	for c := 0; c < s.cfg.Candidates; c++ {
		center := good[s.rng.Intn(len(good))]
		z := center + s.rng.NormFloat64()*sigma
		z = math.Min(math.Max(z, zLo), zHi)
		score := kernelDensity(good, z, sigma) / (kernelDensity(bad, z, sigma) + 1e-12)
		if score > bestScore {
			bestScore = score
			bestZ = z
		}
	}
	return d.clip(d.invTransform(bestZ))
}

// kernelDensity evaluates a Normal mixture with one kernel per center. An
// empty center set contributes a flat floor so the ratio stays finite.
func kernelDensity(centers []float64, z, sigma float64) float64 {
	if len(centers) == 0 {
		return 1e-12
	}
	total := 0.0
	for _, c := range centers {
		total += distuv.Normal{Mu: c, Sigma: sigma}.Prob(z)
	}
	return total / float64(len(centers))
}
