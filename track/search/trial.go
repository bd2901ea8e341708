package search

import (
	"fmt"
	"math"
)

// TrialState tracks the lifecycle of one trial.
type TrialState int

const (
	// TrialRunning marks a trial whose objective is still executing.
	TrialRunning TrialState = iota
	// TrialComplete marks a trial that returned a final value.
	TrialComplete
	// TrialPruned marks a trial abandoned by the pruner.
	TrialPruned
)

// Trial is one parameter-set evaluation within a study. The objective draws
// parameters through the Suggest methods, optionally reports intermediate
// values for pruning, and returns a final score.
type Trial struct {
	// Number is the zero-based position of the trial within its study.
	Number int

	study *Study
	state TrialState
	// fixed holds enqueued parameters that take precedence over sampling.
	fixed   map[string]float64
	params  map[string]float64
	dists   map[string]Distribution
	reports map[int]float64
	// lastStep is the most recently reported step, -1 before any report.
	lastStep int
	value    float64
}

// SuggestFloat draws a parameter from the uniform range [low, high].
func (t *Trial) SuggestFloat(name string, low, high float64) float64 {
	return t.suggest(name, Distribution{Low: low, High: high})
}

// SuggestLogFloat draws a parameter from [low, high] uniformly in log space.
func (t *Trial) SuggestLogFloat(name string, low, high float64) float64 {
	return t.suggest(name, Distribution{Low: low, High: high, Log: true})
}

// SuggestInt draws an integer parameter from [low, high] inclusive.
func (t *Trial) SuggestInt(name string, low, high int) int {
	v := t.suggest(name, Distribution{Low: float64(low), High: float64(high), Int: true})
	return int(v)
}

func (t *Trial) suggest(name string, d Distribution) float64 {
	if v, ok := t.params[name]; ok {
		return v
	}
	if err := d.validate(name); err != nil {
		panic(err)
	}
	var v float64
	if fixed, ok := t.fixed[name]; ok {
		v = d.clip(fixed)
	} else {
		v = t.study.sampler.Sample(t.study, name, d)
	}
	t.params[name] = v
	t.dists[name] = d
	return v
}

// Report records an intermediate objective value at the given step, making it
// visible to the pruner and to later trials.
func (t *Trial) Report(step int, value float64) {
	t.reports[step] = value
	if step > t.lastStep {
		t.lastStep = step
	}
}

// ShouldPrune asks the study's pruner whether the trial should be abandoned.
// Trials that have not reported yet are never pruned.
func (t *Trial) ShouldPrune() bool {
	if t.lastStep < 0 {
		return false
	}
	return t.study.pruner.Prune(t.study, t)
}

// Params returns a copy of the parameters drawn so far.
func (t *Trial) Params() map[string]float64 {
	out := make(map[string]float64, len(t.params))
	for k, v := range t.params {
		out[k] = v
	}
	return out
}

// State returns the trial's lifecycle state.
func (t *Trial) State() TrialState { return t.state }

// Value returns the final objective value of a completed trial, NaN
// otherwise.
func (t *Trial) Value() float64 {
	if t.state != TrialComplete {
		return math.NaN()
	}
	return t.value
}

// intermediateAt returns the value reported at exactly the given step.
func (t *Trial) intermediateAt(step int) (float64, bool) {
	v, ok := t.reports[step]
	return v, ok
}

// Distribution describes the range one parameter is drawn from.
type Distribution struct {
	Low  float64
	High float64
	// Log samples uniformly in log space; Low must then be positive.
	Log bool
	// Int rounds samples to whole numbers.
	Int bool
}

func (d Distribution) validate(name string) error {
	if d.High < d.Low {
		return fmt.Errorf("search: parameter %q has high %v below low %v", name, d.High, d.Low)
	}
	if d.Log && d.Low <= 0 {
		return fmt.Errorf("search: log-sampled parameter %q needs a positive low bound, got %v", name, d.Low)
	}
	return nil
}

func (d Distribution) clip(v float64) float64 {
	v = math.Min(math.Max(v, d.Low), d.High)
	if d.Int {
		v = math.Round(v)
	}
	return v
}
