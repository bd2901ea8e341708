// Package search implements the budget-aware Bayesian-optimization engine
// behind clustering hyperparameter scans: a study runs trials whose
// parameters come from a pluggable sampler, intermediate results feed a
// pruner, and an early-stopping policy can end the remaining budget.
package search

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// Direction states whether the study maximizes or minimizes the objective.
type Direction int

const (
	// Maximize prefers larger objective values.
	Maximize Direction = iota
	// Minimize prefers smaller objective values.
	Minimize
)

// Objective evaluates one trial and returns its score. Returning ErrPruned
// (possibly wrapped) abandons the trial; any other error aborts the study.
type Objective func(t *Trial) (float64, error)

// Suggester draws a named parameter set from a trial, usually through the
// trial's Suggest methods.
type Suggester func(t *Trial) (map[string]float64, error)

// StudyConfig configures a study.
type StudyConfig struct {
	// Direction of optimization; the zero value maximizes.
	Direction Direction
	// Sampler draws parameters; nil selects a TPE sampler seeded with Seed.
	Sampler Sampler
	// Pruner judges intermediate reports; nil selects NewMedianPruner.
	Pruner Pruner
	// Seed feeds the default sampler.
	Seed int64
}

// Study owns the trial history of one hyperparameter search. A study is
// reused across Optimize calls: later calls continue the same search with
// the accumulated history.
type Study struct {
	cfg     StudyConfig
	sampler Sampler
	pruner  Pruner
	trials  []*Trial
	queue   []map[string]float64
	stopped bool
}

// NewStudy builds a study from cfg, filling in the default sampler and
// pruner where unset.
func NewStudy(cfg StudyConfig) *Study {
	s := &Study{cfg: cfg, sampler: cfg.Sampler, pruner: cfg.Pruner}
	if s.sampler == nil {
		s.sampler = NewTPESampler(TPEConfig{Seed: cfg.Seed})
	}
	if s.pruner == nil {
		s.pruner = NewMedianPruner()
	}
	return s
}

// EnqueueParams queues a fixed parameter set; the next started trial draws
// those values instead of sampling, clipped into the suggested ranges.
func (s *Study) EnqueueParams(params map[string]float64) {
	fixed := make(map[string]float64, len(params))
	for k, v := range params {
		fixed[k] = v
	}
	s.queue = append(s.queue, fixed)
}

// Stop ends the search after the currently running trial; the remaining
// budget of the active Optimize call is not attempted. A later Optimize call
// resumes the study.
func (s *Study) Stop() { s.stopped = true }

// Optimize runs up to budget trials of the objective.
func (s *Study) Optimize(objective Objective, budget int) error {
	s.stopped = false
	for i := 0; i < budget; i++ {
		if s.stopped {
			logrus.Debugf("search: study stopped with %d of %d trials unused", budget-i, budget)
			break
		}
		t := s.startTrial()
		value, err := objective(t)
		switch {
		case err == nil:
			t.state = TrialComplete
			t.value = value
			logrus.Debugf("search: trial %d complete, value %.5f", t.Number, value)
		case errors.Is(err, ErrPruned):
			t.state = TrialPruned
			logrus.Debugf("search: trial %d pruned at step %d", t.Number, t.lastStep)
		default:
			return fmt.Errorf("search: trial %d: %w", t.Number, err)
		}
	}
	return nil
}

func (s *Study) startTrial() *Trial {
	t := &Trial{
		Number:   len(s.trials),
		study:    s,
		state:    TrialRunning,
		params:   make(map[string]float64),
		dists:    make(map[string]Distribution),
		reports:  make(map[int]float64),
		lastStep: -1,
	}
	if len(s.queue) > 0 {
		t.fixed = s.queue[0]
		s.queue = s.queue[1:]
	}
	s.trials = append(s.trials, t)
	return t
}

// Trials returns all started trials in order.
func (s *Study) Trials() []*Trial { return s.trials }

// BestTrial returns the completed trial with the best value, or false when
// no trial has completed.
func (s *Study) BestTrial() (*Trial, bool) {
	var best *Trial
	for _, t := range s.trials {
		if t.state != TrialComplete || math.IsNaN(t.value) {
			continue
		}
		if best == nil {
			best = t
			continue
		}
		if s.cfg.Direction == Maximize && t.value > best.value {
			best = t
		}
		if s.cfg.Direction == Minimize && t.value < best.value {
			best = t
		}
	}
	return best, best != nil
}

// BestParams returns the parameters of the best completed trial, nil when no
// trial has completed.
func (s *Study) BestParams() map[string]float64 {
	t, ok := s.BestTrial()
	if !ok {
		return nil
	}
	return t.Params()
}

// BestValue returns the value of the best completed trial, NaN when no trial
// has completed.
func (s *Study) BestValue() float64 {
	t, ok := s.BestTrial()
	if !ok {
		return math.NaN()
	}
	return t.value
}
