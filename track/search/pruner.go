package search

import "sort"

// Pruner decides whether a running trial should be abandoned based on its
// intermediate reports and the history of completed trials.
type Pruner interface {
	Prune(s *Study, t *Trial) bool
}

// NopPruner never prunes.
type NopPruner struct{}

// Prune implements Pruner.
func (NopPruner) Prune(*Study, *Trial) bool { return false }

// MedianPruner abandons a trial whose latest intermediate value falls on the
// wrong side of the median of the values completed trials reported at the
// same step.
type MedianPruner struct {
	// StartupTrials is the number of completed trials required before any
	// pruning happens.
	StartupTrials int
	// WarmupSteps exempts the first steps of every trial.
	WarmupSteps int
	// IntervalSteps thins the judgement to every n-th step past warmup;
	// values below 2 judge every step.
	IntervalSteps int
}

// NewMedianPruner returns a median pruner with the default startup budget.
func NewMedianPruner() *MedianPruner {
	return &MedianPruner{StartupTrials: 5}
}

// Prune implements Pruner.
func (p *MedianPruner) Prune(s *Study, t *Trial) bool {
	if t.lastStep < 0 || t.lastStep < p.WarmupSteps {
		return false
	}
	if p.IntervalSteps > 1 && (t.lastStep-p.WarmupSteps)%p.IntervalSteps != 0 {
		return false
	}
	current, ok := t.intermediateAt(t.lastStep)
	if !ok {
		return false
	}
	completed := 0
	var peers []float64
	for _, other := range s.trials {
		if other.state != TrialComplete {
			continue
		}
		completed++
		if v, ok := other.intermediateAt(t.lastStep); ok {
			peers = append(peers, v)
		}
	}
	if completed < p.StartupTrials || len(peers) == 0 {
		return false
	}
	m := median(peers)
	if s.cfg.Direction == Maximize {
		return current < m
	}
	return current > m
}

func median(xs []float64) float64 {
	sorted := append([]float64{}, xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
