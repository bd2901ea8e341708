package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func trialWithReports(n int, state TrialState, value float64, reports map[int]float64) *Trial {
	t := &Trial{
		Number:   n,
		state:    state,
		value:    value,
		params:   map[string]float64{},
		reports:  reports,
		lastStep: -1,
	}
	for step := range reports {
		if step > t.lastStep {
			t.lastStep = step
		}
	}
	return t
}

// fiveCompleted builds a study whose completed trials reported
// {0.5 .. 0.9} at step 0, so the median there is 0.7.
func fiveCompleted(direction Direction) *Study {
	s := &Study{cfg: StudyConfig{Direction: direction}}
	for i, v := range []float64{0.5, 0.6, 0.7, 0.8, 0.9} {
		s.trials = append(s.trials, trialWithReports(i, TrialComplete, v, map[int]float64{0: v}))
	}
	return s
}

func TestMedianPruner_BelowMedian_Prunes(t *testing.T) {
	s := fiveCompleted(Maximize)
	p := &MedianPruner{StartupTrials: 5}
	running := trialWithReports(5, TrialRunning, 0, map[int]float64{0: 0.3})

	assert.True(t, p.Prune(s, running))
}

func TestMedianPruner_AtOrAboveMedian_Keeps(t *testing.T) {
	s := fiveCompleted(Maximize)
	p := &MedianPruner{StartupTrials: 5}

	at := trialWithReports(5, TrialRunning, 0, map[int]float64{0: 0.7})
	above := trialWithReports(6, TrialRunning, 0, map[int]float64{0: 0.9})
	assert.False(t, p.Prune(s, at), "value equal to the median must survive")
	assert.False(t, p.Prune(s, above))
}

func TestMedianPruner_Minimize_PrunesAboveMedian(t *testing.T) {
	s := fiveCompleted(Minimize)
	p := &MedianPruner{StartupTrials: 5}

	high := trialWithReports(5, TrialRunning, 0, map[int]float64{0: 0.95})
	low := trialWithReports(6, TrialRunning, 0, map[int]float64{0: 0.3})
	assert.True(t, p.Prune(s, high))
	assert.False(t, p.Prune(s, low))
}

func TestMedianPruner_BeforeStartupBudget_NeverPrunes(t *testing.T) {
	// GIVEN only four completed trials against a startup budget of five
	s := &Study{cfg: StudyConfig{Direction: Maximize}}
	for i, v := range []float64{0.6, 0.7, 0.8, 0.9} {
		s.trials = append(s.trials, trialWithReports(i, TrialComplete, v, map[int]float64{0: v}))
	}
	p := &MedianPruner{StartupTrials: 5}
	running := trialWithReports(4, TrialRunning, 0, map[int]float64{0: 0.0})

	assert.False(t, p.Prune(s, running))
}

func TestMedianPruner_WarmupSteps_ExemptEarlyReports(t *testing.T) {
	s := &Study{cfg: StudyConfig{Direction: Maximize}}
	for i, v := range []float64{0.5, 0.6, 0.7, 0.8, 0.9} {
		s.trials = append(s.trials, trialWithReports(i, TrialComplete, v,
			map[int]float64{0: v, 1: v, 2: v}))
	}
	p := &MedianPruner{StartupTrials: 5, WarmupSteps: 2}

	early := trialWithReports(5, TrialRunning, 0, map[int]float64{1: 0.0})
	late := trialWithReports(6, TrialRunning, 0, map[int]float64{1: 0.0, 2: 0.0})
	assert.False(t, p.Prune(s, early), "step 1 is inside the warmup window")
	assert.True(t, p.Prune(s, late))
}

func TestMedianPruner_IntervalSteps_ThinsJudgement(t *testing.T) {
	s := &Study{cfg: StudyConfig{Direction: Maximize}}
	for i, v := range []float64{0.5, 0.6, 0.7, 0.8, 0.9} {
		s.trials = append(s.trials, trialWithReports(i, TrialComplete, v,
			map[int]float64{0: v, 1: v, 2: v}))
	}
	p := &MedianPruner{StartupTrials: 5, IntervalSteps: 2}

	odd := trialWithReports(5, TrialRunning, 0, map[int]float64{1: 0.0})
	even := trialWithReports(6, TrialRunning, 0, map[int]float64{1: 0.0, 2: 0.0})
	assert.False(t, p.Prune(s, odd), "off-interval steps are skipped")
	assert.True(t, p.Prune(s, even))
}

func TestMedianPruner_NoPeerReportsAtStep_Keeps(t *testing.T) {
	s := fiveCompleted(Maximize)
	p := &MedianPruner{StartupTrials: 5}
	running := trialWithReports(5, TrialRunning, 0, map[int]float64{3: 0.0})

	assert.False(t, p.Prune(s, running))
}

func TestTrial_ShouldPrune_BeforeAnyReport_IsFalse(t *testing.T) {
	s := NewStudy(StudyConfig{Sampler: NewRandomSampler(1)})
	tr := s.startTrial()
	assert.False(t, tr.ShouldPrune())
}

func TestNopPruner_NeverPrunes(t *testing.T) {
	s := fiveCompleted(Maximize)
	running := trialWithReports(5, TrialRunning, 0, map[int]float64{0: -1})
	assert.False(t, NopPruner{}.Prune(s, running))
}

func TestRelativeEarlyStopper_StopsAfterStalePatience(t *testing.T) {
	stop := &RelativeEarlyStopper{MinImprovement: 0.01, Patience: 2}

	assert.False(t, stop.Stop(1.0), "first value only seeds the baseline")
	assert.False(t, stop.Stop(1.005), "a half-percent gain is stale but patience is not exhausted")
	assert.True(t, stop.Stop(1.006), "second stale value exhausts patience")
}

func TestRelativeEarlyStopper_ImprovementResetsPatience(t *testing.T) {
	stop := &RelativeEarlyStopper{MinImprovement: 0.01, Patience: 2}

	assert.False(t, stop.Stop(1.0))
	assert.False(t, stop.Stop(1.005))
	assert.False(t, stop.Stop(1.1), "a real improvement clears the stale count")
	assert.False(t, stop.Stop(1.1))
	assert.True(t, stop.Stop(1.1))
}

func TestRelativeEarlyStopper_IgnoresNaN(t *testing.T) {
	stop := &RelativeEarlyStopper{MinImprovement: 0.01, Patience: 1}
	assert.False(t, stop.Stop(1.0))
	assert.False(t, stop.Stop(math.NaN()))
	assert.True(t, stop.Stop(1.0))
}

func TestRelativeEarlyStopper_Reset_StartsOver(t *testing.T) {
	stop := &RelativeEarlyStopper{MinImprovement: 0.01, Patience: 1}
	assert.False(t, stop.Stop(1.0))
	assert.True(t, stop.Stop(1.0))

	stop.Reset()
	assert.False(t, stop.Stop(0.5), "post-reset value seeds a fresh baseline")
}

func TestNoEarlyStopping_NeverStops(t *testing.T) {
	var stop NoEarlyStopping
	for i := 0; i < 5; i++ {
		assert.False(t, stop.Stop(float64(i)))
	}
	stop.Reset()
}
