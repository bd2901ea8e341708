package search

import "math"

// EarlyStopper judges after every trial whether the whole search should end.
// Reset is invoked at the start of each scan so a stopper can be reused.
type EarlyStopper interface {
	Stop(fom float64) bool
	Reset()
}

// NoEarlyStopping never requests a stop. It is the concrete default so call
// sites stay uniform instead of branching on a missing policy.
type NoEarlyStopping struct{}

// Stop implements EarlyStopper.
func (NoEarlyStopping) Stop(float64) bool { return false }

// Reset implements EarlyStopper.
func (NoEarlyStopping) Reset() {}

// RelativeEarlyStopper stops a maximizing search once the best seen value has
// not improved by at least MinImprovement (relative) for Patience consecutive
// calls.
type RelativeEarlyStopper struct {
	// MinImprovement is the relative gain that counts as progress.
	MinImprovement float64
	// Patience is how many stale calls are tolerated before stopping.
	Patience int

	best  float64
	stale int
	seen  bool
}

// Stop implements EarlyStopper.
func (r *RelativeEarlyStopper) Stop(fom float64) bool {
	if math.IsNaN(fom) {
		return false
	}
	if !r.seen {
		r.seen = true
		r.best = fom
		r.stale = 0
		return false
	}
	gain := fom - r.best
	if r.best != 0 {
		gain /= math.Abs(r.best)
	}
	if gain > r.MinImprovement {
		r.best = fom
		r.stale = 0
		return false
	}
	r.stale++
	return r.stale >= r.Patience
}

// Reset implements EarlyStopper.
func (r *RelativeEarlyStopper) Reset() {
	r.best = 0
	r.stale = 0
	r.seen = false
}
