// Package metrics implements the binary-classification statistics used to
// judge edge-weight predictions: confusion-matrix rates at a fixed threshold,
// best achievable operating points over a threshold grid, and ROC areas
// including partial areas under a false-positive-rate cap.
package metrics

import (
	"fmt"
	"math"
)

// BinaryStats holds the confusion matrix and derived rates of thresholded
// scores against boolean truth. Rates with an empty denominator are NaN so
// that NaN-skipping averages ignore them.
type BinaryStats struct {
	Threshold float64
	TP        float64
	FP        float64
	TN        float64
	FN        float64
}

// NewBinaryStats thresholds scores at thld (predicted positive when the score
// is above) and counts the confusion matrix against y.
func NewBinaryStats(scores []float64, y []bool, thld float64) BinaryStats {
	s := BinaryStats{Threshold: thld}
	for i, score := range scores {
		pred := score > thld
		switch {
		case pred && y[i]:
			s.TP++
		case pred && !y[i]:
			s.FP++
		case !pred && !y[i]:
			s.TN++
		default:
			s.FN++
		}
	}
	return s
}

// Acc is the fraction of correctly classified items.
func (s BinaryStats) Acc() float64 {
	return ratio(s.TP+s.TN, s.TP+s.TN+s.FP+s.FN)
}

// TPR is the true-positive rate (recall).
func (s BinaryStats) TPR() float64 { return ratio(s.TP, s.TP+s.FN) }

// TNR is the true-negative rate (specificity).
func (s BinaryStats) TNR() float64 { return ratio(s.TN, s.TN+s.FP) }

// FPR is the false-positive rate.
func (s BinaryStats) FPR() float64 { return ratio(s.FP, s.FP+s.TN) }

// FNR is the false-negative rate.
func (s BinaryStats) FNR() float64 { return ratio(s.FN, s.FN+s.TP) }

// BalancedAcc is the mean of TPR and TNR.
func (s BinaryStats) BalancedAcc() float64 { return (s.TPR() + s.TNR()) / 2 }

// F1 is the harmonic mean of precision and recall.
func (s BinaryStats) F1() float64 {
	return ratio(2*s.TP, 2*s.TP+s.FP+s.FN)
}

// MCC is the Matthews correlation coefficient.
func (s BinaryStats) MCC() float64 {
	den := math.Sqrt((s.TP + s.FP) * (s.TP + s.FN) * (s.TN + s.FP) * (s.TN + s.FN))
	return ratio(s.TP*s.TN-s.FP*s.FN, den)
}

// All returns the rate summary keyed the way the trainer reports it.
func (s BinaryStats) All() map[string]float64 {
	return map[string]float64{
		"acc": s.Acc(),
		"TPR": s.TPR(),
		"TNR": s.TNR(),
		"FPR": s.FPR(),
		"FNR": s.FNR(),
	}
}

// maximizedGridSize is the number of candidate thresholds swept by Maximized.
const maximizedGridSize = 101

// Maximized sweeps a uniform threshold grid over [0, 1] and reports the best
// achievable balanced accuracy, F1 score and Matthews correlation together
// with the thresholds ("_loc") at which they occur.
func Maximized(scores []float64, y []bool) map[string]float64 {
	type objective struct {
		name string
		eval func(BinaryStats) float64
	}
	objectives := []objective{
		{"max_ba", BinaryStats.BalancedAcc},
		{"max_f1", BinaryStats.F1},
		{"max_mcc", BinaryStats.MCC},
	}
	best := make([]float64, len(objectives))
	loc := make([]float64, len(objectives))
	for i := range best {
		best[i] = math.Inf(-1)
		loc[i] = math.NaN()
	}
	for g := 0; g < maximizedGridSize; g++ {
		thld := float64(g) / float64(maximizedGridSize-1)
		stats := NewBinaryStats(scores, y, thld)
		for i, obj := range objectives {
			v := obj.eval(stats)
			if !math.IsNaN(v) && v > best[i] {
				best[i] = v
				loc[i] = thld
			}
		}
	}
	out := make(map[string]float64, 2*len(objectives))
	for i, obj := range objectives {
		if math.IsInf(best[i], -1) {
			best[i] = math.NaN()
		}
		out[obj.name] = best[i]
		out[obj.name+"_loc"] = loc[i]
	}
	return out
}

// DenotePt suffixes a metric name with the momentum threshold it was
// evaluated at; a zero threshold leaves the name untouched.
func DenotePt(name string, ptMin float64) string {
	if ptMin <= 0 {
		return name
	}
	return fmt.Sprintf("%s_pt%.1f", name, ptMin)
}

// NaNMean averages the finite entries of xs, NaN when none are.
func NaNMean(xs []float64) float64 {
	sum, n := 0.0, 0
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}
