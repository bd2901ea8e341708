package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
)

// ROCCurve sweeps the classification threshold from high to low and returns
// the resulting false-positive and true-positive rates, starting at (0, 0)
// and ending at (1, 1). Tied scores are grouped into a single curve point, so
// uniformly tied scores yield the diagonal. Both classes must be present;
// otherwise the rates of the missing class are NaN.
func ROCCurve(scores []float64, y []bool) (fpr, tpr []float64) {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	pos, neg := 0.0, 0.0
	for _, truth := range y {
		if truth {
			pos++
		} else {
			neg++
		}
	}

	fpr = []float64{0}
	tpr = []float64{0}
	tp, fp := 0.0, 0.0
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && scores[idx[j]] == scores[idx[i]] {
			if y[idx[j]] {
				tp++
			} else {
				fp++
			}
			j++
		}
		fpr = append(fpr, fp/neg)
		tpr = append(tpr, tp/pos)
		i = j
	}
	return fpr, tpr
}

// ROCAUC returns the area under the ROC curve, NaN when scores are empty or
// only one class is present.
func ROCAUC(scores []float64, y []bool) float64 {
	if !bothClasses(y) {
		return math.NaN()
	}
	fpr, tpr := ROCCurve(scores, y)
	return integrate.Trapezoidal(fpr, tpr)
}

// ROCAUCMaxFPR returns the partial area under the ROC curve up to the given
// false-positive-rate cap, standardized so that 0.5 remains chance level and
// 1 remains a perfect classifier (McClish correction). NaN when only one
// class is present.
func ROCAUCMaxFPR(scores []float64, y []bool, maxFPR float64) float64 {
	if maxFPR <= 0 || maxFPR > 1 {
		return math.NaN()
	}
	if !bothClasses(y) {
		return math.NaN()
	}
	if maxFPR == 1 {
		return ROCAUC(scores, y)
	}
	fpr, tpr := ROCCurve(scores, y)

	// Truncate the curve at the cap, interpolating the final point.
	stop := sort.SearchFloat64s(fpr, maxFPR)
	for stop < len(fpr) && fpr[stop] <= maxFPR {
		stop++
	}
	xs := append([]float64{}, fpr[:stop]...)
	ys := append([]float64{}, tpr[:stop]...)
	if xs[len(xs)-1] < maxFPR && stop < len(fpr) {
		x0, x1 := fpr[stop-1], fpr[stop]
		y0, y1 := tpr[stop-1], tpr[stop]
		t := y1
		if x1 > x0 {
			t = y0 + (y1-y0)*(maxFPR-x0)/(x1-x0)
		}
		xs = append(xs, maxFPR)
		ys = append(ys, t)
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	partial := integrate.Trapezoidal(xs, ys)

	minArea := 0.5 * maxFPR * maxFPR
	maxArea := maxFPR
	return 0.5 * (1 + (partial-minArea)/(maxArea-minArea))
}

func bothClasses(y []bool) bool {
	sawPos, sawNeg := false, false
	for _, truth := range y {
		if truth {
			sawPos = true
		} else {
			sawNeg = true
		}
	}
	return sawPos && sawNeg
}
