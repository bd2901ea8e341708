package cluster

import (
	"math"
)

// MetricValue is the result of one clustering metric: either a single scalar
// or a named decomposition. The scanner flattens decompositions into
// "metric.component" entries.
type MetricValue struct {
	scalar *float64
	sub    map[string]float64
}

// ScalarMetric wraps a single-valued metric result.
func ScalarMetric(v float64) MetricValue {
	return MetricValue{scalar: &v}
}

// CompositeMetric wraps a decomposed metric result keyed by component name.
func CompositeMetric(values map[string]float64) MetricValue {
	return MetricValue{sub: values}
}

// IsComposite reports whether the result is a named decomposition.
func (v MetricValue) IsComposite() bool { return v.sub != nil }

// Scalar returns the scalar value; only valid when IsComposite is false.
func (v MetricValue) Scalar() float64 { return *v.scalar }

// Components returns the decomposition; only valid when IsComposite is true.
func (v MetricValue) Components() map[string]float64 { return v.sub }

// Metric scores predicted cluster labels against truth particle ids for one
// graph or sector.
type Metric func(truth []int64, predicted []int) (MetricValue, error)

// VMeasure returns the V-measure of the clustering: the harmonic mean of
// homogeneity and completeness.
func VMeasure(truth []int64, predicted []int) (MetricValue, error) {
	h, c := homogeneityCompleteness(truth, predicted)
	return ScalarMetric(vFromHC(h, c)), nil
}

// HomogeneityCompletenessV returns homogeneity, completeness and V-measure
// as a composite result with components "homogeneity", "completeness" and
// "v_measure".
func HomogeneityCompletenessV(truth []int64, predicted []int) (MetricValue, error) {
	h, c := homogeneityCompleteness(truth, predicted)
	return CompositeMetric(map[string]float64{
		"homogeneity":  h,
		"completeness": c,
		"v_measure":    vFromHC(h, c),
	}), nil
}

// TrackingEfficiency scores cluster-to-particle assignment the way tracking
// performance is usually quoted, as a composite result:
//
//   - "perfect": fraction of particles reconstructed by a cluster containing
//     all of the particle's hits and nothing else;
//   - "double_majority": fraction of particles with a cluster that takes its
//     majority from the particle and holds the majority of the particle's
//     hits;
//   - "lhc": fraction of particles with a cluster at least 75% of whose hits
//     come from the particle.
//
// Noise hits (particle id 0) never count as particles but do dilute cluster
// purity; unclustered hits carry the Noise label and belong to no cluster.
func TrackingEfficiency(truth []int64, predicted []int) (MetricValue, error) {
	particleHits := make(map[int64]int)
	for _, pid := range truth {
		if pid > 0 {
			particleHits[pid]++
		}
	}
	if len(particleHits) == 0 {
		return CompositeMetric(map[string]float64{
			"perfect":         math.NaN(),
			"double_majority": math.NaN(),
			"lhc":             math.NaN(),
		}), nil
	}

	clusterSize := make(map[int]int)
	overlap := make(map[int]map[int64]int)
	for i, label := range predicted {
		if label == Noise {
			continue
		}
		clusterSize[label]++
		if truth[i] > 0 {
			if overlap[label] == nil {
				overlap[label] = make(map[int64]int)
			}
			overlap[label][truth[i]]++
		}
	}

	perfect := make(map[int64]bool)
	doubleMajority := make(map[int64]bool)
	lhc := make(map[int64]bool)
	for label, byPid := range overlap {
		size := clusterSize[label]
		for pid, hits := range byPid {
			purity := float64(hits) / float64(size)
			coverage := float64(hits) / float64(particleHits[pid])
			if purity == 1 && coverage == 1 {
				perfect[pid] = true
			}
			if purity > 0.5 && coverage > 0.5 {
				doubleMajority[pid] = true
			}
			if purity >= 0.75 {
				lhc[pid] = true
			}
		}
	}

	total := float64(len(particleHits))
	return CompositeMetric(map[string]float64{
		"perfect":         float64(len(perfect)) / total,
		"double_majority": float64(len(doubleMajority)) / total,
		"lhc":             float64(len(lhc)) / total,
	}), nil
}

// homogeneityCompleteness computes the two conditional-entropy scores of a
// labeling. A clustering is homogeneous when each cluster holds a single
// truth class and complete when each truth class lands in a single cluster;
// degenerate labelings with zero entropy score 1 by convention.
func homogeneityCompleteness(truth []int64, predicted []int) (float64, float64) {
	n := len(truth)
	if n == 0 {
		return 1, 1
	}
	truthCount := make(map[int64]int)
	predCount := make(map[int]int)
	joint := make(map[[2]int64]int)
	for i := range truth {
		truthCount[truth[i]]++
		predCount[predicted[i]]++
		joint[[2]int64{truth[i], int64(predicted[i])}]++
	}

	entropyTruth := entropyOfCounts64(truthCount, n)
	entropyPred := entropyOfCountsInt(predCount, n)

	// Conditional entropies H(truth|pred) and H(pred|truth).
	hTP, hPT := 0.0, 0.0
	for key, count := range joint {
		pxy := float64(count) / float64(n)
		pTruth := float64(truthCount[key[0]]) / float64(n)
		pPred := float64(predCount[int(key[1])]) / float64(n)
		hTP -= pxy * math.Log(pxy/pPred)
		hPT -= pxy * math.Log(pxy/pTruth)
	}

	h, c := 1.0, 1.0
	if entropyTruth > 0 {
		h = 1 - hTP/entropyTruth
	}
	if entropyPred > 0 {
		c = 1 - hPT/entropyPred
	}
	return h, c
}

func vFromHC(h, c float64) float64 {
	if h+c == 0 {
		return 0
	}
	return 2 * h * c / (h + c)
}

func entropyOfCounts64(counts map[int64]int, n int) float64 {
	e := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		e -= p * math.Log(p)
	}
	return e
}

func entropyOfCountsInt(counts map[int]int, n int) float64 {
	e := 0.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		e -= p * math.Log(p)
	}
	return e
}
