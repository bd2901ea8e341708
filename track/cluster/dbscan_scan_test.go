package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func blobScanInputs() (graphs []*mat.Dense, truth [][]int64, pts [][]float64, recos [][]bool) {
	g1, t1 := blobGraph()
	g2, t2 := blobGraph()
	graphs = []*mat.Dense{g1, g2}
	truth = [][]int64{t1, t2}
	for _, tr := range truth {
		pt := make([]float64, len(tr))
		reco := make([]bool, len(tr))
		for i := range tr {
			pt[i] = 1.0
			reco[i] = true
		}
		pts = append(pts, pt)
		recos = append(recos, reco)
	}
	return graphs, truth, pts, recos
}

func TestNewDBSCANScan_Defaults_ProduceUsableScan(t *testing.T) {
	graphs, truth, pts, recos := blobScanInputs()
	fn := NewDBSCANScan(DBSCANScanConfig{Trials: 10, Seed: 1})

	res, err := fn(graphs, truth, nil, pts, recos, 0, nil)
	require.NoError(t, err)

	want := []string{"trk.double_majority", "trk.lhc", "trk.perfect", "vm"}
	assert.Len(t, res.Metrics, len(want))
	for _, key := range want {
		assert.Contains(t, res.Metrics, key)
	}
	assert.NotNil(t, res.BestParams())
	assert.Contains(t, res.BestParams(), "eps")
	assert.Contains(t, res.BestParams(), "min_samples")
}

func TestNewDBSCANScan_NarrowRanges_ReachOptimum(t *testing.T) {
	// GIVEN ranges where every draw clusters the blobs perfectly
	graphs, truth, pts, recos := blobScanInputs()
	fn := NewDBSCANScan(DBSCANScanConfig{
		Trials:          5,
		EpsRange:        [2]float64{0.3, 0.6},
		MinSamplesRange: [2]int{2, 3},
		Seed:            7,
	})

	res, err := fn(graphs, truth, nil, pts, recos, 0, nil)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.BestValue(), 1e-12)
	assert.InDelta(t, 1.0, res.Metrics["vm"], 1e-12)
	assert.InDelta(t, 1.0, res.Metrics["trk.double_majority"], 1e-12)
}

func TestNewDBSCANScan_WarmStart_CarriesParams(t *testing.T) {
	graphs, truth, pts, recos := blobScanInputs()
	fn := NewDBSCANScan(DBSCANScanConfig{Trials: 1, Seed: 2})

	res, err := fn(graphs, truth, nil, pts, recos, 0,
		map[string]float64{"eps": 0.4, "min_samples": 2})
	require.NoError(t, err)

	best := res.BestParams()
	assert.Equal(t, 0.4, best["eps"])
	assert.Equal(t, 2.0, best["min_samples"])
}

func TestNewDBSCANScan_FreshScannerPerCall(t *testing.T) {
	// Each invocation opens a new study; histories must not leak between
	// epochs.
	graphs, truth, pts, recos := blobScanInputs()
	fn := NewDBSCANScan(DBSCANScanConfig{Trials: 3, Seed: 4})

	res0, err := fn(graphs, truth, nil, pts, recos, 0, nil)
	require.NoError(t, err)
	res1, err := fn(graphs, truth, nil, pts, recos, 1, nil)
	require.NoError(t, err)

	assert.NotSame(t, res0.Study, res1.Study)
	assert.Len(t, res0.Study.Trials(), 3)
	assert.Len(t, res1.Study.Trials(), 3)
}
