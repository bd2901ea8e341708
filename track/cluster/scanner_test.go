package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/GageDeZoort/gnn-tracking/track/search"
)

// blobGraph returns one graph of two well-separated particles (three hits
// each) with the matching truth; eps anywhere in [0.2, 4.9] with min_samples
// up to 3 clusters it perfectly.
func blobGraph() (*mat.Dense, []int64) {
	g := mat.NewDense(6, 2, []float64{
		0, 0,
		0.1, 0,
		0, 0.1,
		5, 5,
		5.1, 5,
		5, 5.1,
	})
	return g, []int64{1, 1, 1, 2, 2, 2}
}

// narrowSuggest draws parameters from ranges where every draw clusters the
// blob graphs perfectly.
func narrowSuggest(t *search.Trial) (map[string]float64, error) {
	return map[string]float64{
		"eps":         t.SuggestFloat("eps", 0.3, 0.6),
		"min_samples": float64(t.SuggestInt("min_samples", 2, 3)),
	}, nil
}

func blobScannerConfig() ScannerConfig {
	g1, t1 := blobGraph()
	g2, t2 := blobGraph()
	return ScannerConfig{
		Algorithm: DBSCAN,
		Suggest:   narrowSuggest,
		Graphs:    []*mat.Dense{g1, g2},
		Truth:     [][]int64{t1, t2},
		Metrics: map[string]Metric{
			"trk": TrackingEfficiency,
			"vm":  VMeasure,
		},
		Guide: "trk.double_majority",
		Proxy: "vm",
		Seed:  1,
	}
}

func TestNewScanner_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ScannerConfig)
	}{
		{"nil algorithm", func(c *ScannerConfig) { c.Algorithm = nil }},
		{"nil suggester", func(c *ScannerConfig) { c.Suggest = nil }},
		{"no graphs", func(c *ScannerConfig) { c.Graphs = nil; c.Truth = nil }},
		{"truth length mismatch", func(c *ScannerConfig) { c.Truth = c.Truth[:1] }},
		{"sector length mismatch", func(c *ScannerConfig) { c.Sectors = [][]int{{0}} }},
		{"truth rows mismatch", func(c *ScannerConfig) { c.Truth[0] = c.Truth[0][:3] }},
		{"dotted metric key", func(c *ScannerConfig) { c.Metrics["bad.key"] = VMeasure }},
		{"unknown guide", func(c *ScannerConfig) { c.Guide = "nope" }},
		{"unknown proxy base", func(c *ScannerConfig) { c.Proxy = "nope.x" }},
		{"empty guide", func(c *ScannerConfig) { c.Guide = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := blobScannerConfig()
			tc.mutate(&cfg)
			_, err := NewScanner(cfg)
			assert.Error(t, err)
		})
	}
}

func TestScanner_Scan_ReportsExactMetricKeys(t *testing.T) {
	s, err := NewScanner(blobScannerConfig())
	require.NoError(t, err)

	res, err := s.Scan(5, nil)
	require.NoError(t, err)

	want := []string{"trk.double_majority", "trk.lhc", "trk.perfect", "vm"}
	assert.Len(t, res.Metrics, len(want))
	for _, key := range want {
		assert.Contains(t, res.Metrics, key)
	}
}

func TestScanner_Scan_NarrowRanges_FindPerfectClustering(t *testing.T) {
	s, err := NewScanner(blobScannerConfig())
	require.NoError(t, err)

	res, err := s.Scan(5, nil)
	require.NoError(t, err)

	// Every parameter draw in the narrow ranges clusters the blobs
	// perfectly, so the optimum and all metrics sit at 1.
	assert.InDelta(t, 1.0, res.BestValue(), 1e-12)
	assert.InDelta(t, 1.0, res.Metrics["vm"], 1e-12)
	assert.InDelta(t, 1.0, res.Metrics["trk.perfect"], 1e-12)
	assert.InDelta(t, 1.0, res.Metrics["trk.double_majority"], 1e-12)
}

func TestScanner_Scan_WarmStart_TriesGivenParamsFirst(t *testing.T) {
	s, err := NewScanner(blobScannerConfig())
	require.NoError(t, err)

	// WHEN a single-trial scan is warm-started
	res, err := s.Scan(1, map[string]float64{"eps": 0.5, "min_samples": 2})
	require.NoError(t, err)

	// THEN the only (hence best) trial used exactly those parameters
	best := res.BestParams()
	assert.Equal(t, 0.5, best["eps"])
	assert.Equal(t, 2.0, best["min_samples"])
}

func TestScanner_Scan_ZeroBudgetWithoutHistory_Errors(t *testing.T) {
	s, err := NewScanner(blobScannerConfig())
	require.NoError(t, err)

	_, err = s.Scan(0, nil)
	assert.ErrorContains(t, err, "no trial completed")
}

func TestScanner_Scan_ComponentOfScalarMetric_Errors(t *testing.T) {
	cfg := blobScannerConfig()
	cfg.Guide = "vm.something"
	s, err := NewScanner(cfg)
	require.NoError(t, err)

	_, err = s.Scan(2, nil)
	assert.ErrorContains(t, err, "cannot take component")
}

func TestScanner_Scan_CompositeGuideWithoutComponent_Errors(t *testing.T) {
	cfg := blobScannerConfig()
	cfg.Guide = "trk"
	s, err := NewScanner(cfg)
	require.NoError(t, err)

	_, err = s.Scan(2, nil)
	assert.ErrorContains(t, err, "name one of its components")
}

func TestScanner_RepeatedScans_ExtendOneStudy(t *testing.T) {
	s, err := NewScanner(blobScannerConfig())
	require.NoError(t, err)

	res1, err := s.Scan(3, nil)
	require.NoError(t, err)
	res2, err := s.Scan(2, nil)
	require.NoError(t, err)

	assert.Same(t, res1.Study, res2.Study)
	assert.Len(t, res2.Study.Trials(), 5)
}

func TestScanner_EarlyStop_EndsScanBeforeBudget(t *testing.T) {
	cfg := blobScannerConfig()
	// A gain threshold no trial can beat makes the second trial stale.
	cfg.EarlyStop = &search.RelativeEarlyStopper{MinImprovement: 10, Patience: 1}
	s, err := NewScanner(cfg)
	require.NoError(t, err)

	res, err := s.Scan(10, nil)
	require.NoError(t, err)

	assert.Len(t, res.Study.Trials(), 2)
}

func sectoredBlobConfig() ScannerConfig {
	// One graph whose two particles sit in different sectors, plus one
	// background hit that must never reach the clustering algorithm.
	g := mat.NewDense(7, 2, []float64{
		0, 0,
		0.1, 0,
		0, 0.1,
		5, 5,
		5.1, 5,
		5, 5.1,
		99, 99,
	})
	truth := []int64{1, 1, 1, 2, 2, 2, 0}
	sectors := []int{0, 0, 0, 1, 1, 1, -1}

	guarded := func(points *mat.Dense, params map[string]float64) ([]int, error) {
		if points != nil {
			rows, _ := points.Dims()
			for i := 0; i < rows; i++ {
				if points.RawRowView(i)[0] == 99 {
					return nil, fmt.Errorf("background row reached the algorithm")
				}
			}
		}
		return DBSCAN(points, params)
	}

	return ScannerConfig{
		Algorithm: guarded,
		Suggest:   narrowSuggest,
		Graphs:    []*mat.Dense{g},
		Truth:     [][]int64{truth},
		Sectors:   [][]int{sectors},
		Metrics:   map[string]Metric{"vm": VMeasure},
		Guide:     "vm",
		Seed:      3,
	}
}

func TestScanner_Sectors_ExcludeBackgroundRows(t *testing.T) {
	s, err := NewScanner(sectoredBlobConfig())
	require.NoError(t, err)

	// Trials cluster the studied sector, the final evaluation every
	// non-background sector; neither may see the background row.
	res, err := s.Scan(4, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Metrics["vm"], 1e-12)
}

func TestScanner_SectorChoice_IsStableAcrossTrials(t *testing.T) {
	s, err := NewScanner(sectoredBlobConfig())
	require.NoError(t, err)

	_, err = s.Scan(3, nil)
	require.NoError(t, err)
	chosen := s.sectorOf[0]
	assert.Contains(t, []int{0, 1}, chosen)

	_, err = s.Scan(3, nil)
	require.NoError(t, err)
	assert.Equal(t, chosen, s.sectorOf[0], "later scans must reuse the drawn sector")
}

func TestDistinctSectors_SortsAndDropsBackground(t *testing.T) {
	got := distinctSectors([]int{2, -1, 0, 2, 1, -1, 0})
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestMaskedRows_NilMaskKeepsMatrix(t *testing.T) {
	g, _ := blobGraph()
	assert.Same(t, g, maskedRows(g, nil))
}

func TestMaskedRows_EmptySelection_IsNil(t *testing.T) {
	g, _ := blobGraph()
	assert.Nil(t, maskedRows(g, make([]bool, 6)))
}

func TestMaskedRows_CopiesSelectedRows(t *testing.T) {
	g, _ := blobGraph()
	out := maskedRows(g, []bool{true, false, false, true, false, false})
	rows, cols := out.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, g.RawRowView(0), out.RawRowView(0))
	assert.Equal(t, g.RawRowView(3), out.RawRowView(1))
}
