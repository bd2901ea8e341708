package cluster

import (
	"gonum.org/v1/gonum/mat"

	"github.com/GageDeZoort/gnn-tracking/track/search"
)

// ScanFunc runs a clustering hyperparameter scan over the latent graphs
// collected during a test epoch. pts and reconstructable ride along for
// implementations whose metrics want them; the DBSCAN default ignores them.
type ScanFunc func(graphs []*mat.Dense, truth [][]int64, sectors [][]int, pts [][]float64, reconstructable [][]bool, epoch int, startParams map[string]float64) (*ScanResult, error)

// DBSCANScanConfig configures NewDBSCANScan. The zero value selects the
// usual defaults.
type DBSCANScanConfig struct {
	// Trials is the search budget of each invocation; values below 1 select
	// 100.
	Trials int
	// Guide names the maximized metric; empty selects "trk.double_majority".
	Guide string
	// Proxy names the cheap first-pass metric; empty selects "vm".
	Proxy string
	// EpsRange bounds the suggested neighborhood radius; the zero value
	// selects [1e-5, 1.0].
	EpsRange [2]float64
	// MinSamplesRange bounds the suggested core-point neighborhood size;
	// the zero value selects [1, 50].
	MinSamplesRange [2]int
	// Seed is offset by the epoch and feeds each invocation's scanner.
	Seed int64
	// EarlyStop, Sampler, Pruner and PruningGracePeriod are forwarded to
	// the scanner.
	EarlyStop          search.EarlyStopper
	Sampler            search.Sampler
	Pruner             search.Pruner
	PruningGracePeriod int
}

// NewDBSCANScan pre-packages the usual DBSCAN scan: eps and min_samples
// suggestion, tracking efficiency ("trk") and V-measure ("vm") metrics,
// guided by the double-majority rate with the V-measure as cheap proxy.
// Each invocation builds a fresh scanner seeded with Seed plus the epoch,
// so one epoch's scan is reproducible while consecutive epochs explore
// anew; warm-start parameters carry the previous optimum over.
func NewDBSCANScan(cfg DBSCANScanConfig) ScanFunc {
	if cfg.Trials < 1 {
		cfg.Trials = 100
	}
	if cfg.Guide == "" {
		cfg.Guide = "trk.double_majority"
	}
	if cfg.Proxy == "" {
		cfg.Proxy = "vm"
	}
	if cfg.EpsRange == [2]float64{} {
		cfg.EpsRange = [2]float64{1e-5, 1.0}
	}
	if cfg.MinSamplesRange == [2]int{} {
		cfg.MinSamplesRange = [2]int{1, 50}
	}
	suggest := func(t *search.Trial) (map[string]float64, error) {
		return map[string]float64{
			"eps":         t.SuggestFloat("eps", cfg.EpsRange[0], cfg.EpsRange[1]),
			"min_samples": float64(t.SuggestInt("min_samples", cfg.MinSamplesRange[0], cfg.MinSamplesRange[1])),
		}, nil
	}
	return func(graphs []*mat.Dense, truth [][]int64, sectors [][]int, pts [][]float64, reconstructable [][]bool, epoch int, startParams map[string]float64) (*ScanResult, error) {
		scanner, err := NewScanner(ScannerConfig{
			Algorithm: DBSCAN,
			Suggest:   suggest,
			Graphs:    graphs,
			Truth:     truth,
			Sectors:   sectors,
			Metrics: map[string]Metric{
				"trk": TrackingEfficiency,
				"vm":  VMeasure,
			},
			Guide:              cfg.Guide,
			Proxy:              cfg.Proxy,
			EarlyStop:          cfg.EarlyStop,
			Seed:               cfg.Seed + int64(epoch),
			PruningGracePeriod: cfg.PruningGracePeriod,
			Sampler:            cfg.Sampler,
			Pruner:             cfg.Pruner,
		})
		if err != nil {
			return nil, err
		}
		return scanner.Scan(cfg.Trials, startParams)
	}
}
