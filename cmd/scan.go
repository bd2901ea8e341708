package cmd

import (
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/GageDeZoort/gnn-tracking/track/cluster"
	"github.com/GageDeZoort/gnn-tracking/track/data"
)

var (
	// CLI flags for the standalone clustering scan
	scanSeed      int64   // Seed for event generation and trial sampling
	scanLogLevel  string  // Log verbosity level
	scanEvents    int     // Number of generated graphs to cluster
	scanBudget    int     // Hyperparameter trials
	scanGuide     string  // Maximized figure of merit
	scanProxy     string  // Cheap first-pass metric
	epsMin        float64 // Lower bound of the suggested DBSCAN radius
	epsMax        float64 // Upper bound of the suggested DBSCAN radius
	minSamplesMin int     // Lower bound of the suggested core-point count
	minSamplesMax int     // Upper bound of the suggested core-point count
)

// scanCmd runs a DBSCAN hyperparameter scan over generated events without
// training a model first. Hit positions stand in for learned latent
// coordinates, so the scan exercises the full search machinery on graphs
// where same-particle hits are already close together.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan DBSCAN hyperparameters over synthetic tracking events",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(scanLogLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", scanLogLevel)
		}
		logrus.SetLevel(level)

		genCfg := data.DefaultGeneratorConfig()
		genCfg.Seed = scanSeed
		loader, err := data.GenerateLoader(genCfg, scanEvents)
		if err != nil {
			logrus.Fatalf("Failed to generate events: %v", err)
		}

		graphs := make([]*mat.Dense, loader.Len())
		truth := make([][]int64, loader.Len())
		sectors := make([][]int, loader.Len())
		pts := make([][]float64, loader.Len())
		recos := make([][]bool, loader.Len())
		for i := 0; i < loader.Len(); i++ {
			b := loader.Batch(i)
			graphs[i] = hitPositions(b.X)
			truth[i] = b.ParticleID
			sectors[i] = b.Sector
			pts[i] = b.Pt
			recos[i] = b.Reconstructable
		}

		fn := cluster.NewDBSCANScan(cluster.DBSCANScanConfig{
			Trials:          scanBudget,
			Guide:           scanGuide,
			Proxy:           scanProxy,
			EpsRange:        [2]float64{epsMin, epsMax},
			MinSamplesRange: [2]int{minSamplesMin, minSamplesMax},
			Seed:            scanSeed,
		})
		res, err := fn(graphs, truth, sectors, pts, recos, 0, nil)
		if err != nil {
			logrus.Fatalf("Clustering scan failed: %v", err)
		}

		params := res.BestParams()
		paramNames := make([]string, 0, len(params))
		for name := range params {
			paramNames = append(paramNames, name)
		}
		sort.Strings(paramNames)
		for _, name := range paramNames {
			logrus.Infof("best %s = %v", name, params[name])
		}
		logrus.Infof("best %s = %.5f", scanGuide, res.BestValue())

		names := make([]string, 0, len(res.Metrics))
		for name := range res.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			logrus.Infof("%s = %.5f", name, res.Metrics[name])
		}
	},
}

// hitPositions extracts the transverse hit coordinates as the space to
// cluster in.
func hitPositions(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	pos := mat.NewDense(rows, 2, nil)
	for i := 0; i < rows; i++ {
		row := x.RawRowView(i)
		pos.Set(i, 0, row[0])
		pos.Set(i, 1, row[1])
	}
	return pos
}

// init sets up the scan CLI flags
func init() {
	scanCmd.Flags().Int64Var(&scanSeed, "seed", 0, "Seed for event generation and trial sampling")
	scanCmd.Flags().StringVar(&scanLogLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	scanCmd.Flags().IntVar(&scanEvents, "events", 8, "Number of generated graphs to cluster")
	scanCmd.Flags().IntVar(&scanBudget, "trials", 100, "Hyperparameter trials")
	scanCmd.Flags().StringVar(&scanGuide, "guide", "trk.double_majority", "Maximized figure of merit")
	scanCmd.Flags().StringVar(&scanProxy, "proxy", "vm", "Cheap first-pass metric evaluated on every trial")
	scanCmd.Flags().Float64Var(&epsMin, "eps-min", 1e-5, "Lower bound of the suggested DBSCAN radius")
	scanCmd.Flags().Float64Var(&epsMax, "eps-max", 1.0, "Upper bound of the suggested DBSCAN radius")
	scanCmd.Flags().IntVar(&minSamplesMin, "min-samples-min", 1, "Lower bound of the suggested core-point count")
	scanCmd.Flags().IntVar(&minSamplesMax, "min-samples-max", 50, "Upper bound of the suggested core-point count")
}
