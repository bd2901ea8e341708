package cmd

import (
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/GageDeZoort/gnn-tracking/track"
	"github.com/GageDeZoort/gnn-tracking/track/cluster"
	"github.com/GageDeZoort/gnn-tracking/track/data"
	"github.com/GageDeZoort/gnn-tracking/track/model"
	"github.com/GageDeZoort/gnn-tracking/track/nn"
)

var (
	// CLI flags shared across subcommands
	seed     int64  // Seed for event generation and model initialization
	logLevel string // Log verbosity level

	// CLI flags for synthetic event generation
	trainEvents int     // Number of training graphs
	valEvents   int     // Number of validation graphs
	testEvents  int     // Number of held-out test graphs
	particles   int     // Particles per event
	noiseHits   int     // Noise hits per event
	sectors     int     // Angular detector sectors per event
	ptMin       float64 // Lower bound of the pt spectrum
	ptMax       float64 // Upper bound of the pt spectrum

	// CLI flags for the condensation network
	hiddenDim   int  // Width of the encoder layer
	latentDim   int  // Dimension of the condensation space
	trackParams bool // Attach the track parameter regression head

	// CLI flags for optimization
	epochs         int     // Training epochs
	lr             float64 // Initial learning rate
	optimizer      string  // Optimizer name (adam, sgd)
	momentum       float64 // SGD momentum
	lrGamma        float64 // Multiplicative LR decay factor (0 disables scheduling)
	lrStepSize     int     // Epochs between LR decay steps
	dynamicWeights bool    // Adapt loss weights to gradient magnitudes

	// CLI flags for the loss functions
	qMin         float64 // Condensation charge floor
	sb           float64 // Background suppression strength
	lwEdge       float64 // Weight of the edge classification loss
	lwAttractive float64 // Weight of the attractive potential
	lwRepulsive  float64 // Weight of the repulsive potential
	lwBackground float64 // Weight of the background loss

	// CLI flags for truth-level cuts and test metrics
	ptThld       float64   // Drop hits of particles with pt at or below this during masked evaluation
	excludeNoise bool      // Drop noise hits during masked evaluation
	requireReco  bool      // Keep only hits of reconstructable particles during masked evaluation
	ptThresholds []float64 // pt bins of the edge classification metrics
	ecThreshold  float64   // Edge weight threshold of the fixed-threshold metrics

	// CLI flags for the per-epoch clustering scan
	scanTrials    int // Hyperparameter trials per validation scan (0 disables clustering)
	clusterGraphs int // Validation graphs fed to the clustering scan

	// CLI flags for trainer behavior
	maxBatches    int    // Cap on training batches per epoch (0 trains on everything)
	skipTest      bool   // Skip validation during training epochs
	checkpointDir string // Directory for generated checkpoint names
	resume        string // Checkpoint to restore before training
	configPath    string // YAML file overriding the flags above
)

// trainCmd trains a condensation network on synthetic events using
// parameters from CLI flags
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a condensation network on synthetic tracking events",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if configPath != "" {
			applyTrainConfig(loadTrainConfig(configPath))
		}

		// Generate the train/val/test splits from disjoint seeds
		genCfg := data.DefaultGeneratorConfig()
		genCfg.Particles = particles
		genCfg.NoiseHits = noiseHits
		genCfg.Sectors = sectors
		genCfg.PtMin = ptMin
		genCfg.PtMax = ptMax

		loaders := track.Loaders{}
		for _, split := range []struct {
			name   string
			events int
			offset int64
			dst    *track.Loader
		}{
			{"train", trainEvents, 0, &loaders.Train},
			{"val", valEvents, 1, &loaders.Val},
			{"test", testEvents, 2, &loaders.Test},
		} {
			genCfg.Seed = seed + split.offset
			loader, err := data.GenerateLoader(genCfg, split.events)
			if err != nil {
				logrus.Fatalf("Failed to generate %s events: %v", split.name, err)
			}
			*split.dst = loader
		}

		net, err := model.New(model.Config{
			NodeDim:            data.FeatureDim,
			EdgeDim:            data.EdgeFeatureDim,
			HiddenDim:          hiddenDim,
			LatentDim:          latentDim,
			PredictTrackParams: trackParams,
			Seed:               seed,
		})
		if err != nil {
			logrus.Fatalf("Failed to build model: %v", err)
		}

		losses := map[string]track.LossFunc{
			"edge":       track.EdgeWeightLoss{},
			"potential":  track.PotentialLoss{QMin: qMin},
			"background": track.BackgroundLoss{SB: sb},
		}

		opts := []track.TrainerOption{
			track.WithOptimizer(buildOptimizer()),
			track.WithWeights(buildWeights()),
			track.WithTruthCuts(track.TruthCutConfig{
				PtThreshold:            ptThld,
				ExcludeNoise:           excludeNoise,
				RequireReconstructable: requireReco,
			}),
			track.WithPtThresholds(ptThresholds),
			track.WithECThreshold(ecThreshold),
			track.WithCheckpointDir(checkpointDir),
			track.WithSeed(seed),
		}
		if lrGamma > 0 && lrStepSize > 0 {
			opts = append(opts, track.WithLRScheduler(nn.StepLR{Base: lr, Gamma: lrGamma, StepSize: lrStepSize}))
		}
		if scanTrials > 0 {
			fn := cluster.NewDBSCANScan(cluster.DBSCANScanConfig{Trials: scanTrials, Seed: seed})
			opts = append(opts,
				track.WithClusterScan("dbscan", track.ClusterFunc(fn)),
				track.WithMaxBatchesForClustering(clusterGraphs),
			)
		}
		if maxBatches > 0 {
			opts = append(opts, track.WithMaxBatches(maxBatches))
		}
		if skipTest {
			opts = append(opts, track.WithSkipTestDuringTraining())
		}

		trainer, err := track.NewTrainer(net, loaders, losses, opts...)
		if err != nil {
			logrus.Fatalf("Failed to build trainer: %v", err)
		}
		if resume != "" {
			if err := trainer.LoadCheckpoint(resume); err != nil {
				logrus.Fatalf("Failed to load checkpoint: %v", err)
			}
			logrus.Infof("Resumed from %s at epoch %d", resume, trainer.Epoch())
		}

		logrus.Infof("Training %d epochs on %d graphs (%d particles, %d noise hits per event)",
			epochs, trainEvents, particles, noiseHits)

		startTime := time.Now()
		if err := trainer.Train(epochs); err != nil {
			if errors.Is(err, track.ErrInterrupted) {
				logrus.Warnf("Training interrupted after %s; checkpoint saved", time.Since(startTime))
				return
			}
			logrus.Fatalf("Training failed: %v", err)
		}
		logrus.Infof("Training complete after %s", time.Since(startTime))

		// Final evaluation on the held-out split
		results, err := trainer.TestStep(false)
		if err != nil {
			logrus.Fatalf("Held-out evaluation failed: %v", err)
		}
		names := make([]string, 0, len(results))
		for name := range results {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			logrus.Infof("test %s = %.5f", name, results[name])
		}
	},
}

// buildOptimizer maps the optimizer flags onto a concrete update rule
func buildOptimizer() nn.Optimizer {
	switch optimizer {
	case "adam":
		opt, err := nn.NewAdam(nn.AdamConfig{LR: lr})
		if err != nil {
			logrus.Fatalf("Failed to build optimizer: %v", err)
		}
		return opt
	case "sgd":
		opt, err := nn.NewSGD(nn.SGDConfig{LR: lr, Momentum: momentum})
		if err != nil {
			logrus.Fatalf("Failed to build optimizer: %v", err)
		}
		return opt
	default:
		logrus.Fatalf("Unknown optimizer %q (want adam or sgd)", optimizer)
		return nil
	}
}

// buildWeights maps the loss weight flags onto a weighting strategy
func buildWeights() track.WeightStrategy {
	if dynamicWeights {
		w, err := track.NewDynamicWeights(track.DefaultDynamicConfig())
		if err != nil {
			logrus.Fatalf("Failed to build loss weights: %v", err)
		}
		return w
	}
	w, err := track.NewConstantWeights(map[string]float64{
		"edge":                 lwEdge,
		"attractive_potential": lwAttractive,
		"repulsive_potential":  lwRepulsive,
		"background":           lwBackground,
	})
	if err != nil {
		logrus.Fatalf("Failed to build loss weights: %v", err)
	}
	return w
}

// init sets up the train CLI flags
func init() {
	trainCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for event generation and model initialization")
	trainCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	trainCmd.Flags().StringVar(&configPath, "config", "", "YAML training config; settings in the file override flags")

	// Synthetic event generation
	trainCmd.Flags().IntVar(&trainEvents, "train-events", 32, "Number of training graphs")
	trainCmd.Flags().IntVar(&valEvents, "val-events", 8, "Number of validation graphs")
	trainCmd.Flags().IntVar(&testEvents, "test-events", 8, "Number of held-out test graphs")
	trainCmd.Flags().IntVar(&particles, "particles", 12, "Particles per event")
	trainCmd.Flags().IntVar(&noiseHits, "noise-hits", 10, "Noise hits per event")
	trainCmd.Flags().IntVar(&sectors, "sectors", 2, "Angular detector sectors per event")
	trainCmd.Flags().Float64Var(&ptMin, "pt-min", 0.1, "Lower bound of the generated pt spectrum")
	trainCmd.Flags().Float64Var(&ptMax, "pt-max", 5.0, "Upper bound of the generated pt spectrum")

	// Condensation network
	trainCmd.Flags().IntVar(&hiddenDim, "hidden-dim", 40, "Width of the encoder layer")
	trainCmd.Flags().IntVar(&latentDim, "latent-dim", 2, "Dimension of the condensation space")
	trainCmd.Flags().BoolVar(&trackParams, "track-params", false, "Attach the track parameter regression head")

	// Optimization
	trainCmd.Flags().IntVar(&epochs, "epochs", 5, "Training epochs")
	trainCmd.Flags().Float64Var(&lr, "lr", 5e-4, "Initial learning rate")
	trainCmd.Flags().StringVar(&optimizer, "optimizer", "adam", "Optimizer (adam, sgd)")
	trainCmd.Flags().Float64Var(&momentum, "momentum", 0.9, "SGD momentum")
	trainCmd.Flags().Float64Var(&lrGamma, "lr-gamma", 0, "Multiplicative LR decay factor (0 keeps the LR constant)")
	trainCmd.Flags().IntVar(&lrStepSize, "lr-step-size", 10, "Epochs between LR decay steps")
	trainCmd.Flags().BoolVar(&dynamicWeights, "dynamic-weights", false, "Adapt loss weights to gradient magnitudes")

	// Losses
	trainCmd.Flags().Float64Var(&qMin, "q-min", 0.01, "Condensation charge floor")
	trainCmd.Flags().Float64Var(&sb, "sb", 0.1, "Background suppression strength")
	trainCmd.Flags().Float64Var(&lwEdge, "lw-edge", 1.0, "Weight of the edge classification loss")
	trainCmd.Flags().Float64Var(&lwAttractive, "lw-potential-attractive", 1.0, "Weight of the attractive potential")
	trainCmd.Flags().Float64Var(&lwRepulsive, "lw-potential-repulsive", 1.0, "Weight of the repulsive potential")
	trainCmd.Flags().Float64Var(&lwBackground, "lw-background", 1.0, "Weight of the background loss")

	// Truth cuts and test metrics
	trainCmd.Flags().Float64Var(&ptThld, "pt-thld", 0, "Drop hits of particles with pt at or below this during masked evaluation (0 disables)")
	trainCmd.Flags().BoolVar(&excludeNoise, "exclude-noise", false, "Drop noise hits during masked evaluation")
	trainCmd.Flags().BoolVar(&requireReco, "require-reconstructable", false, "Keep only hits of reconstructable particles during masked evaluation")
	trainCmd.Flags().Float64SliceVar(&ptThresholds, "pt-thresholds", []float64{0.9, 1.5}, "Comma-separated pt bins of the edge classification metrics")
	trainCmd.Flags().Float64Var(&ecThreshold, "ec-threshold", 0.5, "Edge weight threshold of the fixed-threshold metrics")

	// Clustering scan
	trainCmd.Flags().IntVar(&scanTrials, "scan-trials", 0, "Hyperparameter trials per validation clustering scan (0 disables clustering)")
	trainCmd.Flags().IntVar(&clusterGraphs, "cluster-graphs", 10, "Validation graphs fed to the clustering scan")

	// Trainer behavior
	trainCmd.Flags().IntVar(&maxBatches, "max-batches", 0, "Cap on training batches per epoch (0 trains on everything)")
	trainCmd.Flags().BoolVar(&skipTest, "skip-test", false, "Skip validation during training epochs")
	trainCmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", ".", "Directory for generated checkpoint names")
	trainCmd.Flags().StringVar(&resume, "resume", "", "Checkpoint to restore before training")
}
