package cmd

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// TrainConfig mirrors the train subcommand flags as a YAML file. Sections
// are optional; a present section replaces its whole flag group, so configs
// should spell out every field of the sections they use.
type TrainConfig struct {
	Seed         *int64               `yaml:"seed"`
	Data         *DataSection         `yaml:"data"`
	Model        *ModelSection        `yaml:"model"`
	Optimization *OptimizationSection `yaml:"optimization"`
	Losses       *LossSection         `yaml:"losses"`
	Cuts         *CutSection          `yaml:"cuts"`
	Test         *TestSection         `yaml:"test"`
	Scan         *ScanSection         `yaml:"scan"`
	Trainer      *TrainerSection      `yaml:"trainer"`
}

// DataSection controls synthetic event generation.
type DataSection struct {
	TrainEvents int     `yaml:"train_events"`
	ValEvents   int     `yaml:"val_events"`
	TestEvents  int     `yaml:"test_events"`
	Particles   int     `yaml:"particles"`
	NoiseHits   int     `yaml:"noise_hits"`
	Sectors     int     `yaml:"sectors"`
	PtMin       float64 `yaml:"pt_min"`
	PtMax       float64 `yaml:"pt_max"`
}

// ModelSection controls the condensation network shape.
type ModelSection struct {
	HiddenDim   int  `yaml:"hidden_dim"`
	LatentDim   int  `yaml:"latent_dim"`
	TrackParams bool `yaml:"track_params"`
}

// OptimizationSection controls the update rule and schedule.
type OptimizationSection struct {
	Epochs         int     `yaml:"epochs"`
	LR             float64 `yaml:"lr"`
	Optimizer      string  `yaml:"optimizer"`
	Momentum       float64 `yaml:"momentum"`
	LRGamma        float64 `yaml:"lr_gamma"`
	LRStepSize     int     `yaml:"lr_step_size"`
	DynamicWeights bool    `yaml:"dynamic_weights"`
}

// LossSection controls the loss functions and their weights.
type LossSection struct {
	QMin                  float64 `yaml:"q_min"`
	SB                    float64 `yaml:"sb"`
	LwEdge                float64 `yaml:"lw_edge"`
	LwPotentialAttractive float64 `yaml:"lw_potential_attractive"`
	LwPotentialRepulsive  float64 `yaml:"lw_potential_repulsive"`
	LwBackground          float64 `yaml:"lw_background"`
}

// CutSection controls the truth-level cuts of masked evaluation.
type CutSection struct {
	PtThld                 float64 `yaml:"pt_thld"`
	ExcludeNoise           bool    `yaml:"exclude_noise"`
	RequireReconstructable bool    `yaml:"require_reconstructable"`
}

// TestSection controls the edge classification metrics.
type TestSection struct {
	PtThresholds []float64 `yaml:"pt_thresholds"`
	ECThreshold  float64   `yaml:"ec_threshold"`
}

// ScanSection controls the per-epoch clustering scan.
type ScanSection struct {
	Trials        int `yaml:"trials"`
	ClusterGraphs int `yaml:"cluster_graphs"`
}

// TrainerSection controls training loop behavior.
type TrainerSection struct {
	MaxBatches    int    `yaml:"max_batches"`
	SkipTest      bool   `yaml:"skip_test"`
	CheckpointDir string `yaml:"checkpoint_dir"`
}

// parseTrainConfig decodes a training config. Unknown keys fail the parse so
// config typos surface immediately.
func parseTrainConfig(raw []byte) (*TrainConfig, error) {
	var cfg TrainConfig
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadTrainConfig reads and parses a training config file.
func loadTrainConfig(path string) *TrainConfig {
	raw, err := os.ReadFile(path)
	if err != nil {
		logrus.Fatalf("Failed to read training config: %v", err)
	}
	cfg, err := parseTrainConfig(raw)
	if err != nil {
		logrus.Fatalf("Failed to parse training config %s: %v", path, err)
	}
	return cfg
}

// applyTrainConfig copies the sections present in cfg over the flag values.
func applyTrainConfig(cfg *TrainConfig) {
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	if d := cfg.Data; d != nil {
		trainEvents, valEvents, testEvents = d.TrainEvents, d.ValEvents, d.TestEvents
		particles, noiseHits, sectors = d.Particles, d.NoiseHits, d.Sectors
		ptMin, ptMax = d.PtMin, d.PtMax
	}
	if m := cfg.Model; m != nil {
		hiddenDim, latentDim, trackParams = m.HiddenDim, m.LatentDim, m.TrackParams
	}
	if o := cfg.Optimization; o != nil {
		epochs, lr, optimizer, momentum = o.Epochs, o.LR, o.Optimizer, o.Momentum
		lrGamma, lrStepSize, dynamicWeights = o.LRGamma, o.LRStepSize, o.DynamicWeights
	}
	if l := cfg.Losses; l != nil {
		qMin, sb = l.QMin, l.SB
		lwEdge, lwAttractive = l.LwEdge, l.LwPotentialAttractive
		lwRepulsive, lwBackground = l.LwPotentialRepulsive, l.LwBackground
	}
	if c := cfg.Cuts; c != nil {
		ptThld, excludeNoise, requireReco = c.PtThld, c.ExcludeNoise, c.RequireReconstructable
	}
	if t := cfg.Test; t != nil {
		ptThresholds, ecThreshold = t.PtThresholds, t.ECThreshold
	}
	if s := cfg.Scan; s != nil {
		scanTrials, clusterGraphs = s.Trials, s.ClusterGraphs
	}
	if t := cfg.Trainer; t != nil {
		maxBatches, skipTest, checkpointDir = t.MaxBatches, t.SkipTest, t.CheckpointDir
	}
}
