package track

import (
	"fmt"
	"math"
)

// WeightStrategy supplies a weight for every named loss term. Implementations
// must return non-negative weights and must not fail for unseen names (those
// default to 1.0). Update is called exactly once per epoch, after all batches
// of that epoch have been processed.
type WeightStrategy interface {
	WeightOf(name string) float64
	Update(epochLosses map[string]float64)
}

// realizer is implemented by strategies that need the realized set of
// flattened loss names before their weights are applied. Decomposed losses
// introduce names that are not known at construction time, so the aggregator
// announces the full set it is about to weight.
type realizer interface {
	realize(names map[string]float64)
}

// ConstantWeights applies fixed per-name weights, normalized to sum to 1.0
// over the realized set of loss names. Names never supplied at construction
// default to weight 1.0 before normalization.
type ConstantWeights struct {
	supplied map[string]float64
	realized map[string]bool
	norm     map[string]float64
}

// NewConstantWeights builds a constant strategy from the supplied weights.
// A nil map is valid and weights every loss equally.
func NewConstantWeights(weights map[string]float64) (*ConstantWeights, error) {
	for name, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("track: weight for %q must be finite and non-negative, got %v", name, w)
		}
	}
	c := &ConstantWeights{
		supplied: make(map[string]float64, len(weights)),
		realized: make(map[string]bool),
		norm:     make(map[string]float64),
	}
	for name, w := range weights {
		c.supplied[name] = w
	}
	return c, nil
}

// WeightOf returns the normalized weight of name, or 1.0 if name has not been
// realized yet.
func (c *ConstantWeights) WeightOf(name string) float64 {
	if w, ok := c.norm[name]; ok {
		return w
	}
	return 1.0
}

// Update is a no-op: constant weights do not adapt.
func (c *ConstantWeights) Update(map[string]float64) {}

func (c *ConstantWeights) realize(names map[string]float64) {
	grew := false
	for name := range names {
		if !c.realized[name] {
			c.realized[name] = true
			grew = true
		}
	}
	if !grew {
		return
	}
	total := 0.0
	for name := range c.realized {
		total += c.rawWeight(name)
	}
	for name := range c.realized {
		if total > 0 {
			c.norm[name] = c.rawWeight(name) / total
		} else {
			c.norm[name] = 0
		}
	}
}

func (c *ConstantWeights) rawWeight(name string) float64 {
	if w, ok := c.supplied[name]; ok {
		return w
	}
	return 1.0
}

// Adapter derives the next epoch's raw weight for each loss name from the
// smoothed loss magnitudes. Returned weights must be non-negative; the
// strategy clamps violations to zero.
type Adapter interface {
	Adapt(smoothed map[string]float64) map[string]float64
}

// InverseMagnitude weights each loss by the reciprocal of its smoothed
// magnitude so that terms with large raw values do not dominate the total.
type InverseMagnitude struct {
	// Epsilon bounds the denominator away from zero.
	Epsilon float64
}

// Adapt implements Adapter.
func (a InverseMagnitude) Adapt(smoothed map[string]float64) map[string]float64 {
	eps := a.Epsilon
	if eps <= 0 {
		eps = 1e-8
	}
	out := make(map[string]float64, len(smoothed))
	for name, v := range smoothed {
		out[name] = 1.0 / math.Max(math.Abs(v), eps)
	}
	return out
}

// DynamicConfig configures a DynamicWeights strategy.
type DynamicConfig struct {
	// Smoothing is the exponential-moving-average coefficient applied to each
	// epoch's averaged losses; 1 tracks only the latest epoch.
	Smoothing float64
	// Adapter maps smoothed losses to raw weights; nil selects
	// InverseMagnitude with its default epsilon.
	Adapter Adapter
}

// DefaultDynamicConfig returns the settings used when none are supplied.
func DefaultDynamicConfig() DynamicConfig {
	return DynamicConfig{
		Smoothing: 0.85,
		Adapter:   InverseMagnitude{},
	}
}

// DynamicWeights adapts per-loss weights once per epoch from the trend of the
// averaged losses. Weights are normalized to sum to 1.0 over the adapted
// names; names without history weigh 1.0.
type DynamicWeights struct {
	cfg      DynamicConfig
	smoothed map[string]float64
	weights  map[string]float64
}

// NewDynamicWeights validates cfg and builds the strategy.
func NewDynamicWeights(cfg DynamicConfig) (*DynamicWeights, error) {
	if math.IsNaN(cfg.Smoothing) || cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		return nil, fmt.Errorf("track: smoothing must be in (0, 1], got %v", cfg.Smoothing)
	}
	if cfg.Adapter == nil {
		cfg.Adapter = InverseMagnitude{}
	}
	return &DynamicWeights{
		cfg:      cfg,
		smoothed: make(map[string]float64),
		weights:  make(map[string]float64),
	}, nil
}

// WeightOf returns the adapted weight of name, or 1.0 before any Update has
// seen it.
func (d *DynamicWeights) WeightOf(name string) float64 {
	if w, ok := d.weights[name]; ok {
		return w
	}
	return 1.0
}

// Update consumes the epoch's averaged losses, refreshes the smoothed
// magnitudes and adapts the weights for the next epoch.
func (d *DynamicWeights) Update(epochLosses map[string]float64) {
	alpha := d.cfg.Smoothing
	for name, v := range epochLosses {
		if math.IsNaN(v) {
			continue
		}
		if prev, ok := d.smoothed[name]; ok {
			d.smoothed[name] = alpha*v + (1-alpha)*prev
		} else {
			d.smoothed[name] = v
		}
	}
	raw := d.cfg.Adapter.Adapt(d.smoothed)
	total := 0.0
	for name, w := range raw {
		if w < 0 || math.IsNaN(w) {
			w = 0
			raw[name] = 0
		}
		total += w
	}
	for name, w := range raw {
		if total > 0 {
			d.weights[name] = w / total
		} else {
			d.weights[name] = 0
		}
	}
}
