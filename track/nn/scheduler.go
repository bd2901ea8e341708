package nn

import "math"

// LRScheduler yields the learning rate to use after a given epoch. The
// trainer queries it once per epoch and pushes the result into the optimizer.
type LRScheduler interface {
	LR(epoch int) float64
	Name() string
}

// ConstantLR keeps the learning rate fixed.
type ConstantLR struct {
	Base float64
}

// LR implements LRScheduler.
func (c ConstantLR) LR(int) float64 { return c.Base }

// Name implements LRScheduler.
func (c ConstantLR) Name() string { return "constant" }

// StepLR multiplies the rate by Gamma every StepSize epochs.
type StepLR struct {
	Base     float64
	Gamma    float64
	StepSize int
}

// LR implements LRScheduler.
func (s StepLR) LR(epoch int) float64 {
	if s.StepSize <= 0 {
		return s.Base
	}
	return s.Base * math.Pow(s.Gamma, float64(epoch/s.StepSize))
}

// Name implements LRScheduler.
func (s StepLR) Name() string { return "step" }

// CosineLR anneals the rate from Base to Min over Period epochs and holds
// Min afterwards.
type CosineLR struct {
	Base   float64
	Min    float64
	Period int
}

// LR implements LRScheduler.
func (c CosineLR) LR(epoch int) float64 {
	if c.Period <= 0 || epoch >= c.Period {
		return c.Min
	}
	frac := float64(epoch) / float64(c.Period)
	return c.Min + 0.5*(c.Base-c.Min)*(1+math.Cos(math.Pi*frac))
}

// Name implements LRScheduler.
func (c CosineLR) Name() string { return "cosine" }
