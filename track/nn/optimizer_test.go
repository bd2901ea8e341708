package nn

import (
	"math"
	"testing"
)

func paramWith(name string, w, g []float64) *Param {
	p := NewParam(name, 1, len(w))
	copy(p.W.RawMatrix().Data, w)
	copy(p.G.RawMatrix().Data, g)
	return p
}

func TestNewAdam_InvalidLR_Errors(t *testing.T) {
	for _, lr := range []float64{-1, math.NaN(), math.Inf(1)} {
		if _, err := NewAdam(AdamConfig{LR: lr}); err == nil {
			t.Errorf("NewAdam(lr=%v): got nil error, want validation failure", lr)
		}
	}
}

func TestNewAdam_ZeroFields_FallBackToDefaults(t *testing.T) {
	// GIVEN a config that only sets the learning rate
	opt, err := NewAdam(AdamConfig{LR: 1e-3})
	if err != nil {
		t.Fatalf("NewAdam: %v", err)
	}

	// THEN the moment coefficients come from the defaults
	def := DefaultAdamConfig()
	if opt.cfg.Beta1 != def.Beta1 || opt.cfg.Beta2 != def.Beta2 || opt.cfg.Epsilon != def.Epsilon {
		t.Errorf("zero fields not defaulted: got %+v", opt.cfg)
	}
	if opt.LR() != 1e-3 {
		t.Errorf("LR: got %v, want 1e-3", opt.LR())
	}
}

func TestAdam_FirstStep_IsSignedLRStep(t *testing.T) {
	// GIVEN a fresh Adam optimizer; after one step the bias corrections
	// cancel, so the update is lr*g/(|g|+eps), roughly lr*sign(g)
	opt, err := NewAdam(AdamConfig{LR: 0.1})
	if err != nil {
		t.Fatalf("NewAdam: %v", err)
	}
	p := paramWith("w", []float64{1.0, -2.0, 3.0}, []float64{0.5, -4.0, 0.0})

	// WHEN one step is applied
	opt.Step([]*Param{p})

	// THEN each weight moved by about lr against the gradient sign, and
	// zero-gradient entries stay put
	got := p.W.RawMatrix().Data
	want := []float64{0.9, -1.9, 3.0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("w[%d]: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSGD_NoMomentum_ExactUpdate(t *testing.T) {
	opt, err := NewSGD(SGDConfig{LR: 0.5})
	if err != nil {
		t.Fatalf("NewSGD: %v", err)
	}
	p := paramWith("w", []float64{1.0, 2.0}, []float64{0.2, -0.4})

	opt.Step([]*Param{p})

	got := p.W.RawMatrix().Data
	want := []float64{0.9, 2.2}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("w[%d]: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSGD_Momentum_AccumulatesVelocity(t *testing.T) {
	// GIVEN momentum 0.5 and a constant gradient of 1.0
	opt, err := NewSGD(SGDConfig{LR: 0.1, Momentum: 0.5})
	if err != nil {
		t.Fatalf("NewSGD: %v", err)
	}
	p := paramWith("w", []float64{0.0}, []float64{1.0})

	// WHEN two steps are applied
	opt.Step([]*Param{p}) // vel=1.0, w=-0.1
	opt.Step([]*Param{p}) // vel=1.5, w=-0.25

	// THEN the second step moved further than the first
	got := p.W.At(0, 0)
	if math.Abs(got-(-0.25)) > 1e-12 {
		t.Errorf("w after two momentum steps: got %v, want -0.25", got)
	}
}

func TestNewSGD_InvalidConfig_Errors(t *testing.T) {
	if _, err := NewSGD(SGDConfig{LR: 0}); err == nil {
		t.Error("NewSGD(lr=0): got nil error, want validation failure")
	}
	if _, err := NewSGD(SGDConfig{LR: 0.1, Momentum: 1.0}); err == nil {
		t.Error("NewSGD(momentum=1): got nil error, want validation failure")
	}
}

func TestOptimizer_SetLR_TakesEffectNextStep(t *testing.T) {
	opt, err := NewSGD(SGDConfig{LR: 1.0})
	if err != nil {
		t.Fatalf("NewSGD: %v", err)
	}
	p := paramWith("w", []float64{0.0}, []float64{1.0})

	opt.SetLR(0.25)
	opt.Step([]*Param{p})

	if got := p.W.At(0, 0); math.Abs(got-(-0.25)) > 1e-12 {
		t.Errorf("w after SetLR(0.25): got %v, want -0.25", got)
	}
}

func TestAdam_StateRoundTrip_ResumesIdentically(t *testing.T) {
	// GIVEN an Adam optimizer that has taken one step
	opt, err := NewAdam(AdamConfig{LR: 0.05})
	if err != nil {
		t.Fatalf("NewAdam: %v", err)
	}
	pA := paramWith("w", []float64{1.0, -1.0}, []float64{0.3, 0.7})
	pB := paramWith("w", []float64{1.0, -1.0}, []float64{0.3, 0.7})
	opt.Step([]*Param{pA})
	copy(pB.W.RawMatrix().Data, pA.W.RawMatrix().Data)

	// WHEN its state is loaded into a fresh optimizer
	resumed, err := NewAdam(AdamConfig{LR: 0.05})
	if err != nil {
		t.Fatalf("NewAdam: %v", err)
	}
	if err := resumed.LoadState(opt.State()); err != nil {
		t.Fatalf("LoadState: %v", err)
	}

	// THEN both optimizers produce identical second steps
	opt.Step([]*Param{pA})
	resumed.Step([]*Param{pB})
	a, b := pA.W.RawMatrix().Data, pB.W.RawMatrix().Data
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("w[%d] diverged after resume: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestLoadState_WrongOptimizerName_Errors(t *testing.T) {
	adam, _ := NewAdam(AdamConfig{LR: 0.1})
	sgd, _ := NewSGD(SGDConfig{LR: 0.1})
	if err := adam.LoadState(sgd.State()); err == nil {
		t.Error("loading sgd state into adam: got nil error, want mismatch")
	}
	if err := sgd.LoadState(adam.State()); err == nil {
		t.Error("loading adam state into sgd: got nil error, want mismatch")
	}
}

func TestParam_ZeroGrad_ClearsAccumulator(t *testing.T) {
	p := paramWith("w", []float64{1, 2}, []float64{3, 4})
	p.ZeroGrad()
	for i, g := range p.G.RawMatrix().Data {
		if g != 0 {
			t.Errorf("g[%d]: got %v, want 0", i, g)
		}
	}
	if p.W.At(0, 0) != 1 {
		t.Error("ZeroGrad touched the weights")
	}
}
