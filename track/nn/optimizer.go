package nn

import (
	"fmt"
	"math"
)

// Optimizer updates parameters from their accumulated gradients. State and
// LoadState support checkpoint round-trips: a restored optimizer continues
// exactly where the saved one stopped.
type Optimizer interface {
	Step(params []*Param)
	LR() float64
	SetLR(lr float64)
	State() State
	LoadState(s State) error
	Name() string
}

// State is a serializable snapshot of optimizer internals. Buffers are keyed
// by parameter name and stored flattened.
type State struct {
	Name          string
	LR            float64
	Steps         int
	Moments       map[string][]float64
	SecondMoments map[string][]float64
}

func cloneBuffers(src map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(src))
	for name, buf := range src {
		c := make([]float64, len(buf))
		copy(c, buf)
		out[name] = c
	}
	return out
}

// AdamConfig configures an Adam optimizer.
type AdamConfig struct {
	// LR is the learning rate.
	LR float64
	// Beta1 and Beta2 are the moment decay coefficients.
	Beta1 float64
	Beta2 float64
	// Epsilon bounds the update denominator away from zero.
	Epsilon float64
	// WeightDecay applies decoupled weight decay when positive.
	WeightDecay float64
}

// DefaultAdamConfig returns the optimizer settings used when none are given.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LR:      5e-4,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
	}
}

// Adam implements the Adam update rule with bias-corrected first and second
// moments.
type Adam struct {
	cfg   AdamConfig
	steps int
	m     map[string][]float64
	v     map[string][]float64
}

// NewAdam validates cfg and builds the optimizer. Zero-valued coefficient
// fields fall back to their defaults so NewAdam(AdamConfig{LR: 1e-3}) works.
func NewAdam(cfg AdamConfig) (*Adam, error) {
	def := DefaultAdamConfig()
	if cfg.LR == 0 {
		cfg.LR = def.LR
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = def.Beta1
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = def.Beta2
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = def.Epsilon
	}
	if cfg.LR <= 0 || math.IsNaN(cfg.LR) || math.IsInf(cfg.LR, 0) {
		return nil, fmt.Errorf("nn: adam lr must be positive and finite, got %v", cfg.LR)
	}
	if cfg.Beta1 < 0 || cfg.Beta1 >= 1 || cfg.Beta2 < 0 || cfg.Beta2 >= 1 {
		return nil, fmt.Errorf("nn: adam betas must lie in [0, 1), got %v/%v", cfg.Beta1, cfg.Beta2)
	}
	if cfg.WeightDecay < 0 {
		return nil, fmt.Errorf("nn: adam weight decay must be non-negative, got %v", cfg.WeightDecay)
	}
	return &Adam{
		cfg: cfg,
		m:   make(map[string][]float64),
		v:   make(map[string][]float64),
	}, nil
}

// Name implements Optimizer.
func (a *Adam) Name() string { return "adam" }

// LR implements Optimizer.
func (a *Adam) LR() float64 { return a.cfg.LR }

// SetLR implements Optimizer.
func (a *Adam) SetLR(lr float64) { a.cfg.LR = lr }

// Step applies one Adam update to every parameter.
func (a *Adam) Step(params []*Param) {
	a.steps++
	c1 := 1 - math.Pow(a.cfg.Beta1, float64(a.steps))
	c2 := 1 - math.Pow(a.cfg.Beta2, float64(a.steps))
	for _, p := range params {
		w := p.W.RawMatrix().Data
		g := p.G.RawMatrix().Data
		m := a.buffer(a.m, p)
		v := a.buffer(a.v, p)
		for i := range w {
			m[i] = a.cfg.Beta1*m[i] + (1-a.cfg.Beta1)*g[i]
			v[i] = a.cfg.Beta2*v[i] + (1-a.cfg.Beta2)*g[i]*g[i]
			mHat := m[i] / c1
			vHat := v[i] / c2
			w[i] -= a.cfg.LR * mHat / (math.Sqrt(vHat) + a.cfg.Epsilon)
			if a.cfg.WeightDecay > 0 {
				w[i] -= a.cfg.LR * a.cfg.WeightDecay * w[i]
			}
		}
	}
}

func (a *Adam) buffer(store map[string][]float64, p *Param) []float64 {
	buf, ok := store[p.Name]
	if !ok || len(buf) != p.Size() {
		buf = make([]float64, p.Size())
		store[p.Name] = buf
	}
	return buf
}

// State implements Optimizer.
func (a *Adam) State() State {
	return State{
		Name:          a.Name(),
		LR:            a.cfg.LR,
		Steps:         a.steps,
		Moments:       cloneBuffers(a.m),
		SecondMoments: cloneBuffers(a.v),
	}
}

// LoadState implements Optimizer.
func (a *Adam) LoadState(s State) error {
	if s.Name != a.Name() {
		return fmt.Errorf("nn: cannot load %q state into adam optimizer", s.Name)
	}
	a.cfg.LR = s.LR
	a.steps = s.Steps
	a.m = cloneBuffers(s.Moments)
	a.v = cloneBuffers(s.SecondMoments)
	return nil
}

// SGDConfig configures a stochastic-gradient-descent optimizer.
type SGDConfig struct {
	// LR is the learning rate.
	LR float64
	// Momentum blends in the previous update direction when positive.
	Momentum float64
}

// SGD implements plain gradient descent with optional momentum.
type SGD struct {
	cfg   SGDConfig
	steps int
	vel   map[string][]float64
}

// NewSGD validates cfg and builds the optimizer.
func NewSGD(cfg SGDConfig) (*SGD, error) {
	if cfg.LR <= 0 || math.IsNaN(cfg.LR) || math.IsInf(cfg.LR, 0) {
		return nil, fmt.Errorf("nn: sgd lr must be positive and finite, got %v", cfg.LR)
	}
	if cfg.Momentum < 0 || cfg.Momentum >= 1 {
		return nil, fmt.Errorf("nn: sgd momentum must lie in [0, 1), got %v", cfg.Momentum)
	}
	return &SGD{cfg: cfg, vel: make(map[string][]float64)}, nil
}

// Name implements Optimizer.
func (s *SGD) Name() string { return "sgd" }

// LR implements Optimizer.
func (s *SGD) LR() float64 { return s.cfg.LR }

// SetLR implements Optimizer.
func (s *SGD) SetLR(lr float64) { s.cfg.LR = lr }

// Step applies one SGD update to every parameter.
func (s *SGD) Step(params []*Param) {
	s.steps++
	for _, p := range params {
		w := p.W.RawMatrix().Data
		g := p.G.RawMatrix().Data
		if s.cfg.Momentum == 0 {
			for i := range w {
				w[i] -= s.cfg.LR * g[i]
			}
			continue
		}
		vel, ok := s.vel[p.Name]
		if !ok || len(vel) != len(w) {
			vel = make([]float64, len(w))
			s.vel[p.Name] = vel
		}
		for i := range w {
			vel[i] = s.cfg.Momentum*vel[i] + g[i]
			w[i] -= s.cfg.LR * vel[i]
		}
	}
}

// State implements Optimizer.
func (s *SGD) State() State {
	return State{
		Name:    s.Name(),
		LR:      s.cfg.LR,
		Steps:   s.steps,
		Moments: cloneBuffers(s.vel),
	}
}

// LoadState implements Optimizer.
func (s *SGD) LoadState(st State) error {
	if st.Name != s.Name() {
		return fmt.Errorf("nn: cannot load %q state into sgd optimizer", st.Name)
	}
	s.cfg.LR = st.LR
	s.steps = st.Steps
	s.vel = cloneBuffers(st.Moments)
	return nil
}
