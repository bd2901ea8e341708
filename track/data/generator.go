// Package data generates synthetic track-structured events and serves them
// as graph batches. Events are built from first principles: charged
// particles with a falling transverse-momentum spectrum leave hits along
// gently curving trajectories through concentric layers, plus uncorrelated
// noise hits; edges connect consecutive layer crossings with sampled false
// pairs mixed in.
package data

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/GageDeZoort/gnn-tracking/track"
)

const (
	// FeatureDim is the width of the hit feature rows: x, y, r, phi.
	FeatureDim = 4
	// EdgeFeatureDim is the width of the edge feature rows: dr, dphi.
	EdgeFeatureDim = 2
)

// GeneratorConfig sizes the synthetic events. Zero-valued fields select the
// defaults from DefaultGeneratorConfig.
type GeneratorConfig struct {
	// Particles per event.
	Particles int
	// MinHits and MaxHits bound the layer crossings per particle. Particles
	// with fewer than three hits are not reconstructable.
	MinHits int
	MaxHits int
	// NoiseHits per event carry particle id 0 and pt 0.
	NoiseHits int
	// Sectors is the number of angular detector sectors hits are assigned
	// to.
	Sectors int
	// PtMin and PtMax bound the transverse momentum spectrum; values are
	// drawn log-uniformly so the spectrum falls toward high pt.
	PtMin float64
	PtMax float64
	// PosNoise is the Gaussian position smearing of every hit.
	PosNoise float64
	// FalseEdgeRatio is the number of sampled false edges per true edge.
	FalseEdgeRatio float64
	// Seed feeds the generator's private RNG.
	Seed int64
}

// DefaultGeneratorConfig returns the configuration the command-line tools
// start from.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Particles:      12,
		MinHits:        2,
		MaxHits:        10,
		NoiseHits:      10,
		Sectors:        2,
		PtMin:          0.1,
		PtMax:          5.0,
		PosNoise:       0.02,
		FalseEdgeRatio: 1.0,
	}
}

// Generator produces reproducible synthetic events.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// NewGenerator fills zero-valued fields of cfg from the defaults, validates
// the result and builds a generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	def := DefaultGeneratorConfig()
	if cfg.Particles == 0 {
		cfg.Particles = def.Particles
	}
	if cfg.MinHits == 0 {
		cfg.MinHits = def.MinHits
	}
	if cfg.MaxHits == 0 {
		cfg.MaxHits = def.MaxHits
	}
	if cfg.NoiseHits == 0 {
		cfg.NoiseHits = def.NoiseHits
	}
	if cfg.Sectors == 0 {
		cfg.Sectors = def.Sectors
	}
	if cfg.PtMin == 0 {
		cfg.PtMin = def.PtMin
	}
	if cfg.PtMax == 0 {
		cfg.PtMax = def.PtMax
	}
	if cfg.PosNoise == 0 {
		cfg.PosNoise = def.PosNoise
	}
	if cfg.FalseEdgeRatio == 0 {
		cfg.FalseEdgeRatio = def.FalseEdgeRatio
	}
	if cfg.Particles < 1 {
		return nil, fmt.Errorf("data: particles per event must be positive, got %d", cfg.Particles)
	}
	if cfg.MinHits < 1 || cfg.MaxHits < cfg.MinHits {
		return nil, fmt.Errorf("data: hit range [%d, %d] is invalid", cfg.MinHits, cfg.MaxHits)
	}
	if cfg.NoiseHits < 0 {
		return nil, fmt.Errorf("data: noise hit count must not be negative, got %d", cfg.NoiseHits)
	}
	if cfg.Sectors < 1 {
		return nil, fmt.Errorf("data: sector count must be positive, got %d", cfg.Sectors)
	}
	if cfg.PtMin <= 0 || cfg.PtMax < cfg.PtMin {
		return nil, fmt.Errorf("data: pt range [%g, %g] is invalid", cfg.PtMin, cfg.PtMax)
	}
	if cfg.PosNoise < 0 {
		return nil, fmt.Errorf("data: position noise must not be negative, got %g", cfg.PosNoise)
	}
	if cfg.FalseEdgeRatio < 0 {
		return nil, fmt.Errorf("data: false edge ratio must not be negative, got %g", cfg.FalseEdgeRatio)
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}, nil
}

type hit struct {
	x, y, r, phi float64
	pid          int64
	pt           float64
	reco         bool
}

// Event builds one synthetic event.
func (g *Generator) Event() *track.Batch {
	cfg := g.cfg
	var hits []hit
	// trackHits collects the hit indices of each particle, in layer order.
	var trackHits [][]int

	for p := 0; p < cfg.Particles; p++ {
		pid := int64(p + 1)
		pt := cfg.PtMin * math.Pow(cfg.PtMax/cfg.PtMin, g.rng.Float64())
		phi0 := g.rng.Float64() * 2 * math.Pi
		// Lower-pt particles bend more per unit radius.
		bend := 0.1 / pt
		nHits := cfg.MinHits + g.rng.Intn(cfg.MaxHits-cfg.MinHits+1)
		reco := nHits >= 3
		indices := make([]int, 0, nHits)
		for l := 0; l < nHits; l++ {
			r := float64(l + 1)
			phi := phi0 + bend*r
			x := r*math.Cos(phi) + g.rng.NormFloat64()*cfg.PosNoise
			y := r*math.Sin(phi) + g.rng.NormFloat64()*cfg.PosNoise
			indices = append(indices, len(hits))
			hits = append(hits, hit{
				x: x, y: y,
				r: math.Hypot(x, y), phi: math.Atan2(y, x),
				pid: pid, pt: pt, reco: reco,
			})
		}
		trackHits = append(trackHits, indices)
	}

	for i := 0; i < cfg.NoiseHits; i++ {
		r := 1 + g.rng.Float64()*float64(cfg.MaxHits)
		phi := g.rng.Float64() * 2 * math.Pi
		x := r * math.Cos(phi)
		y := r * math.Sin(phi)
		hits = append(hits, hit{x: x, y: y, r: r, phi: phi})
	}

	// Scatter the hits so node order carries no information.
	n := len(hits)
	perm := g.rng.Perm(n)
	permuted := make([]hit, n)
	for from, to := range perm {
		permuted[to] = hits[from]
	}
	for _, indices := range trackHits {
		for j, from := range indices {
			indices[j] = perm[from]
		}
	}
	hits = permuted

	x := mat.NewDense(n, FeatureDim, nil)
	pt := make([]float64, n)
	pid := make([]int64, n)
	reco := make([]bool, n)
	sector := make([]int, n)
	for i, h := range hits {
		x.SetRow(i, []float64{h.x, h.y, h.r, h.phi})
		pt[i] = h.pt
		pid[i] = h.pid
		reco[i] = h.reco
		sector[i] = g.sectorOf(h.phi)
	}

	src, dst, y := g.edges(hits, trackHits)
	var edgeAttr *mat.Dense
	if len(src) > 0 {
		edgeAttr = mat.NewDense(len(src), EdgeFeatureDim, nil)
		for e := range src {
			s, d := hits[src[e]], hits[dst[e]]
			edgeAttr.SetRow(e, []float64{d.r - s.r, wrapAngle(d.phi - s.phi)})
		}
	}

	return &track.Batch{
		X:               x,
		Pt:              pt,
		ParticleID:      pid,
		Reconstructable: reco,
		Sector:          sector,
		EdgeIndex:       [2][]int{src, dst},
		EdgeAttr:        edgeAttr,
		Y:               y,
	}
}

// Events builds n independent events.
func (g *Generator) Events(n int) []*track.Batch {
	out := make([]*track.Batch, n)
	for i := range out {
		out[i] = g.Event()
	}
	return out
}

// edges connects the consecutive layer crossings of every particle and mixes
// in sampled false pairs.
func (g *Generator) edges(hits []hit, trackHits [][]int) (src, dst []int, y []float64) {
	isTrue := make(map[[2]int]bool)
	for _, indices := range trackHits {
		byLayer := append([]int{}, indices...)
		sort.Slice(byLayer, func(a, b int) bool { return hits[byLayer[a]].r < hits[byLayer[b]].r })
		for j := 0; j+1 < len(byLayer); j++ {
			a, b := byLayer[j], byLayer[j+1]
			src = append(src, a)
			dst = append(dst, b)
			y = append(y, 1)
			isTrue[[2]int{a, b}] = true
			isTrue[[2]int{b, a}] = true
		}
	}

	n := len(hits)
	if n < 2 {
		return src, dst, y
	}
	nFalse := int(g.cfg.FalseEdgeRatio * float64(len(y)))
	for attempts := 0; nFalse > 0 && attempts < 20*nFalse; attempts++ {
		a := g.rng.Intn(n)
		b := g.rng.Intn(n)
		if a == b || isTrue[[2]int{a, b}] {
			continue
		}
		isTrue[[2]int{a, b}] = true
		isTrue[[2]int{b, a}] = true
		src = append(src, a)
		dst = append(dst, b)
		y = append(y, 0)
		nFalse--
	}
	return src, dst, y
}

func (g *Generator) sectorOf(phi float64) int {
	frac := wrapAngle(phi)/(2*math.Pi) + 0.5
	s := int(frac * float64(g.cfg.Sectors))
	if s >= g.cfg.Sectors {
		s = g.cfg.Sectors - 1
	}
	if s < 0 {
		s = 0
	}
	return s
}

// wrapAngle maps an angle into (-pi, pi].
func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
