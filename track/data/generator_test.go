package data

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonum.org/v1/gonum/mat"
)

func fixedConfig(seed int64) GeneratorConfig {
	return GeneratorConfig{
		Particles: 4,
		MinHits:   3,
		MaxHits:   3,
		NoiseHits: 5,
		Sectors:   2,
		PtMin:     0.1,
		PtMax:     5.0,
		PosNoise:  0.02,
		Seed:      seed,
	}
}

func TestNewGenerator_ZeroConfig_UsesDefaults(t *testing.T) {
	g, err := NewGenerator(GeneratorConfig{})
	require.NoError(t, err)

	def := DefaultGeneratorConfig()
	assert.Equal(t, def.Particles, g.cfg.Particles)
	assert.Equal(t, def.NoiseHits, g.cfg.NoiseHits)
	assert.Equal(t, def.PtMax, g.cfg.PtMax)
}

func TestNewGenerator_InvalidConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  GeneratorConfig
	}{
		{"negative particles", GeneratorConfig{Particles: -1}},
		{"max hits below min", GeneratorConfig{MinHits: 5, MaxHits: 2}},
		{"negative noise hits", GeneratorConfig{NoiseHits: -2}},
		{"negative sectors", GeneratorConfig{Sectors: -1}},
		{"pt max below min", GeneratorConfig{PtMin: 2, PtMax: 1}},
		{"negative position noise", GeneratorConfig{PosNoise: -0.1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGenerator(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestEvent_SameSeed_IsReproducible(t *testing.T) {
	g1, err := NewGenerator(fixedConfig(11))
	require.NoError(t, err)
	g2, err := NewGenerator(fixedConfig(11))
	require.NoError(t, err)

	a, b := g1.Event(), g2.Event()
	assert.True(t, mat.Equal(a.X, b.X))
	assert.Equal(t, a.ParticleID, b.ParticleID)
	assert.Equal(t, a.Y, b.Y)
}

func TestEvent_DifferentSeeds_Differ(t *testing.T) {
	g1, err := NewGenerator(fixedConfig(1))
	require.NoError(t, err)
	g2, err := NewGenerator(fixedConfig(2))
	require.NoError(t, err)

	assert.False(t, mat.Equal(g1.Event().X, g2.Event().X))
}

func TestEvent_HitBookkeeping(t *testing.T) {
	// GIVEN 4 particles with exactly 3 hits each plus 5 noise hits
	g, err := NewGenerator(fixedConfig(3))
	require.NoError(t, err)
	b := g.Event()

	// THEN the event holds 17 aligned hits
	require.NoError(t, b.Validate())
	assert.Equal(t, 17, b.NumNodes())

	perPid := map[int64]int{}
	for i, pid := range b.ParticleID {
		perPid[pid]++
		if pid == 0 {
			assert.Zero(t, b.Pt[i], "noise hit %d must carry pt 0", i)
			assert.False(t, b.Reconstructable[i], "noise hit %d", i)
		} else {
			assert.GreaterOrEqual(t, b.Pt[i], 0.1, "hit %d", i)
			assert.LessOrEqual(t, b.Pt[i], 5.0, "hit %d", i)
			assert.True(t, b.Reconstructable[i], "3-hit particles are reconstructable")
		}
	}
	assert.Equal(t, 5, perPid[0])
	for pid := int64(1); pid <= 4; pid++ {
		assert.Equal(t, 3, perPid[pid], "pid %d", pid)
	}
}

func TestEvent_ShortTracks_AreNotReconstructable(t *testing.T) {
	cfg := fixedConfig(4)
	cfg.MinHits = 2
	cfg.MaxHits = 2
	g, err := NewGenerator(cfg)
	require.NoError(t, err)

	b := g.Event()
	for i, pid := range b.ParticleID {
		if pid > 0 {
			assert.False(t, b.Reconstructable[i], "2-hit particles fall below the threshold")
		}
	}
}

func TestEvent_SectorsWithinRange(t *testing.T) {
	cfg := fixedConfig(5)
	cfg.Sectors = 4
	g, err := NewGenerator(cfg)
	require.NoError(t, err)

	b := g.Event()
	seen := map[int]bool{}
	for i, s := range b.Sector {
		assert.GreaterOrEqual(t, s, 0, "hit %d", i)
		assert.Less(t, s, 4, "hit %d", i)
		seen[s] = true
	}
	assert.Greater(t, len(seen), 1, "hits should spread over sectors")
}

func TestEvent_FeatureColumns_AreConsistent(t *testing.T) {
	g, err := NewGenerator(fixedConfig(6))
	require.NoError(t, err)

	b := g.Event()
	for i := 0; i < b.NumNodes(); i++ {
		row := b.X.RawRowView(i)
		x, y, r, phi := row[0], row[1], row[2], row[3]
		assert.InDelta(t, math.Hypot(x, y), r, 1e-12, "hit %d radius", i)
		assert.InDelta(t, math.Atan2(y, x), phi, 1e-12, "hit %d angle", i)
	}
}

func TestEvent_TrueEdges_ConnectSameParticle(t *testing.T) {
	g, err := NewGenerator(fixedConfig(7))
	require.NoError(t, err)
	b := g.Event()

	trueEdges, falseEdges := 0, 0
	for e, label := range b.Y {
		src, dst := b.EdgeIndex[0][e], b.EdgeIndex[1][e]
		switch label {
		case 1:
			trueEdges++
			assert.Equal(t, b.ParticleID[src], b.ParticleID[dst], "edge %d", e)
			assert.Greater(t, b.ParticleID[src], int64(0), "edge %d joins real hits", e)
			// True edges point outward through the layers.
			assert.Less(t, b.X.At(src, 2), b.X.At(dst, 2), "edge %d", e)
		case 0:
			falseEdges++
		default:
			t.Fatalf("edge %d: label %v is neither 0 nor 1", e, label)
		}
	}
	// 4 particles with 3 hits give 2 true edges each; the false edges are
	// sampled at the configured 1:1 ratio.
	assert.Equal(t, 8, trueEdges)
	assert.Greater(t, falseEdges, 0)
}

func TestEvent_EdgeAttr_HoldsWrappedDeltas(t *testing.T) {
	g, err := NewGenerator(fixedConfig(8))
	require.NoError(t, err)
	b := g.Event()

	require.NotNil(t, b.EdgeAttr)
	rows, cols := b.EdgeAttr.Dims()
	assert.Equal(t, b.NumEdges(), rows)
	assert.Equal(t, EdgeFeatureDim, cols)
	for e := 0; e < rows; e++ {
		dphi := b.EdgeAttr.At(e, 1)
		assert.Greater(t, dphi, -math.Pi, "edge %d", e)
		assert.LessOrEqual(t, dphi, math.Pi, "edge %d", e)
	}
}

func TestEvents_ProducesIndependentBatches(t *testing.T) {
	g, err := NewGenerator(fixedConfig(9))
	require.NoError(t, err)

	batches := g.Events(3)
	require.Len(t, batches, 3)
	assert.False(t, mat.Equal(batches[0].X, batches[1].X))
	assert.False(t, mat.Equal(batches[1].X, batches[2].X))
}
