package data

import (
	"fmt"
	"math/rand"

	"github.com/GageDeZoort/gnn-tracking/track"
)

// Loader serves an in-memory list of batches. It implements track.Loader.
type Loader struct {
	batches []*track.Batch
}

// NewLoader wraps a batch list.
func NewLoader(batches []*track.Batch) *Loader {
	return &Loader{batches: batches}
}

// GenerateLoader builds a loader holding freshly generated events.
func GenerateLoader(cfg GeneratorConfig, events int) (*Loader, error) {
	if events < 1 {
		return nil, fmt.Errorf("data: event count must be positive, got %d", events)
	}
	gen, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}
	return NewLoader(gen.Events(events)), nil
}

// Len returns the number of batches.
func (l *Loader) Len() int { return len(l.batches) }

// Batch returns the i-th batch in the current order.
func (l *Loader) Batch(i int) *track.Batch { return l.batches[i] }

// Shuffle permutes the batch order in place.
func (l *Loader) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(l.batches), func(i, j int) {
		l.batches[i], l.batches[j] = l.batches[j], l.batches[i]
	})
}
