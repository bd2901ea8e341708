package track

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/GageDeZoort/gnn-tracking/track/nn"
)

// The following short names appear throughout the package:
// W: edge weights
// B: condensation likelihoods
// H: latent clustering coordinates
// Y: edge truth labels
// P: predicted track parameters

// Outputs is the uniform record assembled for every evaluated batch: the
// model outputs plus the forwarded truth fields that losses and metrics
// consume. Model output fields are nil when the current model configuration
// does not compute them; consumers must treat nil as "not computed", never
// as zero.
type Outputs struct {
	// EdgeWeight scores each candidate edge (W).
	EdgeWeight []float64
	// Latent holds the clustering coordinates per hit (H).
	Latent *mat.Dense
	// Beta is the condensation likelihood per hit (B).
	Beta []float64
	// TrackParams are predicted track parameters per hit (P), optional.
	TrackParams *mat.Dense

	// Truth fields forwarded from the batch.
	Y               []float64
	ParticleID      []int64
	Pt              []float64
	Reconstructable []bool
	Sector          []int
	EdgeIndex       [2][]int
	NodeFeatures    *mat.Dense
}

// Model maps a graph batch to named output tensors. Implementations fill only
// the output fields they compute and leave the truth fields alone; the
// evaluator forwards those.
type Model interface {
	Apply(b *Batch) (*Outputs, error)
}

// TrainableModel additionally exposes reverse-mode gradient accumulation and
// parameter access so the trainer can run gradient updates.
type TrainableModel interface {
	Model
	// Backward folds gradients with respect to the outputs of the most recent
	// Apply into the parameter gradients.
	Backward(g *OutputGrads)
	// Params returns the trainable parameters for the optimizer.
	Params() []*nn.Param
	// ZeroGrads clears all accumulated parameter gradients.
	ZeroGrads()
}

// Evaluator runs a model on one batch and assembles the Outputs record.
type Evaluator struct {
	Model Model
	Cuts  TruthCutConfig
}

// Evaluate applies the model to b. With applyTruthCuts set and a non-trivial
// cut configuration, the batch is masked and reindexed first; trivial
// configurations bypass masked-batch construction entirely. With maskPIDs
// set, the forwarded particle ids of non-reconstructable hits are zeroed so
// they count as noise downstream.
func (e *Evaluator) Evaluate(b *Batch, maskPIDs, applyTruthCuts bool) (*Outputs, error) {
	if applyTruthCuts && !e.Cuts.Trivial() {
		b = ApplyMask(b, e.Cuts.Masks(b))
	}
	out, err := e.Model.Apply(b)
	if err != nil {
		return nil, fmt.Errorf("track: model apply: %w", err)
	}
	if out == nil {
		out = &Outputs{}
	}
	pid := b.ParticleID
	if maskPIDs {
		pid = make([]int64, len(b.ParticleID))
		for i, id := range b.ParticleID {
			if b.Reconstructable[i] {
				pid[i] = id
			}
		}
	}
	out.Y = b.Y
	out.ParticleID = pid
	out.Pt = b.Pt
	out.Reconstructable = b.Reconstructable
	out.Sector = b.Sector
	out.EdgeIndex = b.EdgeIndex
	out.NodeFeatures = b.X
	return out, nil
}
