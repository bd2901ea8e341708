package track

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/GageDeZoort/gnn-tracking/track/cluster"
	"github.com/GageDeZoort/gnn-tracking/track/metrics"
	"github.com/GageDeZoort/gnn-tracking/track/nn"
)

// Loader iterates graph batches in an order Shuffle can permute.
type Loader interface {
	Len() int
	Batch(i int) *Batch
	Shuffle(rng *rand.Rand)
}

// Loaders bundles the data splits the trainer consumes. All three are
// required: training drives the gradient updates, validation feeds the
// in-training test steps, and the held-out test split is reserved for final
// evaluation.
type Loaders struct {
	Train Loader
	Val   Loader
	Test  Loader
}

// ClusterFunc runs a clustering hyperparameter scan over the latent graphs
// collected during a test step and reports figures of merit. A nil result
// with a nil error skips the merge for this epoch.
type ClusterFunc func(graphs []*mat.Dense, truth [][]int64, sectors [][]int, pts [][]float64, reconstructable [][]bool, epoch int, startParams map[string]float64) (*cluster.ScanResult, error)

// TrainHook runs after each training epoch with the averaged train losses.
type TrainHook func(t *Trainer, results map[string]float64)

// TestHook runs after each test pass with the averaged metrics.
type TestHook func(t *Trainer, results map[string]float64)

// BatchHook runs after each training batch has been evaluated, before the
// gradient update.
type BatchHook func(t *Trainer, epoch, batchIdx int, out *Outputs, b *Batch)

// maxFPRCaps are the false-positive-rate caps the partial ROC-AUC is
// evaluated at during test steps.
var maxFPRCaps = []float64{0.05, 0.1, 0.2}

// Trainer drives the training loop of a condensation model: per-epoch
// gradient updates over the train split, loss bookkeeping and weight
// adaptation, periodic evaluation with edge-classification metrics and
// clustering scans, checkpointing, and interruption handling.
type Trainer struct {
	model  TrainableModel
	ev     Evaluator
	losses *LossSet

	loaders Loaders
	opt     nn.Optimizer
	sched   nn.LRScheduler
	weights WeightStrategy

	clusterNames []string
	clusterFns   map[string]ClusterFunc
	bestParams   map[string]map[string]float64

	cuts                    TruthCutConfig
	ptThlds                 []float64
	ecThreshold             float64
	maxBatchesForClustering int
	maxBatches              int
	skipTest                bool
	checkpointDir           string

	epoch int
	rng   *rand.Rand

	trainHist History
	testHist  History

	trainHooks []TrainHook
	testHooks  []TestHook
	batchHooks []BatchHook
}

// TrainerOption adjusts a trainer at construction time.
type TrainerOption func(*Trainer)

// WithOptimizer replaces the default Adam optimizer.
func WithOptimizer(opt nn.Optimizer) TrainerOption {
	return func(t *Trainer) { t.opt = opt }
}

// WithLRScheduler installs a per-epoch learning-rate schedule.
func WithLRScheduler(s nn.LRScheduler) TrainerOption {
	return func(t *Trainer) { t.sched = s }
}

// WithWeights replaces the default equal constant loss weights.
func WithWeights(w WeightStrategy) TrainerOption {
	return func(t *Trainer) { t.weights = w }
}

// WithClusterScan registers a named clustering function invoked during test
// steps. The name prefixes the best-parameter metrics, as in
// "best_dbscan_eps".
func WithClusterScan(name string, fn ClusterFunc) TrainerOption {
	return func(t *Trainer) {
		if t.clusterFns == nil {
			t.clusterFns = make(map[string]ClusterFunc)
		}
		if _, dup := t.clusterFns[name]; !dup {
			t.clusterNames = append(t.clusterNames, name)
		}
		t.clusterFns[name] = fn
	}
}

// WithTruthCuts sets the truth cuts applied during training evaluation and
// the cut variant of the test step.
func WithTruthCuts(c TruthCutConfig) TrainerOption {
	return func(t *Trainer) { t.cuts = c }
}

// WithPtThresholds replaces the default pt thresholds [0.9, 1.5] used for
// edge-classification metrics during test steps.
func WithPtThresholds(thlds []float64) TrainerOption {
	return func(t *Trainer) { t.ptThlds = append([]float64{}, thlds...) }
}

// WithECThreshold sets the edge-classification threshold used during test
// steps; training is unaffected.
func WithECThreshold(thld float64) TrainerOption {
	return func(t *Trainer) { t.ecThreshold = thld }
}

// WithMaxBatchesForClustering caps how many leading test batches feed the
// clustering scans.
func WithMaxBatchesForClustering(n int) TrainerOption {
	return func(t *Trainer) { t.maxBatchesForClustering = n }
}

// WithMaxBatches caps the batches processed per training epoch, useful to
// reach the test step quickly in smoke runs. Zero removes the cap.
func WithMaxBatches(n int) TrainerOption {
	return func(t *Trainer) { t.maxBatches = n }
}

// WithSkipTestDuringTraining disables the test pass inside Step.
func WithSkipTestDuringTraining() TrainerOption {
	return func(t *Trainer) { t.skipTest = true }
}

// WithCheckpointDir sets the directory checkpoints default into.
func WithCheckpointDir(dir string) TrainerOption {
	return func(t *Trainer) { t.checkpointDir = dir }
}

// WithSeed seeds the trainer's private RNG, which drives train-loader
// shuffling.
func WithSeed(seed int64) TrainerOption {
	return func(t *Trainer) { t.rng = rand.New(rand.NewSource(seed)) }
}

// NewTrainer builds a trainer over the model, data splits and named loss
// functions. Defaults: Adam with lr 5e-4, equal constant loss weights, no
// scheduler, pt thresholds [0.9, 1.5], edge-classification threshold 0.5,
// at most 10 batches feeding clustering, checkpoints in the working
// directory.
func NewTrainer(model TrainableModel, loaders Loaders, lossFuncs map[string]LossFunc, opts ...TrainerOption) (*Trainer, error) {
	if model == nil {
		return nil, fmt.Errorf("track: trainer needs a model")
	}
	if loaders.Train == nil || loaders.Val == nil || loaders.Test == nil {
		return nil, fmt.Errorf("track: trainer needs train, val and test loaders")
	}
	if len(lossFuncs) == 0 {
		return nil, fmt.Errorf("track: trainer needs at least one loss function")
	}
	t := &Trainer{
		model:                   model,
		loaders:                 loaders,
		ptThlds:                 []float64{0.9, 1.5},
		ecThreshold:             0.5,
		maxBatchesForClustering: 10,
		checkpointDir:           ".",
		bestParams:              make(map[string]map[string]float64),
		rng:                     rand.New(rand.NewSource(0)),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.weights == nil {
		w, err := NewConstantWeights(nil)
		if err != nil {
			return nil, err
		}
		t.weights = w
	}
	if t.opt == nil {
		opt, err := nn.NewAdam(nn.DefaultAdamConfig())
		if err != nil {
			return nil, err
		}
		t.opt = opt
	}
	t.losses = &LossSet{Funcs: lossFuncs, Weights: t.weights}
	t.ev = Evaluator{Model: model, Cuts: t.cuts}
	return t, nil
}

// Epoch returns the number of completed training epochs.
func (t *Trainer) Epoch() int { return t.epoch }

// TrainHistory returns the per-epoch averaged training losses.
func (t *Trainer) TrainHistory() *History { return &t.trainHist }

// TestHistory returns the per-test-pass averaged metrics.
func (t *Trainer) TestHistory() *History { return &t.testHist }

// AddTrainHook registers a hook run after each training epoch.
func (t *Trainer) AddTrainHook(h TrainHook) { t.trainHooks = append(t.trainHooks, h) }

// AddTestHook registers a hook run after each test pass.
func (t *Trainer) AddTestHook(h TestHook) { t.testHooks = append(t.testHooks, h) }

// AddBatchHook registers a hook run after each evaluated training batch.
func (t *Trainer) AddBatchHook(h BatchHook) { t.batchHooks = append(t.batchHooks, h) }

// trainStep runs one epoch of gradient updates and returns the averaged
// losses: "total", each flattened term, and each term again under a
// "_weighted" suffix.
func (t *Trainer) trainStep() (map[string]float64, error) {
	t.loaders.Train.Shuffle(t.rng)
	acc := make(map[string][]float64)
	rawNames := make(map[string]bool)
	n := t.loaders.Train.Len()
	for batchIdx := 0; batchIdx < n; batchIdx++ {
		if t.maxBatches > 0 && batchIdx > t.maxBatches {
			break
		}
		b := t.loaders.Train.Batch(batchIdx)
		out, err := t.ev.Evaluate(b, true, true)
		if err != nil {
			return nil, err
		}
		for _, hook := range t.batchHooks {
			hook(t, t.epoch, batchIdx, out, b)
		}
		total, perName, grads, err := t.losses.Aggregate(out)
		if err != nil {
			return nil, err
		}
		t.model.ZeroGrads()
		if grads != nil {
			t.model.Backward(grads)
		}
		t.opt.Step(t.model.Params())

		if batchIdx%10 == 0 {
			t.logInlineLosses(batchIdx, n, perName)
		}
		acc["total"] = append(acc["total"], total)
		for name, v := range perName {
			rawNames[name] = true
			acc[name] = append(acc[name], v)
			acc[name+"_weighted"] = append(acc[name+"_weighted"], v*t.weights.WeightOf(name))
		}
	}
	means := nanMeans(acc)
	raw := make(map[string]float64, len(rawNames))
	for name := range rawNames {
		raw[name] = means[name]
	}
	t.weights.Update(raw)
	t.trainHist.Append(t.epoch, means)
	for _, hook := range t.trainHooks {
		hook(t, means)
	}
	return means, nil
}

// TestStep evaluates the model without truth cuts and, when the truth-cut
// configuration is non-trivial, once more with cuts applied, merging the cut
// results under the prefix "tc_". val selects the validation loader, the
// in-training choice; false selects the held-out test loader.
func (t *Trainer) TestStep(val bool) (map[string]float64, error) {
	results, err := t.singleTestStep(t.ecThreshold, val, false)
	if err != nil {
		return nil, err
	}
	if !t.cuts.Trivial() {
		withCuts, err := t.singleTestStep(t.ecThreshold, val, true)
		if err != nil {
			return nil, err
		}
		for k, v := range withCuts {
			results["tc_"+k] = v
		}
	}
	return results, nil
}

// singleTestStep iterates the chosen loader without gradient updates,
// averaging losses and edge-classification metrics per pt threshold, then
// feeds the leading batches' latent coordinates to the clustering scans.
func (t *Trainer) singleTestStep(thld float64, val, applyTruthCuts bool) (map[string]float64, error) {
	loader := t.loaders.Test
	if val {
		loader = t.loaders.Val
	}

	var graphs []*mat.Dense
	var truths [][]int64
	var sectors [][]int
	var pts [][]float64
	var recos [][]bool

	acc := make(map[string][]float64)
	for batchIdx := 0; batchIdx < loader.Len(); batchIdx++ {
		b := loader.Batch(batchIdx)
		out, err := t.ev.Evaluate(b, false, applyTruthCuts)
		if err != nil {
			return nil, err
		}
		total, perName, _, err := t.losses.Aggregate(out)
		if err != nil {
			return nil, err
		}

		if out.EdgeWeight != nil {
			y := boolLabels(out.Y)
			for _, ptMin := range t.ptThlds {
				mask := edgePtMask(out.EdgeIndex, out.Pt, ptMin)
				pred := filterFloats(out.EdgeWeight, mask)
				truth := filterBools(y, mask)
				bcs := metrics.NewBinaryStats(pred, truth, thld)
				for k, v := range bcs.All() {
					key := metrics.DenotePt(k, ptMin)
					acc[key] = append(acc[key], v)
				}
				for k, v := range metrics.Maximized(pred, truth) {
					key := metrics.DenotePt(k, ptMin)
					acc[key] = append(acc[key], v)
				}
				key := metrics.DenotePt("roc_auc", ptMin)
				acc[key] = append(acc[key], metrics.ROCAUC(pred, truth))
				for _, maxFPR := range maxFPRCaps {
					key := metrics.DenotePt(fmt.Sprintf("roc_auc_%.0fFPR", maxFPR*100), ptMin)
					acc[key] = append(acc[key], metrics.ROCAUCMaxFPR(pred, truth, maxFPR))
				}
			}
		}

		acc["total"] = append(acc["total"], total)
		for name, v := range perName {
			acc[name] = append(acc[name], v)
			acc[name+"_weighted"] = append(acc[name+"_weighted"], v*t.weights.WeightOf(name))
		}

		if len(t.clusterNames) > 0 && batchIdx <= t.maxBatchesForClustering {
			graphs = append(graphs, out.Latent)
			truths = append(truths, out.ParticleID)
			sectors = append(sectors, out.Sector)
			pts = append(pts, out.Pt)
			recos = append(recos, out.Reconstructable)
		}
	}

	results := nanMeans(acc)
	for _, name := range t.clusterNames {
		res, err := t.clusterFns[name](graphs, truths, sectors, pts, recos, t.epoch, t.bestParams[name])
		if err != nil {
			return nil, fmt.Errorf("track: clustering scan %q: %w", name, err)
		}
		if res == nil {
			continue
		}
		for k, v := range res.Metrics {
			results[k] = v
		}
		best := res.BestParams()
		t.bestParams[name] = best
		for param, v := range best {
			results[fmt.Sprintf("best_%s_%s", name, param)] = v
		}
	}

	t.testHist.Append(t.epoch, results)
	for _, hook := range t.testHooks {
		hook(t, results)
	}
	return results, nil
}

// Step trains one epoch, tests unless disabled, logs the merged results as a
// table and advances the learning-rate schedule. Train losses appear under a
// "_train" suffix next to the test metrics.
func (t *Trainer) Step() (map[string]float64, error) {
	t.epoch++
	start := time.Now()
	trainLosses, err := t.trainStep()
	if err != nil {
		return nil, err
	}
	logrus.Infof("Training for epoch %d took %s", t.epoch, time.Since(start).Round(time.Millisecond))

	results := make(map[string]float64, 2*len(trainLosses))
	for k, v := range trainLosses {
		results[k+"_train"] = v
	}
	if !t.skipTest {
		start = time.Now()
		testResults, err := t.TestStep(true)
		if err != nil {
			return nil, err
		}
		logrus.Infof("Test step for epoch %d took %s", t.epoch, time.Since(start).Round(time.Millisecond))
		for k, v := range testResults {
			results[k] = v
		}
	}
	t.logResultsTable(results)
	if t.sched != nil {
		t.opt.SetLR(t.sched.LR(t.epoch))
	}
	return results, nil
}

// Train runs Step for the given number of epochs. A user interrupt is
// checked before each epoch; on interruption a checkpoint is saved and
// ErrInterrupted returned. Completion saves a final checkpoint.
func (t *Trainer) Train(epochs int) error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	for i := 0; i < epochs; i++ {
		select {
		case <-sig:
			logrus.Warn("Interrupted, saving checkpoint")
			if _, err := t.SaveCheckpoint(""); err != nil {
				logrus.Errorf("Checkpoint save failed: %v", err)
			}
			return ErrInterrupted
		default:
		}
		if _, err := t.Step(); err != nil {
			return err
		}
	}
	_, err := t.SaveCheckpoint("")
	return err
}

// edgePtMask keeps edges with at least one endpoint above ptMin.
func edgePtMask(edgeIndex [2][]int, pt []float64, ptMin float64) []bool {
	mask := make([]bool, len(edgeIndex[0]))
	for e := range mask {
		mask[e] = pt[edgeIndex[0][e]] > ptMin || pt[edgeIndex[1][e]] > ptMin
	}
	return mask
}

func boolLabels(y []float64) []bool {
	out := make([]bool, len(y))
	for i, v := range y {
		out[i] = v > 0.5
	}
	return out
}

func nanMeans(acc map[string][]float64) map[string]float64 {
	out := make(map[string]float64, len(acc))
	for name, vs := range acc {
		out[name] = metrics.NaNMean(vs)
	}
	return out
}

func (t *Trainer) logInlineLosses(batchIdx, nBatches int, perName map[string]float64) {
	names := sortedNames(perName)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		w := perName[name] * t.weights.WeightOf(name)
		parts = append(parts, fmt.Sprintf("%s_weighted=%10.5f", name, w))
	}
	logrus.Infof("Epoch %2d (%5d/%d): %s", t.epoch, batchIdx, nBatches, strings.Join(parts, ", "))
}

func (t *Trainer) logResultsTable(results map[string]float64) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\tMetric\tValue\n")
	for _, name := range sortedNames(results) {
		marker := ""
		if highlightMetric(name) {
			marker = "-->"
		}
		fmt.Fprintf(w, "%s\t%s\t%.5f\n", marker, name, results[name])
	}
	w.Flush()
	logrus.Infof("Results %d:\n%s", t.epoch, buf.String())
}

// highlightMetric marks the headline metrics in the results table.
func highlightMetric(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "double_majority") {
		return true
	}
	if strings.Contains(lower, "tpr") {
		return true
	}
	if strings.Contains(lower, "roc_auc") && !strings.Contains(lower, "pt") {
		return true
	}
	return false
}

func sortedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
