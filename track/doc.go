// Package track implements the training loop of the track-condensation
// approach to particle tracking: a model embeds detector hits into a latent
// space where the hits of one particle condense into one cluster, driven by
// weighted losses over edge weights, condensation likelihoods and latent
// coordinates.
//
// # Reading Guide
//
// Start with these files to understand the training kernel:
//   - batch.go: the graph batch (hit features, truth, candidate edges)
//   - mask.go: truth cuts and the node/edge masking engine
//   - evaluate.go: the evaluator that runs a model and forwards truth
//   - loss.go: loss aggregation, flattening and weighting
//   - trainer.go: the epoch loop, test metrics and clustering scans
//
// # Architecture
//
// The track package owns the control flow; specialized pieces live in
// sub-packages:
//   - track/nn/: parameter tensors, optimizers, learning-rate schedules
//   - track/model/: the reference condensation network
//   - track/metrics/: binary edge-classification metrics and ROC curves
//   - track/cluster/: DBSCAN, clustering metrics, hyperparameter scanner
//   - track/search/: the trial/study optimization engine behind the scanner
//   - track/data/: synthetic event generation and batch loading
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - Model / TrainableModel: forward evaluation, reverse pass, parameters
//   - LossFunc: batch outputs to scalar-or-composite loss terms with grads
//   - WeightStrategy: per-term loss weights, adapted once per epoch
//   - Loader: indexed batch access with epoch shuffling
//   - cluster.Algorithm / cluster.Metric: pluggable clustering and scoring
//   - search.Sampler / search.Pruner / search.EarlyStopper: search policy
package track
