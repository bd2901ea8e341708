package search

import "errors"

// ErrPruned is returned by an objective to abandon the running trial. The
// study records the trial as pruned and moves on; it is expected control
// flow, not a failure.
var ErrPruned = errors.New("search: trial pruned")
