package track

import "errors"

var (
	// ErrDivergence reports a NaN total loss. It aborts the current training
	// attempt: a NaN total means the optimizer has diverged and any checkpoint
	// written afterwards would be corrupt.
	ErrDivergence = errors.New("track: total loss is NaN")

	// ErrInterrupted is returned by Trainer.Train after a user interrupt
	// forced a checkpoint save.
	ErrInterrupted = errors.New("track: training interrupted")
)
