package track

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/GageDeZoort/gnn-tracking/track/nn"
)

// paramState is one parameter tensor flattened for serialization.
type paramState struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

// checkpointState is the gob payload of a checkpoint: enough to resume
// training where it stopped.
type checkpointState struct {
	Epoch     int
	Params    []paramState
	Optimizer nn.State
}

// CheckpointName generates a timestamped checkpoint file name.
func CheckpointName() string {
	return time.Now().Format("060102_150405") + "_model.ckpt"
}

// checkpointPath resolves a user-supplied path: empty generates a
// timestamped name under the checkpoint directory, a bare file name lands in
// the checkpoint directory, anything with a separator is used as given.
func (t *Trainer) checkpointPath(path string) string {
	if path == "" {
		return filepath.Join(t.checkpointDir, CheckpointName())
	}
	if !strings.ContainsRune(path, os.PathSeparator) {
		return filepath.Join(t.checkpointDir, path)
	}
	return path
}

// SaveCheckpoint writes the epoch counter, model parameters and optimizer
// state to path (resolved by the checkpoint path rules), overwriting any
// existing file, and returns the resolved path.
func (t *Trainer) SaveCheckpoint(path string) (string, error) {
	resolved := t.checkpointPath(path)
	logrus.Infof("Saving checkpoint to %s", resolved)
	state := checkpointState{
		Epoch:     t.epoch,
		Optimizer: t.opt.State(),
	}
	for _, p := range t.model.Params() {
		rows, cols := p.W.Dims()
		data := make([]float64, rows*cols)
		copy(data, p.W.RawMatrix().Data)
		state.Params = append(state.Params, paramState{
			Name: p.Name,
			Rows: rows,
			Cols: cols,
			Data: data,
		})
	}
	f, err := os.Create(resolved)
	if err != nil {
		return "", fmt.Errorf("track: creating checkpoint: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(state); err != nil {
		return "", fmt.Errorf("track: encoding checkpoint: %w", err)
	}
	return resolved, nil
}

// LoadCheckpoint restores model parameters, optimizer state and the epoch
// counter from a checkpoint written by SaveCheckpoint. The model and
// optimizer must match the checkpoint's shapes and kind.
func (t *Trainer) LoadCheckpoint(path string) error {
	resolved := t.checkpointPath(path)
	f, err := os.Open(resolved)
	if err != nil {
		return fmt.Errorf("track: opening checkpoint: %w", err)
	}
	defer f.Close()
	var state checkpointState
	if err := gob.NewDecoder(f).Decode(&state); err != nil {
		return fmt.Errorf("track: decoding checkpoint: %w", err)
	}

	saved := make(map[string]paramState, len(state.Params))
	for _, ps := range state.Params {
		saved[ps.Name] = ps
	}
	params := t.model.Params()
	if len(params) != len(saved) {
		return fmt.Errorf("track: checkpoint has %d parameters, model has %d", len(saved), len(params))
	}
	for _, p := range params {
		ps, ok := saved[p.Name]
		if !ok {
			return fmt.Errorf("track: checkpoint is missing parameter %q", p.Name)
		}
		rows, cols := p.W.Dims()
		if ps.Rows != rows || ps.Cols != cols {
			return fmt.Errorf("track: parameter %q is %dx%d in the checkpoint but %dx%d in the model",
				p.Name, ps.Rows, ps.Cols, rows, cols)
		}
		copy(p.W.RawMatrix().Data, ps.Data)
	}
	if err := t.opt.LoadState(state.Optimizer); err != nil {
		return err
	}
	t.epoch = state.Epoch
	return nil
}
