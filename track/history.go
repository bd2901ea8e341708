package track

import "math"

// History accumulates one row of named values per epoch. Rows are append-only
// and indexed by the epoch counter at the time they were recorded.
type History struct {
	epochs []int
	rows   []map[string]float64
}

// Append records a row for the given epoch. The values map is copied.
func (h *History) Append(epoch int, values map[string]float64) {
	row := make(map[string]float64, len(values))
	for k, v := range values {
		row[k] = v
	}
	h.epochs = append(h.epochs, epoch)
	h.rows = append(h.rows, row)
}

// Len returns the number of recorded rows.
func (h *History) Len() int { return len(h.rows) }

// Epoch returns the epoch index of row i.
func (h *History) Epoch(i int) int { return h.epochs[i] }

// Row returns the values of row i. The returned map must not be modified.
func (h *History) Row(i int) map[string]float64 { return h.rows[i] }

// Last returns the most recent epoch and row, or false when empty.
func (h *History) Last() (int, map[string]float64, bool) {
	if len(h.rows) == 0 {
		return 0, nil, false
	}
	i := len(h.rows) - 1
	return h.epochs[i], h.rows[i], true
}

// Series returns the per-epoch values of one name, NaN where a row does not
// carry it.
func (h *History) Series(name string) []float64 {
	out := make([]float64, len(h.rows))
	for i, row := range h.rows {
		if v, ok := row[name]; ok {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
