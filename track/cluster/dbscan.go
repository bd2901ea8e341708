package cluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Noise is the label assigned to points that belong to no cluster.
const Noise = -1

// Algorithm clusters the rows of a feature matrix under named
// hyperparameters and labels every row; noise rows get the Noise label.
type Algorithm func(points *mat.Dense, params map[string]float64) ([]int, error)

// DBSCAN density-clusters the rows of points. It reads two parameters:
// "eps", the neighborhood radius, and "min_samples", the neighborhood size
// (including the point itself) that makes a point a core point. Border
// points join the first cluster that reaches them; everything else is noise.
func DBSCAN(points *mat.Dense, params map[string]float64) ([]int, error) {
	eps, ok := params["eps"]
	if !ok {
		return nil, fmt.Errorf("cluster: dbscan requires parameter %q", "eps")
	}
	msRaw, ok := params["min_samples"]
	if !ok {
		return nil, fmt.Errorf("cluster: dbscan requires parameter %q", "min_samples")
	}
	minSamples := int(msRaw)
	if eps <= 0 || math.IsNaN(eps) {
		return nil, fmt.Errorf("cluster: dbscan eps must be positive, got %v", eps)
	}
	if minSamples < 1 {
		return nil, fmt.Errorf("cluster: dbscan min_samples must be at least 1, got %d", minSamples)
	}
	if points == nil {
		return []int{}, nil
	}

	n, _ := points.Dims()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	visited := make([]bool, n)
	next := 0
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		visited[i] = true
		neighbors := regionQuery(points, i, eps)
		if len(neighbors) < minSamples {
			continue
		}
		labels[i] = next
		// Expand the cluster breadth-first over density-reachable points.
		for q := 0; q < len(neighbors); q++ {
			j := neighbors[q]
			if labels[j] == Noise {
				labels[j] = next
			}
			if visited[j] {
				continue
			}
			visited[j] = true
			more := regionQuery(points, j, eps)
			if len(more) >= minSamples {
				neighbors = append(neighbors, more...)
			}
		}
		next++
	}
	return labels, nil
}

func regionQuery(points *mat.Dense, i int, eps float64) []int {
	n, dim := points.Dims()
	row := points.RawRowView(i)
	var neighbors []int
	for j := 0; j < n; j++ {
		other := points.RawRowView(j)
		d2 := 0.0
		for k := 0; k < dim; k++ {
			diff := row[k] - other[k]
			d2 += diff * diff
		}
		if d2 <= eps*eps {
			neighbors = append(neighbors, j)
		}
	}
	return neighbors
}
