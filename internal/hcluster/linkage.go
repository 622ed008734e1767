package hcluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	MethodSingle   = "single"
	MethodAverage  = "average"
	MethodComplete = "complete"

	MetricEuclidean = "euclidean"
	MetricCosine    = "cosine"
)

// Merge is one agglomeration step. Left and Right are node ids: leaves are
// 0..n-1, the node created by merge step k is n+k.
type Merge struct {
	Left     int
	Right    int
	Distance float64
	Size     int
}

// PdistRows computes the condensed pairwise distance vector between the
// rows of m under the given metric.
func PdistRows(m mat.Matrix, metric string) ([]float64, error) {
	r, c := m.Dims()
	if r < 2 {
		return nil, fmt.Errorf("need at least two rows: %d", r)
	}
	row := func(i int) []float64 {
		out := make([]float64, c)
		for j := 0; j < c; j++ {
			out[j] = m.At(i, j)
		}
		return out
	}
	rows := make([][]float64, r)
	for i := 0; i < r; i++ {
		rows[i] = row(i)
	}

	dist := make([]float64, 0, r*(r-1)/2)
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			var d float64
			switch metric {
			case MetricEuclidean:
				sum := 0.0
				for k := 0; k < c; k++ {
					diff := rows[i][k] - rows[j][k]
					sum += diff * diff
				}
				d = math.Sqrt(sum)
			case MetricCosine:
				var dot, ni, nj float64
				for k := 0; k < c; k++ {
					dot += rows[i][k] * rows[j][k]
					ni += rows[i][k] * rows[i][k]
					nj += rows[j][k] * rows[j][k]
				}
				if ni == 0 || nj == 0 {
					d = 1
				} else {
					d = 1 - dot/math.Sqrt(ni*nj)
				}
			default:
				return nil, fmt.Errorf("unsupported metric: %s", metric)
			}
			dist = append(dist, d)
		}
	}
	return dist, nil
}

// Linkage builds an agglomerative clustering tree over n observations from
// their condensed distance vector, using Lance-Williams updates for the
// supported methods.
func Linkage(dists []float64, n int, method string) ([]Merge, error) {
	if n < 2 {
		return nil, fmt.Errorf("need at least two observations: %d", n)
	}
	if len(dists) != n*(n-1)/2 {
		return nil, fmt.Errorf("condensed distance length mismatch: got=%d want=%d", len(dists), n*(n-1)/2)
	}
	switch method {
	case MethodSingle, MethodAverage, MethodComplete:
	default:
		return nil, fmt.Errorf("unsupported linkage method: %s", method)
	}

	// Working distance matrix between active clusters.
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d[i][j] = dists[k]
			d[j][i] = dists[k]
			k++
		}
	}

	id := make([]int, n)   // current node id per active slot
	size := make([]int, n) // cluster size per active slot
	active := make([]bool, n)
	for i := 0; i < n; i++ {
		id[i] = i
		size[i] = 1
		active[i] = true
	}

	merges := make([]Merge, 0, n-1)
	for step := 0; step < n-1; step++ {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if d[i][j] < best {
					best = d[i][j]
					bi, bj = i, j
				}
			}
		}

		merges = append(merges, Merge{
			Left:     id[bi],
			Right:    id[bj],
			Distance: best,
			Size:     size[bi] + size[bj],
		})

		// Fold cluster bj into slot bi with the Lance-Williams update.
		for m := 0; m < n; m++ {
			if !active[m] || m == bi || m == bj {
				continue
			}
			switch method {
			case MethodSingle:
				d[bi][m] = math.Min(d[bi][m], d[bj][m])
			case MethodComplete:
				d[bi][m] = math.Max(d[bi][m], d[bj][m])
			case MethodAverage:
				ni, nj := float64(size[bi]), float64(size[bj])
				d[bi][m] = (ni*d[bi][m] + nj*d[bj][m]) / (ni + nj)
			}
			d[m][bi] = d[bi][m]
		}
		id[bi] = n + step
		size[bi] += size[bj]
		active[bj] = false
	}
	return merges, nil
}
