package cluster

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	defaultKMeansRestarts = 100
	defaultKMeansIters    = 100
)

// KMeans delegates to a Lloyd iteration with k-means++ seeding, restarted
// a bounded number of times for stability; the lowest-inertia run wins.
// The cluster count is a required option.
type KMeans struct{}

func (KMeans) Name() string { return "kmeans" }

func (KMeans) Cluster(v *mat.Dense, opts Options) ([]int, error) {
	n, m := v.Dims()
	k := opts.Clusters
	if k <= 0 {
		return nil, fmt.Errorf("%w: kmeans requires a cluster count", ErrConfig)
	}
	if k > n {
		return nil, fmt.Errorf("%w: kmeans cluster count %d exceeds %d rows", ErrConfig, k, n)
	}
	restarts := opts.Restarts
	if restarts <= 0 {
		restarts = defaultKMeansRestarts
	}
	maxIter := opts.MaxIter
	if maxIter <= 0 {
		maxIter = defaultKMeansIters
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = mat.Row(nil, i, v)
	}

	bestInertia := math.Inf(1)
	var bestLabels []int
	for r := 0; r < restarts; r++ {
		labels, inertia := lloyd(rows, k, m, maxIter, rng)
		if inertia < bestInertia {
			bestInertia = inertia
			bestLabels = labels
		}
	}
	return bestLabels, nil
}

func lloyd(rows [][]float64, k, dim, maxIter int, rng *rand.Rand) ([]int, float64) {
	centers := seedPlusPlus(rows, k, rng)
	labels := make([]int, len(rows))
	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, row := range rows {
			best, bestD := 0, math.Inf(1)
			for c := range centers {
				if d := sqDist(row, centers[c]); d < bestD {
					best, bestD = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		counts := make([]int, k)
		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, dim)
		}
		for i, row := range rows {
			counts[labels[i]]++
			for j, x := range row {
				next[labels[i]][j] += x
			}
		}
		for c := range next {
			if counts[c] == 0 {
				// Reseed an empty cluster to a random observation.
				copy(next[c], rows[rng.Intn(len(rows))])
				continue
			}
			for j := range next[c] {
				next[c][j] /= float64(counts[c])
			}
		}
		centers = next
	}

	inertia := 0.0
	for i, row := range rows {
		inertia += sqDist(row, centers[labels[i]])
	}
	return labels, inertia
}

func seedPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), rows[rng.Intn(len(rows))]...))
	dist := make([]float64, len(rows))
	for len(centers) < k {
		total := 0.0
		for i, row := range rows {
			d := math.Inf(1)
			for _, c := range centers {
				if v := sqDist(row, c); v < d {
					d = v
				}
			}
			dist[i] = d
			total += d
		}
		if total == 0 {
			centers = append(centers, append([]float64(nil), rows[rng.Intn(len(rows))]...))
			continue
		}
		pick := rng.Float64() * total
		acc := 0.0
		chosen := len(rows) - 1
		for i, d := range dist {
			acc += d
			if pick <= acc {
				chosen = i
				break
			}
		}
		centers = append(centers, append([]float64(nil), rows[chosen]...))
	}
	return centers
}

func sqDist(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
