package cluster

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	defaultSVDRestarts    = 30
	defaultDiscretizeIter = 20
)

// SpectralDiscretize rounds a spectral embedding to hard labels by
// alternating between discretizing the rotated embedding and re-fitting
// the rotation from an SVD of the discrete/continuous cross-product, the
// standard spectral-clustering discretization. Restarts are bounded; each
// restart reinitializes the rotation from randomly anchored rows.
type SpectralDiscretize struct{}

func (SpectralDiscretize) Name() string { return "discretize" }

func (SpectralDiscretize) Cluster(v *mat.Dense, opts Options) ([]int, error) {
	n, k := v.Dims()
	if k > n {
		return nil, fmt.Errorf("%w: embedding has more components (%d) than rows (%d)", ErrConfig, k, n)
	}
	restarts := opts.Restarts
	if restarts <= 0 {
		restarts = defaultSVDRestarts
	}
	maxIter := opts.MaxIter
	if maxIter <= 0 {
		maxIter = defaultDiscretizeIter
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	// Scale columns so each carries sqrt(n) mass and points away from the
	// first row's sign, mirroring the reference normalization.
	vectors := mat.DenseCopyOf(v)
	normOnes := math.Sqrt(float64(n))
	for j := 0; j < k; j++ {
		col := make([]float64, n)
		mat.Col(col, j, vectors)
		norm := 0.0
		for _, x := range col {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			continue
		}
		scale := normOnes / norm
		if col[0] > 0 {
			scale = -scale
		}
		for i := 0; i < n; i++ {
			vectors.Set(i, j, col[i]*scale)
		}
	}

	var labels []int
	for attempt := 0; attempt < restarts; attempt++ {
		rotation := initRotation(vectors, k, rng)
		lastObjective := math.Inf(-1)
		ok := true
		for iter := 0; iter < maxIter; iter++ {
			var rotated mat.Dense
			rotated.Mul(vectors, rotation)

			labels = make([]int, n)
			discrete := mat.NewDense(n, k, nil)
			for i := 0; i < n; i++ {
				best, bestV := 0, math.Inf(-1)
				for j := 0; j < k; j++ {
					if x := rotated.At(i, j); x > bestV {
						best, bestV = j, x
					}
				}
				labels[i] = best
				discrete.Set(i, best, 1)
			}

			var cross mat.Dense
			cross.Mul(discrete.T(), vectors)
			var svd mat.SVD
			if !svd.Factorize(&cross, mat.SVDThin) {
				ok = false
				break
			}
			var u, w mat.Dense
			svd.UTo(&u)
			svd.VTo(&w)
			values := svd.Values(nil)
			sum := 0.0
			for _, s := range values {
				sum += s
			}
			objective := 2 * (float64(n) - sum)
			if math.Abs(objective-lastObjective) < 1e-12 {
				break
			}
			lastObjective = objective
			rotation.Mul(&w, u.T())
		}
		if ok {
			return labels, nil
		}
	}
	return nil, fmt.Errorf("discretization failed to converge after %d restarts", restarts)
}

func initRotation(vectors *mat.Dense, k int, rng *rand.Rand) *mat.Dense {
	n, _ := vectors.Dims()
	rotation := mat.NewDense(k, k, nil)
	first := rng.Intn(n)
	for j := 0; j < k; j++ {
		rotation.Set(j, 0, vectors.At(first, j))
	}
	c := make([]float64, n)
	for col := 1; col < k; col++ {
		minIdx, minVal := 0, math.Inf(1)
		for i := 0; i < n; i++ {
			dot := 0.0
			for j := 0; j < k; j++ {
				dot += vectors.At(i, j) * rotation.At(j, col-1)
			}
			c[i] += math.Abs(dot)
			if c[i] < minVal {
				minIdx, minVal = i, c[i]
			}
		}
		for j := 0; j < k; j++ {
			rotation.Set(j, col, vectors.At(minIdx, j))
		}
	}
	return rotation
}
