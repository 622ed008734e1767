package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const (
	defaultMixtureIters = 100
	mixtureTol          = 1e-6
	varianceFloor       = 1e-6
)

// GaussianMixture fits a diagonal-covariance Gaussian mixture by
// expectation-maximization and returns hard assignments by posterior
// argmax. The component count falls back to the cluster count option and
// finally to 1.
type GaussianMixture struct{}

func (GaussianMixture) Name() string { return "gmm" }

func (GaussianMixture) Cluster(v *mat.Dense, opts Options) ([]int, error) {
	return fitMixture(v, opts, 0)
}

// BayesianGaussianMixture is the variational flavor: a Dirichlet weight
// prior shrinks the mixing proportions of underpopulated components, so
// the effective cluster count can fall below the configured one.
type BayesianGaussianMixture struct{}

func (BayesianGaussianMixture) Name() string { return "bgmm" }

func (BayesianGaussianMixture) Cluster(v *mat.Dense, opts Options) ([]int, error) {
	k := mixtureComponents(v, opts)
	return fitMixture(v, opts, 1/float64(k))
}

func mixtureComponents(v *mat.Dense, opts Options) int {
	n, _ := v.Dims()
	k := opts.Clusters
	if k <= 0 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

func fitMixture(v *mat.Dense, opts Options, weightPrior float64) ([]int, error) {
	n, dim := v.Dims()
	k := mixtureComponents(v, opts)
	maxIter := opts.MaxIter
	if maxIter <= 0 {
		maxIter = defaultMixtureIters
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		rows[i] = mat.Row(nil, i, v)
	}

	// Farthest-point seeding keeps the initial means spread out.
	means := make([][]float64, k)
	means[0] = append([]float64(nil), rows[rng.Intn(n)]...)
	minDist := make([]float64, n)
	for i := range minDist {
		minDist[i] = sqDist(rows[i], means[0])
	}
	for c := 1; c < k; c++ {
		far := 0
		for i := 1; i < n; i++ {
			if minDist[i] > minDist[far] {
				far = i
			}
		}
		means[c] = append([]float64(nil), rows[far]...)
		for i := range minDist {
			if d := sqDist(rows[i], means[c]); d < minDist[i] {
				minDist[i] = d
			}
		}
	}
	variances := make([][]float64, k)
	globalVar := make([]float64, dim)
	for j := 0; j < dim; j++ {
		col := make([]float64, n)
		mat.Col(col, j, v)
		mean := 0.0
		for _, x := range col {
			mean += x
		}
		mean /= float64(n)
		for _, x := range col {
			globalVar[j] += (x - mean) * (x - mean)
		}
		globalVar[j] = math.Max(globalVar[j]/float64(n), varianceFloor)
	}
	for c := 0; c < k; c++ {
		variances[c] = append([]float64(nil), globalVar...)
	}
	weights := make([]float64, k)
	for c := range weights {
		weights[c] = 1 / float64(k)
	}

	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
	}
	lastLL := math.Inf(-1)
	for iter := 0; iter < maxIter; iter++ {
		// E step in log space.
		ll := 0.0
		for i, row := range rows {
			maxLog := math.Inf(-1)
			for c := 0; c < k; c++ {
				lp := math.Log(weights[c]) + logGaussDiag(row, means[c], variances[c])
				resp[i][c] = lp
				if lp > maxLog {
					maxLog = lp
				}
			}
			sum := 0.0
			for c := 0; c < k; c++ {
				resp[i][c] = math.Exp(resp[i][c] - maxLog)
				sum += resp[i][c]
			}
			for c := 0; c < k; c++ {
				resp[i][c] /= sum
			}
			ll += maxLog + math.Log(sum)
		}
		if math.Abs(ll-lastLL) < mixtureTol {
			break
		}
		lastLL = ll

		// M step.
		for c := 0; c < k; c++ {
			nc := 0.0
			for i := 0; i < n; i++ {
				nc += resp[i][c]
			}
			if nc < 1e-12 {
				means[c] = append([]float64(nil), rows[rng.Intn(n)]...)
				variances[c] = append([]float64(nil), globalVar...)
				weights[c] = 1 / float64(n)
				continue
			}
			for j := 0; j < dim; j++ {
				m := 0.0
				for i := 0; i < n; i++ {
					m += resp[i][c] * rows[i][j]
				}
				means[c][j] = m / nc
			}
			for j := 0; j < dim; j++ {
				s := 0.0
				for i := 0; i < n; i++ {
					d := rows[i][j] - means[c][j]
					s += resp[i][c] * d * d
				}
				variances[c][j] = math.Max(s/nc, varianceFloor)
			}
			weights[c] = (nc + weightPrior) / (float64(n) + weightPrior*float64(k))
		}
		normalizeWeights(weights)
	}

	labels := make([]int, n)
	for i := 0; i < n; i++ {
		best, bestV := 0, math.Inf(-1)
		for c := 0; c < k; c++ {
			if resp[i][c] > bestV {
				best, bestV = c, resp[i][c]
			}
		}
		labels[i] = best
	}
	return labels, nil
}

func logGaussDiag(x, mean, variance []float64) float64 {
	out := 0.0
	for j := range x {
		d := x[j] - mean[j]
		out += -0.5 * (math.Log(2*math.Pi*variance[j]) + d*d/variance[j])
	}
	return out
}

func normalizeWeights(w []float64) {
	sum := 0.0
	for _, x := range w {
		sum += x
	}
	if sum == 0 {
		return
	}
	for i := range w {
		w[i] /= sum
	}
}
