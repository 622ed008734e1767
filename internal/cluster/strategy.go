package cluster

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrConfig marks caller-side configuration mistakes: missing required
// options or contradictory option combinations.
var ErrConfig = errors.New("invalid clustering configuration")

// Options carries the tunables shared across strategies. Zero values mean
// "not set" and fall back to each strategy's defaults.
type Options struct {
	// Clusters is the requested cluster count. Required by KMeans;
	// switches Hierarchical to the maxclust criterion; serves as the
	// component count for the mixture strategies.
	Clusters int
	// Restarts bounds repeated runs of stochastic fits: k-means
	// reinitializations (default 100) and discretization SVD restarts
	// (default 30).
	Restarts int
	// Linkage method and Metric for Hierarchical (defaults: single,
	// cosine).
	Linkage string
	Metric  string
	// Criterion selects the Hierarchical cut: "inconsistent" (default),
	// "distance" or "maxclust".
	Criterion string
	// Threshold is the cut value for the distance and inconsistent
	// criteria; when zero under "inconsistent" it is derived from
	// InconsistentPercentile (default 99.9) of the tree statistic.
	Threshold              float64
	InconsistentPercentile float64
	// Depth bounds the subtree considered by the inconsistency
	// statistic (default 2).
	Depth int
	// MaxIter bounds iterative fits (default 20 for discretization,
	// 100 for k-means passes and mixture EM).
	MaxIter int
	// Seed drives all stochastic strategies; runs with equal seeds and
	// inputs produce identical labels.
	Seed int64
}

// Strategy assigns an integer label to every row of a 2-D embedding.
// Labels are 0-based and not necessarily contiguous.
type Strategy interface {
	Name() string
	Cluster(v *mat.Dense, opts Options) ([]int, error)
}

// FromName resolves a strategy by its registry name.
func FromName(name string) (Strategy, error) {
	switch name {
	case "hingeplane":
		return ThresholdPlane{}, nil
	case "kmeans":
		return KMeans{}, nil
	case "hierarchy":
		return Hierarchical{}, nil
	case "discretize":
		return SpectralDiscretize{}, nil
	case "gmm":
		return GaussianMixture{}, nil
	case "bgmm":
		return BayesianGaussianMixture{}, nil
	default:
		return nil, fmt.Errorf("unsupported clustering strategy: %s", name)
	}
}
