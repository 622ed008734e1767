package cluster

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"clustenm/internal/hcluster"
)

const (
	defaultInconsistentPercentile = 99.9
	defaultInconsistentDepth      = 2
)

// Hierarchical builds a linkage tree over the embedding rows and cuts it
// flat. An explicit cluster count selects the maxclust criterion;
// otherwise the configured criterion applies, defaulting to the
// inconsistency statistic with a percentile-derived threshold.
type Hierarchical struct{}

func (Hierarchical) Name() string { return "hierarchy" }

func (Hierarchical) Cluster(v *mat.Dense, opts Options) ([]int, error) {
	n, _ := v.Dims()
	method := opts.Linkage
	if method == "" {
		method = hcluster.MethodSingle
	}
	metric := opts.Metric
	if metric == "" {
		metric = hcluster.MetricCosine
	}

	dists, err := hcluster.PdistRows(v, metric)
	if err != nil {
		return nil, err
	}
	merges, err := hcluster.Linkage(dists, n, method)
	if err != nil {
		return nil, err
	}

	if opts.Clusters > 0 {
		return hcluster.CutMaxClust(merges, n, opts.Clusters), nil
	}

	criterion := opts.Criterion
	if criterion == "" {
		criterion = "inconsistent"
	}
	switch criterion {
	case "distance":
		return hcluster.CutDistance(merges, n, opts.Threshold), nil
	case "maxclust":
		return nil, fmt.Errorf("%w: maxclust criterion requires a cluster count", ErrConfig)
	case "inconsistent":
		depth := opts.Depth
		if depth <= 0 {
			depth = defaultInconsistentDepth
		}
		t := opts.Threshold
		if t == 0 {
			percentile := opts.InconsistentPercentile
			if percentile == 0 {
				percentile = defaultInconsistentPercentile
			}
			t, err = hcluster.InconsistencyThreshold(merges, n, depth, percentile)
			if err != nil {
				return nil, err
			}
		}
		return hcluster.CutInconsistent(merges, n, t, depth), nil
	default:
		return nil, fmt.Errorf("%w: unsupported cut criterion: %s", ErrConfig, criterion)
	}
}
