package ensemble

import (
	"errors"
	"fmt"
	"math"

	"clustenm/internal/hcluster"
	"clustenm/internal/measure"
)

// ErrConfig reports an invalid cut configuration.
var ErrConfig = errors.New("invalid ensemble clustering configuration")

// CutOptions selects how the conformer linkage tree is cut flat. Exactly
// one of Threshold and MaxClust must be set.
type CutOptions struct {
	// Threshold cuts the tree at a cophenetic distance in RMSD units.
	Threshold float64
	// MaxClust cuts the tree into at most this many clusters.
	MaxClust int
}

// Clustering groups conformers by pairwise RMSD. Centroids and Weights
// are indexed by cluster label.
type Clustering struct {
	Labels    []int
	Centroids []int
	Weights   []int
}

// ClusterConformers builds an average-linkage tree over the pairwise
// RMSD matrix of the conformers and cuts it flat. Each cluster is
// represented by its most central member: for clusters of more than two
// conformers that is the row-sum argmax of an RBF similarity kernel over
// the RMSD matrix, otherwise the first member.
func ClusterConformers(confs [][]float64, opts CutOptions) (Clustering, error) {
	if (opts.Threshold > 0) == (opts.MaxClust > 0) {
		return Clustering{}, fmt.Errorf("%w: exactly one of threshold and maxclust must be set", ErrConfig)
	}

	n := len(confs)
	dists, err := measure.PairwiseRMSD(confs)
	if err != nil {
		return Clustering{}, err
	}
	merges, err := hcluster.Linkage(dists, n, hcluster.MethodAverage)
	if err != nil {
		return Clustering{}, err
	}

	var labels []int
	if opts.Threshold > 0 {
		labels = hcluster.CutDistance(merges, n, opts.Threshold)
	} else {
		labels = hcluster.CutMaxClust(merges, n, opts.MaxClust)
	}

	k := 0
	for _, l := range labels {
		if l+1 > k {
			k = l + 1
		}
	}

	sim := similarityKernel(dists, n)
	members := make([][]int, k)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}
	centroids := make([]int, k)
	weights := make([]int, k)
	for l, idx := range members {
		weights[l] = len(idx)
		if len(idx) <= 2 {
			centroids[l] = idx[0]
			continue
		}
		best, bestSum := idx[0], math.Inf(-1)
		for _, i := range idx {
			sum := 0.0
			for _, j := range idx {
				sum += sim[i][j]
			}
			if sum > bestSum {
				best, bestSum = i, sum
			}
		}
		centroids[l] = best
	}
	return Clustering{Labels: labels, Centroids: centroids, Weights: weights}, nil
}

// similarityKernel maps the condensed RMSD vector to a dense RBF
// similarity matrix, exp(-d/std). A zero spread degenerates to a flat
// kernel, which makes every member equally central.
func similarityKernel(dists []float64, n int) [][]float64 {
	mean := 0.0
	for _, d := range dists {
		mean += d
	}
	mean /= float64(len(dists))
	variance := 0.0
	for _, d := range dists {
		variance += (d - mean) * (d - mean)
	}
	std := math.Sqrt(variance / float64(len(dists)))

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
		for j := range sim[i] {
			sim[i][j] = 1
		}
	}
	if std == 0 {
		return sim
	}
	p := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := math.Exp(-dists[p] / std)
			sim[i][j] = s
			sim[j][i] = s
			p++
		}
	}
	return sim
}
