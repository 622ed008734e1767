package hcluster

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CutDistance assigns flat cluster labels by applying every merge whose
// cophenetic distance is at most t. Labels are 0-based, renumbered in order
// of first occurrence.
func CutDistance(merges []Merge, n int, t float64) []int {
	return cut(merges, n, func(i int, m Merge) bool { return m.Distance <= t })
}

// CutMaxClust assigns flat cluster labels such that at most maxClust
// clusters remain, applying merges in tree order.
func CutMaxClust(merges []Merge, n, maxClust int) []int {
	if maxClust < 1 {
		maxClust = 1
	}
	applied := n - maxClust
	if applied < 0 {
		applied = 0
	}
	return cut(merges, n, func(i int, m Merge) bool { return i < applied })
}

// CutInconsistent assigns flat cluster labels by applying every merge whose
// subtree-maximum inconsistency coefficient is at most t.
func CutInconsistent(merges []Merge, n int, t float64, depth int) []int {
	crit := monocrit(merges, n, Inconsistency(merges, n, depth))
	return cut(merges, n, func(i int, m Merge) bool { return crit[i] <= t })
}

// Inconsistency returns one coefficient per merge: the height of the merge
// standardized against the mean and standard deviation of link heights in
// its depth-limited subtree. Zero-spread subtrees yield zero.
func Inconsistency(merges []Merge, n, depth int) []float64 {
	if depth < 1 {
		depth = 1
	}
	out := make([]float64, len(merges))
	for i, m := range merges {
		heights := collectHeights(merges, n, i, depth)
		if len(heights) < 2 {
			continue
		}
		mean := stat.Mean(heights, nil)
		sd := stat.StdDev(heights, nil)
		if sd == 0 {
			continue
		}
		out[i] = (m.Distance - mean) / sd
	}
	return out
}

// InconsistencyThreshold derives a cut threshold as the given percentile of
// the inconsistency coefficients across the tree.
func InconsistencyThreshold(merges []Merge, n, depth int, percentile float64) (float64, error) {
	if percentile < 0 || percentile > 100 {
		return 0, fmt.Errorf("percentile out of range: %f", percentile)
	}
	coeffs := Inconsistency(merges, n, depth)
	sorted := append([]float64(nil), coeffs...)
	sort.Float64s(sorted)
	return stat.Quantile(percentile/100, stat.LinInterp, sorted, nil), nil
}

func collectHeights(merges []Merge, n, node, depth int) []float64 {
	heights := []float64{merges[node].Distance}
	if depth == 1 {
		return heights
	}
	for _, child := range []int{merges[node].Left, merges[node].Right} {
		if child < n {
			continue
		}
		heights = append(heights, collectHeights(merges, n, child-n, depth-1)...)
	}
	return heights
}

// monocrit propagates per-merge criteria so each node carries the maximum
// over its whole subtree; cutting on it yields contiguous tree clusters.
func monocrit(merges []Merge, n int, crit []float64) []float64 {
	out := make([]float64, len(merges))
	for i, m := range merges {
		v := crit[i]
		if m.Left >= n {
			v = math.Max(v, out[m.Left-n])
		}
		if m.Right >= n {
			v = math.Max(v, out[m.Right-n])
		}
		out[i] = v
	}
	return out
}

func cut(merges []Merge, n int, apply func(i int, m Merge) bool) []int {
	parent := make([]int, n+len(merges))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for i, m := range merges {
		node := n + i
		if apply(i, m) {
			parent[find(m.Left)] = node
			parent[find(m.Right)] = node
		}
	}

	labels := make([]int, n)
	next := 0
	byRoot := make(map[int]int, n)
	for i := 0; i < n; i++ {
		root := find(i)
		label, ok := byRoot[root]
		if !ok {
			label = next
			byRoot[root] = label
			next++
		}
		labels[i] = label
	}
	return labels
}
