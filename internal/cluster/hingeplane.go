package cluster

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ThresholdPlane clusters loci by the sign pattern of their eigenvector
// components: rows on the same side of every mode's hinge plane share a
// label. Zero components count as positive.
type ThresholdPlane struct{}

func (ThresholdPlane) Name() string { return "hingeplane" }

func (ThresholdPlane) Cluster(v *mat.Dense, _ Options) ([]int, error) {
	n, m := v.Dims()

	// Fixed-width bit strings keep the binary codes exact for any mode
	// count; lexicographic order equals numeric order at equal width.
	codes := make([]string, n)
	buf := make([]byte, m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if v.At(i, j) >= 0 {
				buf[j] = '1'
			} else {
				buf[j] = '0'
			}
		}
		codes[i] = string(buf)
	}

	unique := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for _, c := range codes {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			unique = append(unique, c)
		}
	}
	sort.Strings(unique)

	labelByCode := make(map[string]int, len(unique))
	for i, c := range unique {
		labelByCode[c] = i
	}
	labels := make([]int, n)
	for i, c := range codes {
		labels[i] = labelByCode[c]
	}
	return labels, nil
}
