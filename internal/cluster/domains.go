package cluster

import (
	"clustenm/internal/nma"
)

// AssignDomains partitions loci into structural domains: the mode set is
// embedded (4-style eigenvector matrix with degenerate rows masked out),
// the strategy labels the retained rows, and the labels are re-expanded to
// the full locus count. Masked positions inherit the label of the nearest
// preceding retained locus in a single left-to-right pass; a masked run
// before the first retained locus takes the first retained label.
func AssignDomains(ms nma.ModeSet, strategy Strategy, rowNorm bool, opts Options) ([]int, error) {
	v, mask, err := Embed(ms, rowNorm, true)
	if err != nil {
		return nil, err
	}
	retained, err := strategy.Cluster(v, opts)
	if err != nil {
		return nil, err
	}

	all := true
	for _, ok := range mask {
		if !ok {
			all = false
			break
		}
	}
	if all {
		return retained, nil
	}

	labels := make([]int, len(mask))
	curr := retained[0]
	next := 0
	for i := range mask {
		if !mask[i] {
			labels[i] = curr
			continue
		}
		l := retained[next]
		next++
		labels[i] = l
		if l != curr {
			curr = l
		}
	}
	return labels, nil
}
