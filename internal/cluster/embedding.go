package cluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"clustenm/internal/nma"
)

// Embed arranges a mode set into a loci-by-modes eigenvector matrix. Rows
// whose Euclidean norm is ~0 belong to degenerate loci; they are flagged
// false in the returned mask and, when removeZeroRows is set, dropped from
// the matrix. With rowNorm, every retained row is scaled to unit norm.
func Embed(ms nma.ModeSet, rowNorm, removeZeroRows bool) (*mat.Dense, []bool, error) {
	if ms.NumModes() == 0 {
		return nil, nil, fmt.Errorf("empty mode set")
	}
	n := ms.DOF()
	m := ms.NumModes()
	for j, mode := range ms.Modes {
		if len(mode.Vector) != n {
			return nil, nil, fmt.Errorf("mode %d dimension mismatch: got=%d want=%d", j, len(mode.Vector), n)
		}
	}

	v := mat.NewDense(n, m, nil)
	mask := make([]bool, n)
	retained := 0
	for i := 0; i < n; i++ {
		norm := 0.0
		for j := 0; j < m; j++ {
			c := ms.Modes[j].Vector[i]
			v.Set(i, j, c)
			norm += c * c
		}
		norm = math.Sqrt(norm)
		if norm > nma.ZeroTol {
			mask[i] = true
			retained++
			if rowNorm {
				for j := 0; j < m; j++ {
					v.Set(i, j, v.At(i, j)/norm)
				}
			}
		}
	}

	if !removeZeroRows || retained == n {
		return v, mask, nil
	}
	if retained == 0 {
		return nil, nil, fmt.Errorf("all %d loci are degenerate", n)
	}

	out := mat.NewDense(retained, m, nil)
	row := 0
	for i := 0; i < n; i++ {
		if !mask[i] {
			continue
		}
		for j := 0; j < m; j++ {
			out.Set(row, j, v.At(i, j))
		}
		row++
	}
	return out, mask, nil
}
