package engine

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"clustenm/internal/model"
	"clustenm/internal/nma"
)

// ErrDegenerate marks a conformer whose elastic network has fewer
// internal degrees of freedom than expected, usually a disconnected
// network at the chosen cutoff.
var ErrDegenerate = errors.New("degenerate mode spectrum")

const trivialRigidModes = 6

// generator produces candidate conformers from one seed structure by
// normal mode analysis at alpha-carbon resolution, extended back to all
// atoms.
type generator struct {
	atoms  []model.Atom
	caIdx  []int
	cutoff float64
	modes  int
	confs  int
	rmsd   []float64
	v1     bool
	rng    *rand.Rand
}

func (g *generator) sample(coords []float64, cycle int) ([][]float64, error) {
	ca := make([]float64, 0, 3*len(g.caIdx))
	for _, idx := range g.caIdx {
		ca = append(ca, coords[3*idx], coords[3*idx+1], coords[3*idx+2])
	}

	h, err := nma.BuildHessian(ca, g.cutoff)
	if err != nil {
		return nil, err
	}
	rank, err := nma.Rank(h, nma.ZeroTol)
	if err != nil {
		return nil, err
	}
	if want := 3*len(g.caIdx) - trivialRigidModes; rank < want {
		return nil, fmt.Errorf("%w: rank %d, expected %d", ErrDegenerate, rank, want)
	}

	reduced, err := nma.ComputeModes(h, g.modes, trivialRigidModes)
	if err != nil {
		return nil, err
	}
	extended, err := nma.ExtendModes(reduced, g.caIdx, g.atoms)
	if err != nil {
		return nil, err
	}

	if g.v1 {
		return g.sampleAllSigns(extended, coords, cycle)
	}
	return nma.SampleAlongModes(extended, coords, g.confs, g.rmsd[cycle], g.rng)
}

// sampleAllSigns enumerates every sign combination over the modes,
// weights each mode by the inverse square root of its eigenvalue, and
// scales the whole batch so the largest displacement reaches the target
// RMSD. The all-zero combination reproduces the seed and is kept; it is
// removed later by clustering.
func (g *generator) sampleAllSigns(ms nma.ModeSet, coords []float64, cycle int) ([][]float64, error) {
	dof := len(coords)
	nAtoms := dof / 3
	combos := signCombinations(ms.NumModes())

	cols := make([][]float64, len(combos))
	maxNorm := 0.0
	for c, combo := range combos {
		col := make([]float64, dof)
		for j, sign := range combo {
			if sign == 0 {
				continue
			}
			w := float64(sign) / math.Sqrt(ms.Modes[j].Eigenvalue)
			for d := 0; d < dof; d++ {
				col[d] += w * ms.Modes[j].Vector[d]
			}
		}
		norm := 0.0
		for _, v := range col {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm > maxNorm {
			maxNorm = norm
		}
		cols[c] = col
	}
	if maxNorm == 0 {
		return nil, errors.New("all sign combinations produced zero displacement")
	}

	scale := g.rmsd[cycle] * math.Sqrt(float64(nAtoms)) / maxNorm
	out := make([][]float64, len(cols))
	for c, col := range cols {
		conf := make([]float64, dof)
		for d := 0; d < dof; d++ {
			conf[d] = coords[d] + scale*col[d]
		}
		out[c] = conf
	}
	return out, nil
}

// signCombinations enumerates {-1, 0, 1}^n in lexicographic order.
func signCombinations(n int) [][]int {
	total := 1
	for i := 0; i < n; i++ {
		total *= 3
	}
	combos := make([][]int, total)
	for c := 0; c < total; c++ {
		combo := make([]int, n)
		rem := c
		for j := n - 1; j >= 0; j-- {
			combo[j] = rem%3 - 1
			rem /= 3
		}
		combos[c] = combo
	}
	return combos
}
