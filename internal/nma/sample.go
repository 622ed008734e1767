package nma

import (
	"fmt"
	"math"
	"math/rand"
)

// SampleAlongModes draws nConfs random displacements in the subspace
// spanned by the given all-atom modes, weighting each mode by the inverse
// square root of its eigenvalue, and rescales the batch so that the mean
// RMSD of the displaced conformers from coords equals rmsd.
func SampleAlongModes(ms ModeSet, coords []float64, nConfs int, rmsd float64, rng *rand.Rand) ([][]float64, error) {
	if ms.NumModes() == 0 {
		return nil, fmt.Errorf("no modes to sample along")
	}
	if ms.DOF() != len(coords) {
		return nil, fmt.Errorf("mode dimension mismatch: dof=%d coords=%d", ms.DOF(), len(coords))
	}
	if nConfs <= 0 {
		return nil, fmt.Errorf("conformer count must be > 0: %d", nConfs)
	}
	if rmsd <= 0 {
		return nil, fmt.Errorf("target rmsd must be > 0: %f", rmsd)
	}

	nAtoms := len(coords) / 3
	displacements := make([][]float64, nConfs)
	total := 0.0
	for c := 0; c < nConfs; c++ {
		d := make([]float64, len(coords))
		for _, mode := range ms.Modes {
			scale := rng.NormFloat64()
			if mode.Eigenvalue > ZeroTol {
				scale /= math.Sqrt(mode.Eigenvalue)
			}
			for i, v := range mode.Vector {
				d[i] += scale * v
			}
		}
		norm := 0.0
		for _, v := range d {
			norm += v * v
		}
		displacements[c] = d
		total += math.Sqrt(norm / float64(nAtoms))
	}
	if total == 0 {
		return nil, fmt.Errorf("degenerate sampling: zero total displacement")
	}

	scale := rmsd * float64(nConfs) / total
	out := make([][]float64, nConfs)
	for c, d := range displacements {
		conf := make([]float64, len(coords))
		for i := range conf {
			conf[i] = coords[i] + scale*d[i]
		}
		out[c] = conf
	}
	return out, nil
}
