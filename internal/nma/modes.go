package nma

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"clustenm/internal/model"
)

// Mode is one eigenpair of a network model. Vector holds one component per
// degree of freedom: N for Kirchhoff modes, 3N for Hessian modes.
type Mode struct {
	Eigenvalue float64
	Vector     []float64
}

// ModeSet is an ordered sequence of non-trivial modes, lowest frequency
// first.
type ModeSet struct {
	Modes []Mode
}

func (ms ModeSet) NumModes() int {
	return len(ms.Modes)
}

// DOF returns the number of degrees of freedom the mode vectors span.
func (ms ModeSet) DOF() int {
	if len(ms.Modes) == 0 {
		return 0
	}
	return len(ms.Modes[0].Vector)
}

// ComputeModes eigendecomposes a network matrix and returns the count
// lowest-frequency non-trivial modes, skipping the given number of trivial
// (rigid-body) zero modes: 6 for a Hessian, 1 for a Kirchhoff matrix.
func ComputeModes(m *mat.SymDense, count, skip int) (ModeSet, error) {
	if count <= 0 {
		return ModeSet{}, fmt.Errorf("mode count must be > 0: %d", count)
	}
	if skip < 0 {
		return ModeSet{}, fmt.Errorf("trivial mode count must be >= 0: %d", skip)
	}
	n := m.SymmetricDim()
	if skip+count > n {
		return ModeSet{}, fmt.Errorf("requested %d modes after %d trivial from a %d-dim matrix", count, skip, n)
	}

	var eig mat.EigenSym
	if !eig.Factorize(m, true) {
		return ModeSet{}, fmt.Errorf("eigendecomposition failed")
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// EigenSym returns eigenvalues in ascending order, so the trivial
	// modes occupy the first slots.
	out := make([]Mode, 0, count)
	for k := skip; k < skip+count; k++ {
		vec := make([]float64, n)
		mat.Col(vec, k, &vectors)
		out = append(out, Mode{Eigenvalue: values[k], Vector: vec})
	}
	return ModeSet{Modes: out}, nil
}

// ExtendModes maps Cα-resolution Hessian modes to all-atom resolution:
// every atom inherits the mode components of its residue's alpha carbon.
// The extended vectors are renormalized to unit length.
func ExtendModes(reduced ModeSet, caIdx []int, atoms []model.Atom) (ModeSet, error) {
	if reduced.NumModes() == 0 {
		return ModeSet{}, fmt.Errorf("no modes to extend")
	}
	if reduced.DOF() != 3*len(caIdx) {
		return ModeSet{}, fmt.Errorf("reduced mode dimension mismatch: dof=%d ca=%d", reduced.DOF(), len(caIdx))
	}

	blockByResidue := make(map[int]int, len(caIdx))
	for k, idx := range caIdx {
		blockByResidue[atoms[idx].Residue] = k
	}

	out := make([]Mode, 0, reduced.NumModes())
	for _, mode := range reduced.Modes {
		vec := make([]float64, 3*len(atoms))
		for j, atom := range atoms {
			k, ok := blockByResidue[atom.Residue]
			if !ok {
				return ModeSet{}, fmt.Errorf("residue %d has no alpha carbon", atom.Residue)
			}
			vec[3*j] = mode.Vector[3*k]
			vec[3*j+1] = mode.Vector[3*k+1]
			vec[3*j+2] = mode.Vector[3*k+2]
		}
		norm := 0.0
		for _, v := range vec {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm > ZeroTol {
			for i := range vec {
				vec[i] /= norm
			}
		}
		out = append(out, Mode{Eigenvalue: mode.Eigenvalue, Vector: vec})
	}
	return ModeSet{Modes: out}, nil
}
