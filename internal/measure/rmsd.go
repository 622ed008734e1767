package measure

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RMSD returns the root-mean-square deviation between two flattened
// coordinate sets of equal length, without superposition. Empty or
// mismatched sets yield NaN.
func RMSD(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.NaN()
	}
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(a)/3))
}

// PairwiseRMSD computes the condensed upper-triangular distance vector of
// RMSDs between all conformer pairs, in (0,1), (0,2), ... (n-2,n-1) order.
// No superposition is applied: mode-space perturbations introduce no net
// rotation or translation.
func PairwiseRMSD(confs [][]float64) ([]float64, error) {
	n := len(confs)
	if n < 2 {
		return nil, fmt.Errorf("need at least two conformers: %d", n)
	}
	for i := 1; i < n; i++ {
		if len(confs[i]) != len(confs[0]) {
			return nil, fmt.Errorf("conformer %d length mismatch: got=%d want=%d", i, len(confs[i]), len(confs[0]))
		}
	}
	out := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, RMSD(confs[i], confs[j]))
		}
	}
	return out, nil
}

// Transformation is a rigid rotation plus translation mapping mobile
// coordinates onto a reference frame.
type Transformation struct {
	rot   [3][3]float64
	mobC  [3]float64
	refC  [3]float64
}

// FitTransformation computes the least-squares rigid superposition (Kabsch)
// of mobile onto reference. Both are flattened coordinate sets of the same
// length.
func FitTransformation(mobile, reference []float64) (Transformation, error) {
	if len(mobile) == 0 || len(mobile)%3 != 0 {
		return Transformation{}, fmt.Errorf("coordinate length must be a positive multiple of 3: %d", len(mobile))
	}
	if len(mobile) != len(reference) {
		return Transformation{}, fmt.Errorf("coordinate length mismatch: mobile=%d reference=%d", len(mobile), len(reference))
	}

	n := len(mobile) / 3
	var tr Transformation
	for i := 0; i < n; i++ {
		for a := 0; a < 3; a++ {
			tr.mobC[a] += mobile[3*i+a]
			tr.refC[a] += reference[3*i+a]
		}
	}
	for a := 0; a < 3; a++ {
		tr.mobC[a] /= float64(n)
		tr.refC[a] /= float64(n)
	}

	// Cross-covariance of the centered point sets.
	h := mat.NewDense(3, 3, nil)
	for i := 0; i < n; i++ {
		for a := 0; a < 3; a++ {
			pa := mobile[3*i+a] - tr.mobC[a]
			for b := 0; b < 3; b++ {
				qb := reference[3*i+b] - tr.refC[b]
				h.Set(a, b, h.At(a, b)+pa*qb)
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return Transformation{}, fmt.Errorf("svd failed during superposition")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&v, u.T())
	if mat.Det(&r) < 0 {
		// Reflection correction: flip the last right-singular vector.
		for a := 0; a < 3; a++ {
			v.Set(a, 2, -v.At(a, 2))
		}
		r.Mul(&v, u.T())
	}
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			tr.rot[a][b] = r.At(a, b)
		}
	}
	return tr, nil
}

// Apply transforms a flattened coordinate set with the fitted rotation and
// translation. The set may be larger than the one the transformation was
// fitted on (e.g. fit on Cα atoms, applied to all atoms).
func (tr Transformation) Apply(coords []float64) []float64 {
	n := len(coords) / 3
	out := make([]float64, len(coords))
	for i := 0; i < n; i++ {
		var p [3]float64
		for a := 0; a < 3; a++ {
			p[a] = coords[3*i+a] - tr.mobC[a]
		}
		for a := 0; a < 3; a++ {
			out[3*i+a] = tr.rot[a][0]*p[0] + tr.rot[a][1]*p[1] + tr.rot[a][2]*p[2] + tr.refC[a]
		}
	}
	return out
}
