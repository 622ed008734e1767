package nma

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ZeroTol is the tolerance below which an eigenvalue or singular value is
// treated as zero throughout the package.
const ZeroTol = 1e-6

// BuildHessian constructs the 3N x 3N anisotropic network model Hessian for
// the given flattened coordinates. Pairs within the distance cutoff interact
// with a uniform spring constant.
func BuildHessian(coords []float64, cutoff float64) (*mat.SymDense, error) {
	if len(coords) == 0 || len(coords)%3 != 0 {
		return nil, fmt.Errorf("coordinate length must be a positive multiple of 3: %d", len(coords))
	}
	if cutoff <= 0 {
		return nil, fmt.Errorf("cutoff must be > 0: %f", cutoff)
	}

	n := len(coords) / 3
	cutoff2 := cutoff * cutoff
	h := mat.NewSymDense(3*n, nil)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := coords[3*j] - coords[3*i]
			dy := coords[3*j+1] - coords[3*i+1]
			dz := coords[3*j+2] - coords[3*i+2]
			r2 := dx*dx + dy*dy + dz*dz
			if r2 > cutoff2 || r2 == 0 {
				continue
			}
			d := [3]float64{dx, dy, dz}
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					el := -d[a] * d[b] / r2
					h.SetSym(3*i+a, 3*j+b, el)
					if b >= a {
						h.SetSym(3*i+a, 3*i+b, h.At(3*i+a, 3*i+b)-el)
						h.SetSym(3*j+a, 3*j+b, h.At(3*j+a, 3*j+b)-el)
					}
				}
			}
		}
	}
	return h, nil
}

// BuildKirchhoff constructs the N x N Gaussian network model connectivity
// matrix for the given flattened coordinates.
func BuildKirchhoff(coords []float64, cutoff float64) (*mat.SymDense, error) {
	if len(coords) == 0 || len(coords)%3 != 0 {
		return nil, fmt.Errorf("coordinate length must be a positive multiple of 3: %d", len(coords))
	}
	if cutoff <= 0 {
		return nil, fmt.Errorf("cutoff must be > 0: %f", cutoff)
	}

	n := len(coords) / 3
	cutoff2 := cutoff * cutoff
	k := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := coords[3*j] - coords[3*i]
			dy := coords[3*j+1] - coords[3*i+1]
			dz := coords[3*j+2] - coords[3*i+2]
			if dx*dx+dy*dy+dz*dz > cutoff2 {
				continue
			}
			k.SetSym(i, j, -1)
			k.SetSym(i, i, k.At(i, i)+1)
			k.SetSym(j, j, k.At(j, j)+1)
		}
	}
	return k, nil
}

// Rank counts the eigenvalues of h whose magnitude exceeds tol. A healthy
// ANM Hessian for N atoms has rank 3N-6; anything lower signals a
// degenerate network.
func Rank(h *mat.SymDense, tol float64) (int, error) {
	var eig mat.EigenSym
	if !eig.Factorize(h, false) {
		return 0, fmt.Errorf("eigendecomposition failed for rank computation")
	}
	values := eig.Values(nil)
	rank := 0
	for _, v := range values {
		if v > tol || v < -tol {
			rank++
		}
	}
	return rank, nil
}
