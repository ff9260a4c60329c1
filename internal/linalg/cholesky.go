package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// machEps is the spacing between 1 and the next float64.
var machEps = math.Nextafter(1, 2) - 1

// SymFrom copies h into a new symmetric matrix, averaging the two triangles.
func SymFrom(h Square) *mat.SymDense {
	n := h.Dim()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 0.5*(h.At(i, j)+h.At(j, i)))
		}
	}
	return s
}

// PerturbedCholesky factors a as L·Lᵗ = a + E where E is a non-negative
// diagonal chosen so every pivot is at least a floor derived from maxOffL.
// It returns L and the largest diagonal entry of E (maxAdd). When
// maxOffL is 0 the matrix is assumed positive definite and the floor is
// derived from its diagonal alone.
//
// This is Dennis & Schnabel algorithm A5.5.2.
func PerturbedCholesky(a *mat.SymDense, maxOffL float64) (*mat.TriDense, float64) {
	n := a.SymmetricDim()
	l := mat.NewTriDense(n, mat.Lower, nil)

	minL := math.Pow(machEps, 0.25) * maxOffL
	if maxOffL == 0 {
		for i := 0; i < n; i++ {
			maxOffL = math.Max(maxOffL, math.Abs(a.At(i, i)))
		}
		maxOffL = math.Sqrt(maxOffL)
		if maxOffL == 0 {
			maxOffL = 1
		}
	}
	minL2 := math.Sqrt(machEps) * maxOffL

	var maxAdd float64
	for j := 0; j < n; j++ {
		ljj := a.At(j, j)
		for k := 0; k < j; k++ {
			ljj -= l.At(j, k) * l.At(j, k)
		}

		var minLjj float64
		for i := j + 1; i < n; i++ {
			lij := a.At(j, i)
			for k := 0; k < j; k++ {
				lij -= l.At(i, k) * l.At(j, k)
			}
			l.SetTri(i, j, lij)
			minLjj = math.Max(minLjj, math.Abs(lij))
		}
		minLjj = math.Max(minLjj/maxOffL, minL)

		if ljj > minLjj*minLjj {
			ljj = math.Sqrt(ljj)
		} else {
			if minLjj < minL2 {
				minLjj = minL2
			}
			maxAdd = math.Max(maxAdd, minLjj*minLjj-ljj)
			ljj = minLjj
		}
		l.SetTri(j, j, ljj)

		for i := j + 1; i < n; i++ {
			l.SetTri(i, j, l.At(i, j)/ljj)
		}
	}
	return l, maxAdd
}

// HessianCorrection describes what ModifiedHessian had to add to make the
// matrix safely positive definite.
type HessianCorrection struct {
	Shift     float64 // total uniform diagonal shift μ
	MaxAdd    float64 // largest pivot addition of the first decomposition
	Refactors int     // 1 when the second decomposition ran
}

// ModifiedHessian returns the Cholesky factor of h + μI + E, a positive
// definite matrix close to h, following Dennis & Schnabel A5.5.1 (the
// Gill-Murray-Wright modified Newton correction):
//
//  1. shift the diagonal by μ when the smallest diagonal is not safely
//     positive relative to the largest;
//  2. enlarge μ when an off-diagonal element dominates the diagonal;
//  3. perturbed Cholesky; if it had to lift a pivot, shift again by the
//     smaller of that lift and a Gershgorin eigenvalue estimate, and
//     factor once more.
func ModifiedHessian(h Square) (*mat.TriDense, HessianCorrection) {
	a := SymFrom(h)
	n := a.SymmetricDim()
	sqrtEps := math.Sqrt(machEps)

	maxDiag, minDiag := a.At(0, 0), a.At(0, 0)
	for i := 1; i < n; i++ {
		maxDiag = math.Max(maxDiag, a.At(i, i))
		minDiag = math.Min(minDiag, a.At(i, i))
	}
	maxPosDiag := math.Max(0, maxDiag)

	var mu float64
	if minDiag <= sqrtEps*maxPosDiag {
		mu = 2*(maxPosDiag-minDiag)*sqrtEps - minDiag
		maxDiag += mu
	}

	var maxOff float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			maxOff = math.Max(maxOff, math.Abs(a.At(i, j)))
		}
	}
	if maxOff*(1+2*sqrtEps) > maxDiag {
		mu += (maxOff - maxDiag) + 2*sqrtEps*maxOff
		maxDiag = maxOff * (1 + 2*sqrtEps)
	}
	if maxDiag == 0 {
		mu = 1
		maxDiag = 1
	}
	if mu > 0 {
		addDiag(a, mu)
	}

	corr := HessianCorrection{Shift: mu}
	maxOffL := math.Sqrt(math.Max(maxDiag, maxOff/float64(n)))
	l, maxAdd := PerturbedCholesky(a, maxOffL)
	corr.MaxAdd = maxAdd
	if maxAdd <= 0 {
		return l, corr
	}

	maxEv, minEv := a.At(0, 0), a.At(0, 0)
	for i := 0; i < n; i++ {
		var offRow float64
		for j := 0; j < n; j++ {
			if j != i {
				offRow += math.Abs(a.At(i, j))
			}
		}
		maxEv = math.Max(maxEv, a.At(i, i)+offRow)
		minEv = math.Min(minEv, a.At(i, i)-offRow)
	}
	sdd := math.Max((maxEv-minEv)*sqrtEps-minEv, 0)
	mu2 := math.Min(maxAdd, sdd)
	addDiag(a, mu2)
	corr.Shift += mu2
	corr.Refactors = 1

	l, _ = PerturbedCholesky(a, 0)
	return l, corr
}

func addDiag(a *mat.SymDense, v float64) {
	for i := 0; i < a.SymmetricDim(); i++ {
		a.SetSym(i, i, a.At(i, i)+v)
	}
}

// Product3 returns L·Lᵗ for a 3×3 lower factor.
func Product3(l *mat.TriDense) Mat3 {
	var out Mat3
	var p mat.Dense
	p.Mul(l, l.T())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = p.At(i, j)
		}
	}
	return out
}

// CholeskyLower returns the lower-triangular factor L with L·Lᵗ = c using
// gonum's Cholesky. c must be symmetric positive definite.
func CholeskyLower(c Mat3) (Mat3, error) {
	var ch mat.Cholesky
	if ok := ch.Factorize(SymFrom(&c)); !ok {
		return Mat3{}, fmt.Errorf("%w: covariance is not positive definite", ErrSingular)
	}
	var lt mat.TriDense
	ch.LTo(&lt)
	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j <= i; j++ {
			out[i*3+j] = lt.At(i, j)
		}
	}
	return out, nil
}

// SymDense converts a fixed matrix to a gonum symmetric matrix.
func (m Mat3) SymDense() *mat.SymDense { return SymFrom(&m) }
