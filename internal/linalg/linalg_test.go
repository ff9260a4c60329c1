package linalg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const tol = 1e-9

func assertMat3Near(t *testing.T, want, got Mat3, delta float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], delta, "element %d (row %d col %d)", i, i/3, i%3)
	}
}

func TestMat2_Inverse(t *testing.T) {
	t.Parallel()
	m := Mat2{4, 1, 2, 3}
	inv, err := m.Inverse()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, m.Det(), tol)
	p := Mat2{
		m[0]*inv[0] + m[1]*inv[2], m[0]*inv[1] + m[1]*inv[3],
		m[2]*inv[0] + m[3]*inv[2], m[2]*inv[1] + m[3]*inv[3],
	}
	for i, want := range Identity2() {
		assert.InDelta(t, want, p[i], tol)
	}

	_, err = Mat2{1, 2, 2, 4}.Inverse()
	assert.ErrorIs(t, err, ErrSingular)
	_, err = Mat2{math.NaN(), 0, 0, 1}.Inverse()
	assert.ErrorIs(t, err, ErrSingular)
}

func TestMat2_Quad(t *testing.T) {
	t.Parallel()
	m := Mat2{2, 0, 0, 3}
	assert.InDelta(t, 2*1+3*4, m.Quad(Vec2{1, 2}), tol)
	assert.Equal(t, Mat2{1, 2, 2, 4}, Outer2(Vec2{1, 2}, Vec2{1, 2}))
}

func TestMat3_Inverse(t *testing.T) {
	t.Parallel()
	m := Mat3{
		2, -1, 0,
		-1, 2, -1,
		0, -1, 2,
	}
	inv, err := m.Inverse()
	require.NoError(t, err)
	assert.InDelta(t, 4.0, m.Det(), tol)
	assertMat3Near(t, Identity3(), m.Mul(inv), tol)
	assertMat3Near(t, Identity3(), inv.Mul(m), tol)

	// Cross-check against gonum.
	var g mat.Dense
	require.NoError(t, g.Inverse(mat.NewDense(3, 3, m[:])))
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, g.At(i, j), inv[i*3+j], tol)
		}
	}

	_, err = Mat3{1, 2, 3, 2, 4, 6, 0, 0, 1}.Inverse()
	assert.ErrorIs(t, err, ErrSingular)
}

func TestMat3_Algebra(t *testing.T) {
	t.Parallel()
	m := Mat3{1, 2, 3, 4, 5, 6, 7, 8, 10}
	assert.Equal(t, Mat3{1, 4, 7, 2, 5, 8, 3, 6, 10}, m.Transpose())
	assert.Equal(t, Vec3{6, 15, 25}, m.MulVec(Vec3{1, 1, 1}))
	assert.Equal(t, Mat3{2, 4, 6, 8, 10, 12, 14, 16, 20}, m.Scale(2))
	assert.Equal(t, m.Scale(2), m.Add(m))
	assert.Equal(t, Mat3{1, 2, 3, 2, 4, 6, 3, 6, 9}, Outer3(Vec3{1, 2, 3}, Vec3{1, 2, 3}))
	assert.Equal(t, Diag3(1, 2, 3), Mat3{1, 0, 0, 0, 2, 0, 0, 0, 3})
}

func TestMat4_Inverse(t *testing.T) {
	t.Parallel()
	c, s := math.Cos(0.7), math.Sin(0.7)
	rigid := Mat4{
		c, -s, 0, 1.5,
		s, c, 0, -2,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	general := Mat4{
		3, 1, 0, 2,
		1, 4, 1, 0,
		0, 2, 5, 1,
		1, 0, 1, 6,
	}
	for name, m := range map[string]Mat4{"rigid": rigid, "general": general} {
		inv, err := m.Inverse()
		require.NoError(t, err, name)
		p := m.Mul(inv)
		for i, want := range Identity4() {
			assert.InDelta(t, want, p[i], tol, "%s element %d", name, i)
		}
	}

	var zero Mat4
	_, err := zero.Inverse()
	assert.ErrorIs(t, err, ErrSingular)
}

func TestMat4_Transform2(t *testing.T) {
	t.Parallel()
	m := Mat4{
		0, -1, 0, 1,
		1, 0, 0, 2,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	got := m.Transform2(Vec2{1, 0})
	assert.InDelta(t, 1.0, got[0], tol)
	assert.InDelta(t, 3.0, got[1], tol)
}

func TestPerturbedCholesky_PositiveDefiniteIsExact(t *testing.T) {
	t.Parallel()
	h := Mat3{
		4, 1, 0,
		1, 3, 0.5,
		0, 0.5, 2,
	}
	l, maxAdd := PerturbedCholesky(SymFrom(&h), 2)
	assert.Zero(t, maxAdd)
	assertMat3Near(t, h, Product3(l), 1e-12)
}

func TestPerturbedCholesky_LiftsNegativePivot(t *testing.T) {
	t.Parallel()
	h := Diag3(1, -1, 1)
	l, maxAdd := PerturbedCholesky(SymFrom(&h), 1)
	assert.Greater(t, maxAdd, 1.0)
	assert.Greater(t, l.At(1, 1), 0.0)
}

func TestModifiedHessian_LeavesPositiveDefiniteAlone(t *testing.T) {
	t.Parallel()
	h := Mat3{
		4, 1, 0,
		1, 3, 0.5,
		0, 0.5, 2,
	}
	l, corr := ModifiedHessian(&h)
	assert.Zero(t, corr.Shift)
	assert.Zero(t, corr.MaxAdd)
	assert.Zero(t, corr.Refactors)
	assertMat3Near(t, h, Product3(l), 1e-12)
}

func isPositiveDefinite(m Mat3) bool {
	var ch mat.Cholesky
	return ch.Factorize(m.SymDense())
}

func TestModifiedHessian_RepairsIndefinite(t *testing.T) {
	t.Parallel()
	cases := map[string]Mat3{
		"negative diagonal": Diag3(1, -2, 3),
		"negative definite": Diag3(-1, -1, -4),
		"saddle": {
			1, 3, 0,
			3, 1, 0,
			0, 0, 2,
		},
		"rank deficient": {
			1, 1, 1,
			1, 1, 1,
			1, 1, 1,
		},
	}
	for name, h := range cases {
		l, corr := ModifiedHessian(&h)
		repaired := Product3(l)
		assert.True(t, isPositiveDefinite(repaired), name)
		assert.Greater(t, corr.Shift+corr.MaxAdd, 0.0, name)
		_, err := repaired.Inverse()
		assert.NoError(t, err, name)
	}
}

// The off-diagonal bound must consider every pair, not only (0, 1): here the
// dominating element sits at (0, 2) and alone forces the shift to exceed
// maxOff - maxDiag = 4.
func TestModifiedHessian_ScansAllOffDiagonalPairs(t *testing.T) {
	t.Parallel()
	h := Mat3{
		1, 0, 5,
		0, 1, 0,
		5, 0, 1,
	}
	l, corr := ModifiedHessian(&h)
	assert.GreaterOrEqual(t, corr.Shift, 4.0)
	assert.True(t, isPositiveDefinite(Product3(l)))
}

func TestModifiedHessian_ZeroMatrixBecomesIdentity(t *testing.T) {
	t.Parallel()
	var h Mat3
	l, corr := ModifiedHessian(&h)
	assert.Equal(t, 1.0, corr.Shift)
	assertMat3Near(t, Identity3(), Product3(l), 1e-12)
}

func TestCholeskyLower(t *testing.T) {
	t.Parallel()
	l, err := CholeskyLower(Diag3(4, 9, 16))
	require.NoError(t, err)
	assertMat3Near(t, Diag3(2, 3, 4), l, tol)

	c := Mat3{
		4, 2, 0.4,
		2, 5, 1,
		0.4, 1, 3,
	}
	l, err = CholeskyLower(c)
	require.NoError(t, err)
	assertMat3Near(t, c, l.Mul(l.Transpose()), 1e-12)
	assert.Zero(t, l[1])
	assert.Zero(t, l[2])
	assert.Zero(t, l[5])

	_, err = CholeskyLower(Diag3(1, -1, 1))
	assert.ErrorIs(t, err, ErrSingular)
}
