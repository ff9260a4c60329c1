package scanmatch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/statmap"
	"github.com/banshee-data/scanmatch/internal/testutil"
)

// fourPointMap counts (0,0), (0,1), (1,0), (1,1) into 2 m cells. Only plane
// 0 keeps all four points in one cell, so it is the only populated plane.
func fourPointMap(t *testing.T) *statmap.ProbabilityMap {
	t.Helper()
	pts := []linalg.Vec2{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	m := testutil.ProbabilityMap(t, pts, 2, 8, statmap.BuildOptions{SensorError: 0.01})
	require.Equal(t, 1, m.Stats().Populated)
	require.Equal(t, 8, m.Stats().Sparse)
	return m
}

func TestLikelihood_FourPointMap(t *testing.T) {
	t.Parallel()
	m := fourPointMap(t)
	scan := []linalg.Vec2{{0, 0}}

	// The scan point lands on the cell mean: exp(0)·weight over 4 planes,
	// with weight = 4/√det(diag(0.2501, 0.2501)).
	atMean := Likelihood(m, Pose{X: 0.5, Y: 0.5}, scan)
	assert.InDelta(t, 1/0.2501, atMean, 1e-9)

	offMap := Likelihood(m, Pose{X: 5, Y: 5}, scan)
	assert.Zero(t, offMap)
	assert.Greater(t, atMean, Likelihood(m, Pose{X: 1.5, Y: 0.5}, scan))
}

func TestLikelihood_SparseCellsIgnored(t *testing.T) {
	t.Parallel()
	m := fourPointMap(t)
	// (−0.5, 0.5) lies in plane 1's cell holding only (0,0) and (0,1), and
	// outside plane 0's populated cell.
	assert.Zero(t, Likelihood(m, Pose{X: -0.5, Y: 0.5}, []linalg.Vec2{{0, 0}}))
}

func TestLikelihood_EmptyScan(t *testing.T) {
	t.Parallel()
	assert.Zero(t, Likelihood(testutil.BlobMap(t), Pose{X: 2.5, Y: 2.5}, nil))
}

func TestLikelihood_PeaksAtBlobCentre(t *testing.T) {
	t.Parallel()
	m := testutil.BlobMap(t)
	scan := testutil.BlobScan()
	best := Likelihood(m, Pose{X: 2.5, Y: 2.5}, scan)
	for _, p := range []Pose{
		{X: 2.6, Y: 2.5},
		{X: 2.5, Y: 2.45},
		{X: 2.5, Y: 2.5, Theta: 0.05},
		{X: 2.5, Y: 2.5, Theta: -0.05},
	} {
		assert.Less(t, Likelihood(m, p, scan), best, "pose %v", p)
	}
}

func TestGradientHessian_FiniteDifferences(t *testing.T) {
	t.Parallel()
	m := testutil.BlobMap(t)
	scan := testutil.BlobScan()
	pose := Pose{X: 2.6, Y: 2.45, Theta: 0.05}

	l, g, h := GradientHessian(m, pose, scan)
	assert.InDelta(t, Likelihood(m, pose, scan), l, 1e-9*l)

	const step = 1e-5
	shifted := func(i int, d float64) Pose {
		v := pose.Vec()
		v[i] += d
		return PoseFromVec(v)
	}
	for i := 0; i < 3; i++ {
		lp := Likelihood(m, shifted(i, step), scan)
		lm := Likelihood(m, shifted(i, -step), scan)
		num := (lp - lm) / (2 * step)
		assert.InDelta(t, num, g[i], 1e-6*(1+math.Abs(num)), "gradient[%d]", i)
	}

	// The Hessian drops the rotation's second derivative, so only the θθ
	// entry is approximate.
	for j := 0; j < 3; j++ {
		_, gp, _ := GradientHessian(m, shifted(j, step), scan)
		_, gm, _ := GradientHessian(m, shifted(j, -step), scan)
		for i := 0; i < 3; i++ {
			if i == 2 && j == 2 {
				continue
			}
			num := (gp[i] - gm[i]) / (2 * step)
			assert.InDelta(t, num, h[i*3+j], 1e-5*(1+math.Abs(num)), "hessian[%d][%d]", i, j)
		}
	}
}

func TestGradientHessian_ZeroAtOptimum(t *testing.T) {
	t.Parallel()
	m := testutil.BlobMap(t)
	l, g, h := GradientHessian(m, Pose{X: 2.5, Y: 2.5}, testutil.BlobScan())
	require.Greater(t, l, 0.0)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 0, g[i], 1e-6*l, "gradient[%d]", i)
	}
	// A maximum: the diagonal of H is negative.
	assert.Less(t, h[0], 0.0)
	assert.Less(t, h[4], 0.0)
	assert.Less(t, h[8], 0.0)
}

func TestPositionGain(t *testing.T) {
	t.Parallel()
	pts := []linalg.Vec2{{0.05, 0.05}, {0.06, 0.07}, {0.5, 0.5}}
	gains := PositionGain(pts, 0.2)
	require.Len(t, gains, 3)
	assert.InDelta(t, 0.75, gains[0], 1e-12)
	assert.InDelta(t, 0.75, gains[1], 1e-12)
	assert.InDelta(t, 1.5, gains[2], 1e-12)

	var sum float64
	for _, g := range PositionGain(testutil.RoomScan(0.3, -0.2, 0.1), 0.2) {
		sum += g
	}
	assert.InDelta(t, float64(len(testutil.RoomScan(0.3, -0.2, 0.1))), sum, 1e-9)
	assert.Nil(t, PositionGain(nil, 0.2))
}

func TestEvaluator_PositionGainWeightsPoints(t *testing.T) {
	t.Parallel()
	m := testutil.BlobMap(t)
	pose := Pose{X: 2.55, Y: 2.52, Theta: 0.02}
	scan := testutil.BlobScan()

	e := NewEvaluator(m, true)
	e.SetScan(scan)
	assert.Same(t, m, e.Map())
	assert.Len(t, e.Points(), len(scan))

	// With 10 m cells the two non-negative points share a cell.
	gains := PositionGain(scan, m.CellSize())
	assert.Equal(t, []float64{1.5, 0.75, 0.75}, gains)

	var want float64
	for i, p := range scan {
		want += gains[i] * Likelihood(m, pose, []linalg.Vec2{p})
	}
	assert.InDelta(t, want, e.Likelihood(pose), 1e-9*want)

	plain := NewEvaluator(m, false)
	plain.SetScan(scan)
	assert.InDelta(t, Likelihood(m, pose, scan), plain.Likelihood(pose), 1e-12)
}
