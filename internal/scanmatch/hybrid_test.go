package scanmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/statmap"
	"github.com/banshee-data/scanmatch/internal/testutil"
)

func newBlobHybrid(t *testing.T, m *statmap.ProbabilityMap) *Hybrid {
	t.Helper()
	q, err := NewQMC(m, QMCOptions{
		Resolution: 5,
		InitialCov: linalg.Diag3(0.04, 0.04, 0.0076),
		MinCov:     linalg.Diag3(1e-6, 1e-6, 7.6e-7),
	})
	require.NoError(t, err)
	return NewHybrid(q, NewNewton(m, false, nil), nil)
}

func TestHybrid_SwitchesToNewton(t *testing.T) {
	t.Parallel()
	h := newBlobHybrid(t, testutil.BlobMap(t))
	require.NoError(t, h.Begin(Pose{X: 2.6, Y: 2.45, Theta: 0.05}, linalg.Mat3{}))
	h.SetScan(testutil.BlobScan())
	assert.Equal(t, "hybrid", h.Name())

	delta, err := h.Iterate()
	require.NoError(t, err)
	require.Greater(t, delta.Distance(), HybridSwitchDistance, "first lattice step should be large")
	assert.False(t, h.NewtonMode())
	assert.False(t, h.ConvergeTest(1e9, 1e9), "QMC mode never reports convergence")

	res, err := Run(h, RunOptions{MaxIterations: 100, Distance: 1e-7, Angle: 1e-7})
	require.NoError(t, err)
	assert.True(t, h.NewtonMode())
	assert.True(t, res.Converged)
	assert.InDelta(t, testutil.BlobCenter[0], res.Pose.X, 1e-6)
	assert.InDelta(t, testutil.BlobCenter[1], res.Pose.Y, 1e-6)
	assert.InDelta(t, 0, res.Pose.Theta, 1e-6)
	assert.Equal(t, h.newton.Pose(), h.Pose())
	assert.Equal(t, h.newton.Likelihood(), h.Likelihood())
	assert.Empty(t, h.qmc.Particles(), "particles are dropped on the switch")
}

func TestHybrid_TraceHasNoLikelihoodDrop(t *testing.T) {
	t.Parallel()
	h := newBlobHybrid(t, testutil.BlobMap(t))
	require.NoError(t, h.Begin(Pose{X: 2.6, Y: 2.45, Theta: 0.05}, linalg.Mat3{}))
	h.SetScan(testutil.BlobScan())

	res, err := Run(h, RunOptions{MaxIterations: 100, Distance: 1e-7, Angle: 1e-7})
	require.NoError(t, err)
	require.True(t, h.NewtonMode())
	require.NotEmpty(t, res.Trace)
	for _, step := range res.Trace {
		assert.Greater(t, step.Likelihood, 0.0, "iteration %d", step.Iteration)
	}
}

func TestHybrid_BeginResetsMode(t *testing.T) {
	t.Parallel()
	h := newBlobHybrid(t, testutil.BlobMap(t))
	h.SetScan(testutil.BlobScan())
	require.NoError(t, h.Begin(Pose{X: 2.5, Y: 2.5}, linalg.Mat3{}))

	// Centred on the peak the first lattice step is already tiny.
	_, err := h.Iterate()
	require.NoError(t, err)
	require.True(t, h.NewtonMode())
	assert.Greater(t, h.Likelihood(), 0.0)
	assert.Equal(t, h.qmc.Likelihood(), h.Likelihood())

	require.NoError(t, h.Begin(Pose{X: 2.6, Y: 2.5}, linalg.Mat3{}))
	assert.False(t, h.NewtonMode())
	assert.Equal(t, Pose{X: 2.6, Y: 2.5}, h.Pose())
}

func TestHybrid_PropagatesQMCFailure(t *testing.T) {
	t.Parallel()
	h := newBlobHybrid(t, testutil.BlobMap(t))
	require.NoError(t, h.Begin(Pose{X: 90, Y: 90}, linalg.Mat3{}))
	h.SetScan(testutil.BlobScan())
	_, err := h.Iterate()
	assert.ErrorIs(t, err, ErrNoOverlap)
	assert.False(t, h.NewtonMode())
}
