package scanmatch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/testutil"
)

func roomMonteCarloOptions(seed uint64) MonteCarloOptions {
	return MonteCarloOptions{
		Particles:   200,
		Alpha:       0.1,
		InitialCov:  linalg.Diag3(0.04, 0.04, 0.0076),
		ResampleCov: linalg.Diag3(0.0004, 0.0004, 0.0003),
		Seed:        seed,
	}
}

func TestMonteCarlo_RecoversRoomPose(t *testing.T) {
	t.Parallel()
	truth := Pose{X: 0.3, Y: -0.2, Theta: 0.1}
	prior := truth.Add(Pose{X: 0.1, Y: -0.1, Theta: 0.05})

	mc, err := NewMonteCarlo(testutil.RoomMap(t, 0.05), roomMonteCarloOptions(7))
	require.NoError(t, err)
	require.NoError(t, mc.Begin(prior, linalg.Mat3{}))
	mc.SetScan(testutil.RoomScan(truth.X, truth.Y, truth.Theta))
	require.Len(t, mc.Particles(), 200)
	assert.Equal(t, prior, mc.Particles()[0].Pose)

	prev := 0.0
	for i := 0; i < 40; i++ {
		_, err := mc.Iterate()
		require.NoError(t, err)
		// The best particle is always carried over, so the estimate
		// never gets worse.
		assert.GreaterOrEqual(t, mc.Likelihood(), prev, "iteration %d", i)
		prev = mc.Likelihood()
		require.Len(t, mc.Particles(), 200)
	}

	diff := mc.Pose().Sub(truth)
	assert.Less(t, diff.Distance(), 0.03, "pose %v", mc.Pose())
	assert.Less(t, math.Abs(diff.Theta), 0.01, "pose %v", mc.Pose())
}

func TestMonteCarlo_SeedIsDeterministic(t *testing.T) {
	t.Parallel()
	m := testutil.RoomMap(t, 0.05)
	scan := testutil.RoomScan(0, 0, 0)
	run := func(seed uint64) Pose {
		mc, err := NewMonteCarlo(m, roomMonteCarloOptions(seed))
		require.NoError(t, err)
		require.NoError(t, mc.Begin(Pose{X: 0.05, Y: 0.05}, linalg.Mat3{}))
		mc.SetScan(scan)
		for i := 0; i < 5; i++ {
			_, err := mc.Iterate()
			require.NoError(t, err)
		}
		return mc.Pose()
	}
	assert.Equal(t, run(3), run(3))
}

func TestMonteCarlo_ClonesBest(t *testing.T) {
	t.Parallel()
	opts := roomMonteCarloOptions(1)
	opts.Particles = 10
	opts.Alpha = 0.25
	mc, err := NewMonteCarlo(testutil.BlobMap(t), opts)
	require.NoError(t, err)
	require.NoError(t, mc.Begin(Pose{X: 2.5, Y: 2.5}, linalg.Diag3(0.01, 0.01, 0.01)))
	mc.SetScan(testutil.BlobScan())

	_, err = mc.Iterate()
	require.NoError(t, err)
	// ⌈0.25·10⌉ = 3 exact copies of the estimate lead the population.
	for i := 0; i < 3; i++ {
		assert.Equal(t, mc.Pose(), mc.Particles()[i].Pose, "particle %d", i)
	}
}

func TestRouletteIndex(t *testing.T) {
	t.Parallel()
	weights := []float64{0, 0, 2, 0, 1, 0}
	cum := []float64{0, 0, 2, 2, 3, 3}
	tests := []struct {
		r    float64
		want int
	}{
		{0, 2},
		{1e-12, 2},
		{1.999, 2},
		{2, 2},
		{2.001, 4},
		{2.999, 4},
	}
	for _, tt := range tests {
		got := rouletteIndex(cum, weights, tt.r)
		assert.Equal(t, tt.want, got, "r=%g", tt.r)
		assert.NotZero(t, weights[got], "r=%g", tt.r)
	}
}

// Without clones or jitter every resampled particle is a copy of a drawn
// one, so the new population shows the roulette draw directly.
func TestMonteCarlo_ResampleFollowsWeights(t *testing.T) {
	t.Parallel()
	const n = 4000
	m := testutil.BlobMap(t)
	scan := testutil.BlobScan()
	offMap := Pose{X: 500, Y: 500}
	poses := []Pose{
		offMap,
		{X: 2.5, Y: 2.5},
		offMap,
		{X: 2.56, Y: 2.5},
		{X: 2.5, Y: 2.55, Theta: 0.05},
	}

	eval := NewEvaluator(m, false)
	eval.SetScan(scan)
	weights := make([]float64, len(poses))
	for i, p := range poses {
		weights[i] = eval.Likelihood(p)
	}
	require.Zero(t, weights[0])
	require.Zero(t, weights[2])
	total := 0.0
	for i, w := range weights {
		if i != 0 && i != 2 {
			require.Greater(t, w, 0.0, "pose %v", poses[i])
		}
		total += w
	}

	mc, err := NewMonteCarlo(m, MonteCarloOptions{Particles: n, Alpha: 0, Seed: 11})
	require.NoError(t, err)
	require.NoError(t, mc.Begin(poses[1], linalg.Diag3(0.01, 0.01, 0.01)))
	mc.SetScan(scan)
	for i := range mc.particles {
		mc.particles[i] = newParticle(poses[i%len(poses)])
	}

	_, err = mc.Iterate()
	require.NoError(t, err)
	assert.Equal(t, poses[1], mc.Pose())

	draws := make(map[Pose]int)
	for _, p := range mc.Particles() {
		draws[p.Pose]++
	}
	require.Len(t, mc.Particles(), n)
	assert.Zero(t, draws[offMap])
	for i, p := range poses {
		if weights[i] == 0 {
			continue
		}
		got := float64(draws[p]) / n
		assert.InDelta(t, weights[i]/total, got, 0.04, "pose %v", p)
	}
}

func TestMonteCarlo_SingleParticle(t *testing.T) {
	t.Parallel()
	mc, err := NewMonteCarlo(testutil.BlobMap(t), MonteCarloOptions{Particles: 1, Alpha: 1})
	require.NoError(t, err)
	prior := Pose{X: 2.55, Y: 2.5}
	require.NoError(t, mc.Begin(prior, linalg.Mat3{}))
	mc.SetScan(testutil.BlobScan())

	delta, err := mc.Iterate()
	require.NoError(t, err)
	assert.Equal(t, Pose{}, delta)
	assert.Equal(t, prior, mc.Pose())
	assert.True(t, mc.ConvergeTest(1e-9, 1e-9))
	assert.Greater(t, mc.Likelihood(), 0.0)
}

func TestMonteCarlo_NoOverlap(t *testing.T) {
	t.Parallel()
	opts := roomMonteCarloOptions(1)
	opts.Particles = 20
	mc, err := NewMonteCarlo(testutil.BlobMap(t), opts)
	require.NoError(t, err)
	prior := Pose{X: 500, Y: 500}
	require.NoError(t, mc.Begin(prior, linalg.Mat3{}))
	mc.SetScan(testutil.BlobScan())

	_, err = mc.Iterate()
	assert.ErrorIs(t, err, ErrNoOverlap)
	assert.Equal(t, prior, mc.Pose())
	assert.False(t, mc.ConvergeTest(1e9, 1e9))
}

func TestMonteCarlo_Errors(t *testing.T) {
	t.Parallel()
	m := testutil.BlobMap(t)

	_, err := NewMonteCarlo(m, MonteCarloOptions{Particles: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewMonteCarlo(m, MonteCarloOptions{Particles: 10, Alpha: 1.5})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewMonteCarlo(m, MonteCarloOptions{Particles: 10, ResampleCov: linalg.Diag3(-1, 1, 1)})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	mc, err := NewMonteCarlo(m, MonteCarloOptions{Particles: 10})
	require.NoError(t, err)
	_, err = mc.Iterate()
	assert.ErrorIs(t, err, ErrNotStarted)
	// More than one particle needs a spread.
	assert.ErrorIs(t, mc.Begin(Pose{}, linalg.Mat3{}), ErrInvalidArgument)
	assert.ErrorIs(t, mc.Begin(Pose{Theta: math.Inf(1)}, linalg.Diag3(1, 1, 1)), ErrInvalidArgument)
	assert.Equal(t, "montecarlo", mc.Name())
}
