package scanmatch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanmatch/internal/config"
	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/testutil"
)

func configFor(name string) *config.TuningConfig {
	cfg := config.DefaultTuningConfig()
	cfg.Optimizer = &name
	return cfg
}

func TestNewOptimizer(t *testing.T) {
	t.Parallel()
	m := testutil.BlobMap(t)
	for _, name := range []string{
		config.OptimizerNewton,
		config.OptimizerMonteCarlo,
		config.OptimizerQMC,
		config.OptimizerHybrid,
	} {
		t.Run(name, func(t *testing.T) {
			opt, err := NewOptimizer(configFor(name), m, nil)
			require.NoError(t, err)
			assert.Equal(t, name, opt.Name())
		})
	}
}

func TestNewOptimizer_Errors(t *testing.T) {
	t.Parallel()
	m := testutil.BlobMap(t)

	opt, err := NewOptimizer(configFor("bfgs"), m, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Nil(t, opt)

	_, err = NewOptimizer(config.DefaultTuningConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	cfg := configFor(config.OptimizerMonteCarlo)
	zero := 0
	cfg.Particles = &zero
	opt, err = NewOptimizer(cfg, m, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Nil(t, opt, "a failed constructor must not return a typed nil")

	cfg = configFor(config.OptimizerHybrid)
	cfg.QMCResolution = &zero
	opt, err = NewOptimizer(cfg, m, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Nil(t, opt)
}

func TestRunOptionsFromConfig(t *testing.T) {
	t.Parallel()
	opts := RunOptionsFromConfig(config.DefaultTuningConfig(), nil)
	assert.Equal(t, 50, opts.MaxIterations)
	assert.InDelta(t, 1e-4, opts.Distance, 1e-15)
	assert.InDelta(t, 0.01*math.Pi/180, opts.Angle, 1e-15)

	assert.Equal(t, linalg.Diag3(0.04, 0.04, 0.0076), InitialCovariance(config.DefaultTuningConfig()))
}

func TestDefaultConfigFindsBlob(t *testing.T) {
	t.Parallel()
	m := testutil.BlobMap(t)
	cfg := config.DefaultTuningConfig()
	opt, err := NewOptimizer(cfg, m, nil)
	require.NoError(t, err)
	require.NoError(t, opt.Begin(Pose{X: 2.6, Y: 2.45, Theta: 0.05}, InitialCovariance(cfg)))
	opt.SetScan(testutil.BlobScan())

	opts := RunOptionsFromConfig(cfg, nil)
	opts.MaxIterations = 100
	res, err := Run(opt, opts)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, testutil.BlobCenter[0], res.Pose.X, 1e-3)
	assert.InDelta(t, testutil.BlobCenter[1], res.Pose.Y, 1e-3)
	assert.InDelta(t, 0, res.Pose.Theta, 1e-3)
}
