package scanmatch

import (
	"fmt"

	"github.com/banshee-data/scanmatch/internal/config"
	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/monitoring"
	"github.com/banshee-data/scanmatch/internal/statmap"
)

// NewOptimizer builds the optimizer named by cfg over m.
func NewOptimizer(cfg *config.TuningConfig, m *statmap.ProbabilityMap, log *monitoring.Logger) (Optimizer, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil map", ErrInvalidArgument)
	}
	gain := cfg.GetPositionGain()
	switch name := cfg.GetOptimizer(); name {
	case config.OptimizerNewton:
		return NewNewton(m, gain, log), nil
	case config.OptimizerMonteCarlo:
		mc, err := NewMonteCarlo(m, MonteCarloOptions{
			Particles:    cfg.GetParticles(),
			Alpha:        cfg.GetResampleAlpha(),
			InitialCov:   diag(cfg.GetInitialCov()),
			ResampleCov:  diag(cfg.GetResampleCov()),
			PositionGain: gain,
			Seed:         cfg.GetRandomSeed(),
			Log:          log,
		})
		if err != nil {
			return nil, err
		}
		return mc, nil
	case config.OptimizerQMC:
		q, err := newQMCFromConfig(cfg, m, log)
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.OptimizerHybrid:
		q, err := newQMCFromConfig(cfg, m, log)
		if err != nil {
			return nil, err
		}
		return NewHybrid(q, NewNewton(m, gain, log), log), nil
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %q", ErrInvalidArgument, name)
	}
}

func newQMCFromConfig(cfg *config.TuningConfig, m *statmap.ProbabilityMap, log *monitoring.Logger) (*QMC, error) {
	return NewQMC(m, QMCOptions{
		Resolution:   cfg.GetQMCResolution(),
		InitialCov:   diag(cfg.GetInitialCov()),
		MinCov:       diag(cfg.GetQMCMinCov()),
		PositionGain: cfg.GetPositionGain(),
		Log:          log,
	})
}

// RunOptionsFromConfig returns the iteration budget and thresholds in cfg.
func RunOptionsFromConfig(cfg *config.TuningConfig, log *monitoring.Logger) RunOptions {
	return RunOptions{
		MaxIterations: cfg.GetMaxIterations(),
		Distance:      cfg.GetConvergeDistance(),
		Angle:         cfg.GetConvergeAngle(),
		Log:           log,
	}
}

// InitialCovariance returns the configured prior covariance.
func InitialCovariance(cfg *config.TuningConfig) linalg.Mat3 {
	return diag(cfg.GetInitialCov())
}

func diag(v [3]float64) linalg.Mat3 { return linalg.Diag3(v[0], v[1], v[2]) }
