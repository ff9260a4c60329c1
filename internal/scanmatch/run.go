package scanmatch

import (
	"errors"
	"fmt"

	"github.com/banshee-data/scanmatch/internal/monitoring"
)

// RunOptions bounds a Run.
type RunOptions struct {
	MaxIterations int
	Distance      float64 // metres
	Angle         float64 // radians
	Log           *monitoring.Logger
}

// Step records one iteration of a Run.
type Step struct {
	Iteration  int     `json:"iteration"`
	Pose       Pose    `json:"pose"`
	Delta      Pose    `json:"delta"`
	Likelihood float64 `json:"likelihood"`
	Error      string  `json:"error,omitempty"`
}

// Result is the outcome of a Run.
type Result struct {
	Optimizer  string  `json:"optimizer"`
	Pose       Pose    `json:"pose"`
	Likelihood float64 `json:"likelihood"`
	Iterations int     `json:"iterations"`
	Failures   int     `json:"failures"`
	Converged  bool    `json:"converged"`
	Trace      []Step  `json:"trace,omitempty"`
}

// Run iterates opt until ConvergeTest passes or MaxIterations is spent. The
// optimizer must already have been started with Begin and given a scan.
// Numerical failures and iterations without map overlap are counted and
// the loop continues; any other error aborts the run.
func Run(opt Optimizer, opts RunOptions) (Result, error) {
	if opts.MaxIterations < 1 {
		return Result{}, fmt.Errorf("%w: max iterations must be at least 1, got %d", ErrInvalidArgument, opts.MaxIterations)
	}
	log := monitoring.OrDiscard(opts.Log)
	res := Result{Optimizer: opt.Name()}
	log.Diagf("run %s: up to %d iterations, thresholds %.3g m / %.3g rad",
		opt.Name(), opts.MaxIterations, opts.Distance, opts.Angle)
	inner := log.Indent()

	for i := 1; i <= opts.MaxIterations; i++ {
		res.Iterations = i
		delta, err := opt.Iterate()
		step := Step{Iteration: i, Pose: opt.Pose(), Delta: delta, Likelihood: opt.Likelihood()}
		if err != nil {
			if !errors.Is(err, ErrNumericalFailure) && !errors.Is(err, ErrNoOverlap) {
				res.Pose = opt.Pose()
				res.Likelihood = opt.Likelihood()
				return res, fmt.Errorf("iteration %d: %w", i, err)
			}
			res.Failures++
			step.Error = err.Error()
			inner.Diagf("iteration %d failed: %v", i, err)
		} else {
			inner.Tracef("iteration %d: L=%.6g delta=%v pose=%v", i, step.Likelihood, delta, step.Pose)
		}
		res.Trace = append(res.Trace, step)

		if err == nil && opt.ConvergeTest(opts.Distance, opts.Angle) {
			res.Converged = true
			break
		}
	}

	res.Pose = opt.Pose()
	res.Likelihood = opt.Likelihood()
	if res.Converged {
		log.Diagf("run %s: converged after %d iterations at %v (L=%.6g)", opt.Name(), res.Iterations, res.Pose, res.Likelihood)
	} else {
		log.Opsf("run %s: no convergence after %d iterations (%d failed), pose %v", opt.Name(), res.Iterations, res.Failures, res.Pose)
	}
	return res, nil
}
