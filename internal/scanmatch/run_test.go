package scanmatch

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanmatch/internal/linalg"
)

// scripted returns the errors in errs, one per Iterate, and reports
// convergence once convergeAt iterations have run.
type scripted struct {
	errs       []error
	convergeAt int
	iterations int
	tests      int
}

func (s *scripted) Begin(Pose, linalg.Mat3) error { return nil }
func (s *scripted) SetScan([]linalg.Vec2)         {}
func (s *scripted) Pose() Pose                    { return Pose{X: float64(s.iterations)} }
func (s *scripted) Likelihood() float64           { return 1 }
func (s *scripted) Name() string                  { return "scripted" }

func (s *scripted) Iterate() (Pose, error) {
	var err error
	if s.iterations < len(s.errs) {
		err = s.errs[s.iterations]
	}
	s.iterations++
	if err != nil {
		return Pose{}, err
	}
	return Pose{X: 1}, nil
}

func (s *scripted) ConvergeTest(float64, float64) bool {
	s.tests++
	return s.iterations >= s.convergeAt
}

func TestRun_ToleratesRecoverableErrors(t *testing.T) {
	t.Parallel()
	opt := &scripted{
		errs:       []error{ErrNoOverlap, fmt.Errorf("%w: singular", ErrNumericalFailure), nil},
		convergeAt: 2,
	}
	res, err := Run(opt, RunOptions{MaxIterations: 10, Distance: 1, Angle: 1})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 2, res.Failures)
	// Failed iterations are never tested for convergence.
	assert.Equal(t, 1, opt.tests)
	assert.Equal(t, "scripted", res.Optimizer)
	assert.Equal(t, Pose{X: 3}, res.Pose)

	require.Len(t, res.Trace, 3)
	assert.Contains(t, res.Trace[0].Error, "does not overlap")
	assert.Contains(t, res.Trace[1].Error, "singular")
	assert.Empty(t, res.Trace[2].Error)
	assert.Equal(t, Pose{X: 1}, res.Trace[2].Delta)
	assert.Equal(t, 3, res.Trace[2].Iteration)
}

func TestRun_AbortsOnOtherErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	opt := &scripted{errs: []error{nil, boom}, convergeAt: 100}
	res, err := Run(opt, RunOptions{MaxIterations: 10})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, res.Iterations)
	assert.False(t, res.Converged)

	_, err = Run(&scripted{errs: []error{ErrNotStarted}}, RunOptions{MaxIterations: 10})
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestRun_StopsAtBudget(t *testing.T) {
	t.Parallel()
	opt := &scripted{convergeAt: 100}
	res, err := Run(opt, RunOptions{MaxIterations: 5})
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 5, res.Iterations)
	assert.Equal(t, 5, opt.tests)
	assert.Len(t, res.Trace, 5)
}

func TestRun_InvalidBudget(t *testing.T) {
	t.Parallel()
	_, err := Run(&scripted{}, RunOptions{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
