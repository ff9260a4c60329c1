package scanmatch

import (
	"errors"

	"github.com/banshee-data/scanmatch/internal/linalg"
)

var (
	// ErrNumericalFailure reports an iteration whose step could not be
	// computed. The pose is left unchanged; the next Iterate may succeed.
	ErrNumericalFailure = errors.New("scanmatch: numerical failure")
	// ErrNoOverlap reports an iteration in which no scan point touched a
	// populated cell, so the likelihood carries no information.
	ErrNoOverlap = errors.New("scanmatch: scan does not overlap the map")
	// ErrNotStarted is returned by Iterate before Begin.
	ErrNotStarted = errors.New("scanmatch: optimizer not started")
	// ErrInvalidArgument reports a bad option or input.
	ErrInvalidArgument = errors.New("scanmatch: invalid argument")
)

// Optimizer searches for the pose that best fits the current scan.
//
// Usage: Begin with a prior, SetScan, then Iterate until ConvergeTest
// reports true or the caller gives up. Optimizers are not safe for
// concurrent use.
type Optimizer interface {
	// Begin resets the search around prior. cov is the prior covariance
	// over (x, y, θ); a zero matrix selects the optimizer's configured
	// default. Newton ignores it.
	Begin(prior Pose, cov linalg.Mat3) error

	// SetScan sets the robot-frame scan points. The slice is retained.
	SetScan(points []linalg.Vec2)

	// Iterate performs one step and returns the pose change it made.
	Iterate() (Pose, error)

	// ConvergeTest reports whether the last step moved less than distance
	// metres and angle radians.
	ConvergeTest(distance, angle float64) bool

	Pose() Pose
	Likelihood() float64
	Name() string
}

// State is the lifecycle of a Newton search.
type State int

const (
	StateIdle State = iota
	StateIterating
	StateConverged
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIterating:
		return "iterating"
	case StateConverged:
		return "converged"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

func isZero(m linalg.Mat3) bool { return m == linalg.Mat3{} }
