package scanmatch

import (
	"fmt"

	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/monitoring"
	"github.com/banshee-data/scanmatch/internal/statmap"
)

// Newton maximises the likelihood with a safeguarded Newton method: the
// Hessian of −L is repaired by ModifiedHessian before every solve, so each
// step is a descent direction even far from the optimum.
type Newton struct {
	eval       *Evaluator
	log        *monitoring.Logger
	state      State
	pose       Pose
	delta      Pose
	likelihood float64
	steps      int
	lastFix    linalg.HessianCorrection
}

// NewNewton returns a Newton optimizer over m.
func NewNewton(m *statmap.ProbabilityMap, positionGain bool, log *monitoring.Logger) *Newton {
	return &Newton{eval: NewEvaluator(m, positionGain), log: monitoring.OrDiscard(log)}
}

func (n *Newton) Name() string { return "newton" }

// Begin starts a search at prior. The covariance is not used.
func (n *Newton) Begin(prior Pose, _ linalg.Mat3) error {
	if !prior.IsFinite() {
		return fmt.Errorf("%w: non-finite prior %v", ErrInvalidArgument, prior)
	}
	n.pose = prior.Normalize()
	n.delta = Pose{}
	n.likelihood = 0
	n.steps = 0
	n.state = StateIterating
	return nil
}

func (n *Newton) SetScan(points []linalg.Vec2) { n.eval.SetScan(points) }

// Iterate takes one Newton step on −L. On failure the pose is unchanged and
// the optimizer reports StateFailed until a later step succeeds.
func (n *Newton) Iterate() (Pose, error) {
	if n.state == StateIdle {
		return Pose{}, ErrNotStarted
	}
	l, g, h := n.eval.GradientHessian(n.pose)
	n.likelihood = l
	if l <= 0 {
		return Pose{}, n.fail(ErrNoOverlap, "likelihood %g at %v", l, n.pose)
	}

	// Minimise −L.
	grad := g.Scale(-1)
	hess := h.Scale(-1)
	if !linalg.IsFinite3(grad) || !isFiniteMat3(hess) {
		return Pose{}, n.fail(ErrNumericalFailure, "non-finite gradient or Hessian at %v", n.pose)
	}

	lower, fix := linalg.ModifiedHessian(&hess)
	n.lastFix = fix
	inv, err := linalg.Product3(lower).Inverse()
	if err != nil {
		return Pose{}, n.fail(ErrNumericalFailure, "corrected Hessian not invertible: %v", err)
	}
	step := inv.MulVec(grad).Scale(-1)
	if !linalg.IsFinite3(step) {
		return Pose{}, n.fail(ErrNumericalFailure, "non-finite step %v", step)
	}

	n.delta = PoseFromVec(step)
	n.pose = n.pose.Add(n.delta)
	n.steps++
	n.state = StateIterating
	n.log.Tracef("newton: L=%.6g step=%v shift=%.3g maxadd=%.3g -> %v",
		l, n.delta, fix.Shift, fix.MaxAdd, n.pose)
	return n.delta, nil
}

func (n *Newton) fail(kind error, format string, args ...interface{}) error {
	n.state = StateFailed
	n.delta = Pose{}
	err := fmt.Errorf("%w: "+format, append([]interface{}{kind}, args...)...)
	n.log.Diagf("newton: %v", err)
	return err
}

// ConvergeTest reports true once a successful step falls below both
// thresholds, and moves the optimizer to StateConverged.
func (n *Newton) ConvergeTest(distance, angle float64) bool {
	switch n.state {
	case StateConverged:
		return true
	case StateIterating:
		if n.steps > 0 && withinThreshold(n.delta, distance, angle) {
			n.state = StateConverged
			return true
		}
	}
	return false
}

func (n *Newton) Pose() Pose          { return n.pose }
func (n *Newton) Likelihood() float64 { return n.likelihood }
func (n *Newton) State() State        { return n.state }

// LastCorrection returns the Hessian repair applied by the last step.
func (n *Newton) LastCorrection() linalg.HessianCorrection { return n.lastFix }

func isFiniteMat3(m linalg.Mat3) bool {
	return linalg.IsFinite3(linalg.Vec3{m[0], m[1], m[2]}) &&
		linalg.IsFinite3(linalg.Vec3{m[3], m[4], m[5]}) &&
		linalg.IsFinite3(linalg.Vec3{m[6], m[7], m[8]})
}
