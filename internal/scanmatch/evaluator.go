package scanmatch

import (
	"math"

	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/statmap"
)

// Evaluator scores poses for one scan against a probability map.
type Evaluator struct {
	m            *statmap.ProbabilityMap
	positionGain bool
	points       []linalg.Vec2
	gains        []float64
}

// NewEvaluator returns an evaluator over m. With positionGain set, every
// scan is weighted by PositionGain before scoring.
func NewEvaluator(m *statmap.ProbabilityMap, positionGain bool) *Evaluator {
	return &Evaluator{m: m, positionGain: positionGain}
}

// Map returns the map being matched against.
func (e *Evaluator) Map() *statmap.ProbabilityMap { return e.m }

// SetScan replaces the robot-frame scan points. The slice is retained.
func (e *Evaluator) SetScan(points []linalg.Vec2) {
	e.points = points
	e.gains = nil
	if e.positionGain && len(points) > 0 {
		e.gains = PositionGain(points, e.m.CellSize())
	}
}

// Points returns the current scan.
func (e *Evaluator) Points() []linalg.Vec2 { return e.points }

// Likelihood scores pose against the current scan.
func (e *Evaluator) Likelihood(pose Pose) float64 {
	return e.likelihood(pose.Transform())
}

// Likelihood scores pose for points against m: the sum over points and
// planes of exp(−½·qᵗΣ⁻¹q)·weight for every populated cell containing the
// transformed point, divided by the number of planes. q is the transformed
// point relative to the cell's Gaussian mean.
func Likelihood(m *statmap.ProbabilityMap, pose Pose, points []linalg.Vec2) float64 {
	e := Evaluator{m: m, points: points}
	return e.Likelihood(pose)
}

// GradientHessian returns the likelihood together with its gradient and
// approximate Hessian with respect to (x, y, θ). See Evaluator.GradientHessian.
func GradientHessian(m *statmap.ProbabilityMap, pose Pose, points []linalg.Vec2) (float64, linalg.Vec3, linalg.Mat3) {
	e := Evaluator{m: m, points: points}
	return e.GradientHessian(pose)
}

func (e *Evaluator) likelihood(tf linalg.Mat4) float64 {
	var sum float64
	for i, p := range e.points {
		t := tf.Transform2(p)
		var pt float64
		for plane := 0; plane < statmap.Planes; plane++ {
			cell, core := e.m.Cell(plane, t[0], t[1])
			if cell == nil || cell.Weight <= 0 {
				continue
			}
			q := t.Sub(core).Sub(cell.Mean)
			pt += math.Exp(-0.5*linalg.Mat2(cell.InvCov).Quad(q)) * cell.Weight
		}
		sum += pt * e.gain(i)
	}
	return sum / statmap.Planes
}

func (e *Evaluator) gain(i int) float64 {
	if e.gains == nil {
		return 1
	}
	return e.gains[i]
}

// GradientHessian returns the likelihood L, its gradient g and an
// approximate Hessian H with respect to (x, y, θ).
//
// For each contributing term f = exp(−½·qᵗAq)·weight, with A the inverse
// covariance and J = ∂q/∂(x, y, θ) = [e₁ e₂ (−s·px − c·py, c·px − s·py)],
// u = JᵗAq gives g −= f·u and H += f·(u·uᵗ − JᵗAJ). The second derivative
// of the rotation is ignored. All sums are divided by the plane count, as in
// Likelihood.
func (e *Evaluator) GradientHessian(pose Pose) (float64, linalg.Vec3, linalg.Mat3) {
	var (
		l float64
		g linalg.Vec3
		h linalg.Mat3
	)
	tf := pose.Transform()
	s, c := math.Sincos(pose.Theta)
	for i, p := range e.points {
		t := tf.Transform2(p)
		dth := linalg.Vec2{-s*p[0] - c*p[1], c*p[0] - s*p[1]}
		gain := e.gain(i)
		for plane := 0; plane < statmap.Planes; plane++ {
			cell, core := e.m.Cell(plane, t[0], t[1])
			if cell == nil || cell.Weight <= 0 {
				continue
			}
			a := linalg.Mat2(cell.InvCov)
			q := t.Sub(core).Sub(cell.Mean)
			aq := a.MulVec(q)
			f := math.Exp(-0.5*q.Dot(aq)) * cell.Weight * gain

			u := linalg.Vec3{aq[0], aq[1], dth.Dot(aq)}
			ad := a.MulVec(dth)
			jaj := linalg.Mat3{
				a[0], a[1], ad[0],
				a[2], a[3], ad[1],
				ad[0], ad[1], dth.Dot(ad),
			}

			l += f
			g = g.Sub(u.Scale(f))
			h = h.Add(linalg.Outer3(u, u).Add(jaj.Scale(-1)).Scale(f))
		}
	}
	const n = statmap.Planes
	return l / n, g.Scale(1.0 / n), h.Scale(1.0 / n)
}

// PositionGain returns per-point weights that down-weight densely sampled
// regions of a scan: a point sharing its cell (of side cellSize, in the robot
// frame) with k−1 others gets 1/k, and the gains are scaled to sum to
// len(points).
func PositionGain(points []linalg.Vec2, cellSize float64) []float64 {
	if len(points) == 0 {
		return nil
	}
	type key struct{ x, y int64 }
	keys := make([]key, len(points))
	counts := make(map[key]int, len(points))
	for i, p := range points {
		k := key{int64(math.Floor(p[0] / cellSize)), int64(math.Floor(p[1] / cellSize))}
		keys[i] = k
		counts[k]++
	}
	scale := float64(len(points)) / float64(len(counts))
	gains := make([]float64, len(points))
	for i, k := range keys {
		gains[i] = scale / float64(counts[k])
	}
	return gains
}
