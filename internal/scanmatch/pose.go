package scanmatch

import (
	"fmt"
	"math"

	"github.com/banshee-data/scanmatch/internal/linalg"
)

// Pose is a planar robot pose in the map frame: position in metres and
// heading in radians.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// PoseFromVec builds a pose from (x, y, θ).
func PoseFromVec(v linalg.Vec3) Pose { return Pose{X: v[0], Y: v[1], Theta: v[2]} }

// Vec returns the pose as (x, y, θ).
func (p Pose) Vec() linalg.Vec3 { return linalg.Vec3{p.X, p.Y, p.Theta} }

// Transform returns the homogeneous robot-to-map transform: a rotation by
// Theta about z followed by a translation by (X, Y).
func (p Pose) Transform() linalg.Mat4 {
	s, c := math.Sincos(p.Theta)
	return linalg.Mat4{
		c, -s, 0, p.X,
		s, c, 0, p.Y,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Apply maps a robot-frame point into the map frame.
func (p Pose) Apply(pt linalg.Vec2) linalg.Vec2 {
	s, c := math.Sincos(p.Theta)
	return linalg.Vec2{c*pt[0] - s*pt[1] + p.X, s*pt[0] + c*pt[1] + p.Y}
}

// Add returns the component-wise sum with the heading wrapped.
func (p Pose) Add(d Pose) Pose {
	return Pose{X: p.X + d.X, Y: p.Y + d.Y, Theta: p.Theta + d.Theta}.Normalize()
}

// Sub returns the component-wise difference p − q with the heading
// difference wrapped into (−π, π].
func (p Pose) Sub(q Pose) Pose {
	return Pose{X: p.X - q.X, Y: p.Y - q.Y, Theta: p.Theta - q.Theta}.Normalize()
}

// Normalize wraps Theta into (−π, π].
func (p Pose) Normalize() Pose {
	p.Theta = wrapAngle(p.Theta)
	return p
}

// Distance returns the translational length of p.
func (p Pose) Distance() float64 { return math.Hypot(p.X, p.Y) }

// IsFinite reports whether every component is finite.
func (p Pose) IsFinite() bool { return linalg.IsFinite3(p.Vec()) }

func (p Pose) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.2f°)", p.X, p.Y, p.Theta*180/math.Pi)
}

func wrapAngle(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// Particle is one weighted pose hypothesis. Transform caches
// Pose.Transform().
type Particle struct {
	Pose      Pose
	Transform linalg.Mat4
	Weight    float64
}

func newParticle(p Pose) Particle {
	return Particle{Pose: p, Transform: p.Transform()}
}

// withinThreshold reports whether delta is below both thresholds.
func withinThreshold(delta Pose, distance, angle float64) bool {
	return delta.Distance() < distance && math.Abs(delta.Theta) < angle
}
