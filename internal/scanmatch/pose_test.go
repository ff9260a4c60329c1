package scanmatch

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/scanmatch/internal/linalg"
)

func TestPose_ApplyMatchesTransform(t *testing.T) {
	t.Parallel()
	p := Pose{X: 1, Y: 2, Theta: math.Pi / 2}
	got := p.Apply(linalg.Vec2{1, 0})
	assert.InDelta(t, 1, got[0], 1e-12)
	assert.InDelta(t, 3, got[1], 1e-12)

	tf := p.Transform()
	for _, pt := range []linalg.Vec2{{0, 0}, {1, 0}, {-2, 0.5}} {
		a, b := p.Apply(pt), tf.Transform2(pt)
		assert.InDelta(t, a[0], b[0], 1e-12)
		assert.InDelta(t, a[1], b[1], 1e-12)
	}
}

func TestWrapAngle(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		in, want float64
	}{
		{0, 0},
		{math.Pi, math.Pi},
		{-math.Pi, math.Pi},
		{3 * math.Pi, math.Pi},
		{1.5 * math.Pi, -0.5 * math.Pi},
		{-1.5 * math.Pi, 0.5 * math.Pi},
		{0.25, 0.25},
		{2*math.Pi + 0.25, 0.25},
	} {
		assert.InDelta(t, tc.want, wrapAngle(tc.in), 1e-12, "wrapAngle(%g)", tc.in)
	}
}

func TestPose_SubWrapsHeading(t *testing.T) {
	t.Parallel()
	d := Pose{X: 1, Y: 1, Theta: 3}.Sub(Pose{X: 0.5, Y: 2, Theta: -3})
	assert.InDelta(t, 0.5, d.X, 1e-12)
	assert.InDelta(t, -1, d.Y, 1e-12)
	assert.InDelta(t, 6-2*math.Pi, d.Theta, 1e-12)

	sum := Pose{Theta: 3}.Add(Pose{Theta: 1})
	assert.InDelta(t, 4-2*math.Pi, sum.Theta, 1e-12)
}

func TestPose_DistanceAndFinite(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 5, Pose{X: 3, Y: -4, Theta: 1}.Distance(), 1e-12)
	assert.True(t, Pose{X: 1}.IsFinite())
	assert.False(t, Pose{Y: math.NaN()}.IsFinite())
	assert.False(t, Pose{Theta: math.Inf(-1)}.IsFinite())
}

func TestPose_JSONAndString(t *testing.T) {
	t.Parallel()
	p := Pose{X: 1.5, Y: -2, Theta: math.Pi / 2}
	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1.5,"y":-2,"theta":1.5707963267948966}`, string(b))
	assert.Equal(t, "(1.5000, -2.0000, 90.00°)", p.String())
}

func TestWithinThreshold(t *testing.T) {
	t.Parallel()
	assert.True(t, withinThreshold(Pose{X: 0.001, Theta: 0.001}, 0.01, 0.01))
	assert.False(t, withinThreshold(Pose{X: 0.02}, 0.01, 0.01))
	assert.False(t, withinThreshold(Pose{Theta: -0.02}, 0.01, 0.01))
	// Both tests are strict.
	assert.False(t, withinThreshold(Pose{}, 0, 1))
}
