// Package testutil provides shared scan and map fixtures for tests.
//
// Fixtures work in plain (x, y, θ) so packages that define their own pose
// types can use them without an import cycle.
package testutil

import (
	"math"
	"testing"

	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/statmap"
)

// Room is a rectangular room centred on the map origin.
type Room struct {
	HalfWidth  float64 // metres along x
	HalfHeight float64 // metres along y
}

// DefaultRoom keeps its walls off every plane's cell boundaries for 0.2 m
// cells.
var DefaultRoom = Room{HalfWidth: 3.93, HalfHeight: 2.87}

// Walls samples the four walls of r at roughly the given spacing. Corners
// appear once per wall that ends there.
func (r Room) Walls(spacing float64) []linalg.Vec2 {
	var out []linalg.Vec2
	out = appendSegment(out, linalg.Vec2{-r.HalfWidth, -r.HalfHeight}, linalg.Vec2{r.HalfWidth, -r.HalfHeight}, spacing)
	out = appendSegment(out, linalg.Vec2{-r.HalfWidth, r.HalfHeight}, linalg.Vec2{r.HalfWidth, r.HalfHeight}, spacing)
	out = appendSegment(out, linalg.Vec2{-r.HalfWidth, -r.HalfHeight}, linalg.Vec2{-r.HalfWidth, r.HalfHeight}, spacing)
	out = appendSegment(out, linalg.Vec2{r.HalfWidth, -r.HalfHeight}, linalg.Vec2{r.HalfWidth, r.HalfHeight}, spacing)
	return out
}

func appendSegment(out []linalg.Vec2, a, b linalg.Vec2, spacing float64) []linalg.Vec2 {
	n := int(math.Round(b.Sub(a).Norm() / spacing))
	if n < 1 {
		n = 1
	}
	for i := 0; i <= n; i++ {
		f := float64(i) / float64(n)
		out = append(out, a.Add(b.Sub(a).Scale(f)))
	}
	return out
}

// Grid returns the points (cx + i·step, cy + j·step) for |i·step| ≤ hx and
// |j·step| ≤ hy. The set is symmetric about (cx, cy).
func Grid(cx, cy, hx, hy, step float64) []linalg.Vec2 {
	nx := int(math.Round(hx / step))
	ny := int(math.Round(hy / step))
	out := make([]linalg.Vec2, 0, (2*nx+1)*(2*ny+1))
	for i := -nx; i <= nx; i++ {
		for j := -ny; j <= ny; j++ {
			out = append(out, linalg.Vec2{cx + float64(i)*step, cy + float64(j)*step})
		}
	}
	return out
}

// ToRobotFrame expresses map-frame points in the frame of a robot at
// (x, y, theta).
func ToRobotFrame(points []linalg.Vec2, x, y, theta float64) []linalg.Vec2 {
	s, c := math.Sincos(theta)
	out := make([]linalg.Vec2, len(points))
	for i, p := range points {
		dx, dy := p[0]-x, p[1]-y
		out[i] = linalg.Vec2{c*dx + s*dy, -s*dx + c*dy}
	}
	return out
}

// ToMapFrame is the inverse of ToRobotFrame.
func ToMapFrame(points []linalg.Vec2, x, y, theta float64) []linalg.Vec2 {
	s, c := math.Sincos(theta)
	out := make([]linalg.Vec2, len(points))
	for i, p := range points {
		out[i] = linalg.Vec2{c*p[0] - s*p[1] + x, s*p[0] + c*p[1] + y}
	}
	return out
}

// CountingMap counts points into a new map, failing t on error.
func CountingMap(t testing.TB, points []linalg.Vec2, cellSize float64, unitCells int) *statmap.CountingMap {
	t.Helper()
	m, err := statmap.NewCountingMap(cellSize, unitCells)
	if err != nil {
		t.Fatalf("NewCountingMap(%g, %d): %v", cellSize, unitCells, err)
	}
	if err := m.CountPoints(points); err != nil {
		t.Fatalf("CountPoints: %v", err)
	}
	return m
}

// ProbabilityMap counts points and builds a probability map from them,
// failing t on error.
func ProbabilityMap(t testing.TB, points []linalg.Vec2, cellSize float64, unitCells int, opts statmap.BuildOptions) *statmap.ProbabilityMap {
	t.Helper()
	pm, err := statmap.Build(CountingMap(t, points, cellSize, unitCells), opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return pm
}

// RoomMap is the DefaultRoom sampled every 2 cm into 0.2 m cells, built
// with the given sensor error.
func RoomMap(t testing.TB, sensorError float64) *statmap.ProbabilityMap {
	t.Helper()
	return ProbabilityMap(t, DefaultRoom.Walls(0.02), 0.2, 16, statmap.BuildOptions{SensorError: sensorError})
}

// RoomScan is the DefaultRoom seen every 5 cm from a robot at (x, y, theta).
func RoomScan(x, y, theta float64) []linalg.Vec2 {
	return ToRobotFrame(DefaultRoom.Walls(0.05), x, y, theta)
}

// BlobCenter is the centre of the BlobMap points.
var BlobCenter = linalg.Vec2{2.5, 2.5}

// BlobMap is a 2.1 m × 0.5 m grid of points centred on BlobCenter, counted
// into 10 m cells so every plane holds the whole grid in a single cell.
func BlobMap(t testing.TB) *statmap.ProbabilityMap {
	t.Helper()
	return ProbabilityMap(t, Grid(BlobCenter[0], BlobCenter[1], 1, 0.2, 0.1), 10, 2, statmap.BuildOptions{SensorError: 0.01})
}

// BlobScan is three points on the robot's x axis, symmetric about the
// robot. Matched against BlobMap its best pose is (BlobCenter, 0).
func BlobScan() []linalg.Vec2 {
	return []linalg.Vec2{{-0.5, 0}, {0, 0}, {0.5, 0}}
}
