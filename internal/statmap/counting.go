package statmap

import (
	"fmt"
	"math"

	"github.com/banshee-data/scanmatch/internal/blockgrid"
	"github.com/banshee-data/scanmatch/internal/linalg"
)

// CountingCell accumulates the points that fell into one cell. Positions are
// relative to the cell centre; OuterSum is the row-major 2×2 sum of d·dᵗ.
type CountingCell struct {
	PosSum   [2]float64
	OuterSum [4]float64
	Count    uint64
}

// Add accumulates a point at offset d from the cell centre.
func (c *CountingCell) Add(d linalg.Vec2) {
	c.PosSum[0] += d[0]
	c.PosSum[1] += d[1]
	c.OuterSum[0] += d[0] * d[0]
	c.OuterSum[1] += d[0] * d[1]
	c.OuterSum[2] += d[1] * d[0]
	c.OuterSum[3] += d[1] * d[1]
	c.Count++
}

// CountingMap accumulates raw reflection points.
type CountingMap struct {
	Map[CountingCell]
	points uint64
}

// NewCountingMap allocates an empty counting map with square cells of side
// cellSize metres, growing in blocks of unitCells × unitCells cells.
func NewCountingMap(cellSize float64, unitCells int) (*CountingMap, error) {
	m := &CountingMap{}
	if err := m.init(cellSize, unitCells); err != nil {
		return nil, err
	}
	return m, nil
}

// Count adds the world point (x, y) to the containing cell of every plane,
// growing planes as needed. A non-finite point is rejected before any plane
// is touched.
func (m *CountingMap) Count(x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return fmt.Errorf("%w: non-finite point (%g, %g)", blockgrid.ErrInvalidArgument, x, y)
	}
	for i := range m.planes {
		p := &m.planes[i]
		rows, cols := p.Rows(), p.Columns()
		row, col, err := p.Reserve(x, y)
		if err != nil {
			return fmt.Errorf("plane %d: %w", i, err)
		}
		if p.Rows() != rows || p.Columns() != cols {
			m.logger().Tracef("plane %d grew to %dx%d cells, origin (%.3f, %.3f)",
				i, p.Rows(), p.Columns(), p.Origin.X, p.Origin.Y)
		}
		core := p.CellCore(row, col)
		p.Pointer(row, col).Add(linalg.Vec2{x - core.X, y - core.Y})
	}
	m.points++
	return nil
}

// CountPoints counts every point, stopping at the first error.
func (m *CountingMap) CountPoints(points []linalg.Vec2) error {
	for i, pt := range points {
		if err := m.Count(pt[0], pt[1]); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}
	m.logger().Diagf("counted %d points, %d total", len(points), m.points)
	return nil
}

// Points returns the number of points counted.
func (m *CountingMap) Points() uint64 { return m.points }

// recount restores the point total from plane 0 after a load.
func (m *CountingMap) recount() {
	m.points = 0
	m.planes[0].Range(func(_, _ int, c *CountingCell) bool {
		m.points += c.Count
		return true
	})
}
