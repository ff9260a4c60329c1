package blockgrid

import (
	"fmt"
	"math"
)

// Point is a world-frame coordinate pair (metres).
type Point struct {
	X float64
	Y float64
}

// Plane is a Grid anchored in world coordinates. Columns run along X and
// rows along Y; Origin is the lower corner of cell (0, 0).
type Plane[T any] struct {
	Grid[T]
	Origin     Point
	Resolution Point
}

// Init allocates the underlying grid and sets the plane geometry.
func (p *Plane[T]) Init(unitRows, unitCols, planeRows, planeCols int, origin, resolution Point) error {
	if resolution.X <= 0 || resolution.Y <= 0 {
		return fmt.Errorf("%w: resolution must be positive, got (%g, %g)", ErrInvalidArgument, resolution.X, resolution.Y)
	}
	if err := p.Allocate(unitRows, unitCols, planeRows, planeCols); err != nil {
		return err
	}
	p.Origin = origin
	p.Resolution = resolution
	return nil
}

// maxIndex clamps cell indices so far-away points map to an index that is
// out of range rather than overflowing int.
const maxIndex = 1 << 40

// CellIndex returns the (row, col) of the cell containing (x, y). The result
// may lie outside the current grid extent, including negative indices.
func (p *Plane[T]) CellIndex(x, y float64) (row, col int) {
	fr, fc := p.cellIndex(x, y)
	return clampIndex(fr), clampIndex(fc)
}

func (p *Plane[T]) cellIndex(x, y float64) (row, col float64) {
	return math.Floor((y - p.Origin.Y) / p.Resolution.Y), math.Floor((x - p.Origin.X) / p.Resolution.X)
}

func clampIndex(v float64) int {
	switch {
	case v > maxIndex:
		return maxIndex
	case v < -maxIndex:
		return -maxIndex
	case math.IsNaN(v):
		return -maxIndex
	}
	return int(v)
}

// CellCore returns the world coordinate of the centre of cell (row, col).
func (p *Plane[T]) CellCore(row, col int) Point {
	return Point{
		X: p.Origin.X + (float64(col)+0.5)*p.Resolution.X,
		Y: p.Origin.Y + (float64(row)+0.5)*p.Resolution.Y,
	}
}

// Lookup returns the cell containing (x, y), or nil when outside the plane.
func (p *Plane[T]) Lookup(x, y float64) *T {
	if !p.IsAllocated() {
		return nil
	}
	row, col := p.CellIndex(x, y)
	return p.Pointer(row, col)
}

// Reserve makes sure the cell containing (x, y) exists, growing the plane by
// whole blocks when it does not. Growth toward negative rows or columns
// moves Origin backwards so already-stored cells keep their world position.
func (p *Plane[T]) Reserve(x, y float64) (row, col int, err error) {
	if !p.IsAllocated() {
		return 0, 0, fmt.Errorf("%w: reserve on unallocated plane", ErrInvalidState)
	}
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, fmt.Errorf("%w: non-finite point (%g, %g)", ErrInvalidArgument, x, y)
	}

	fr, fc := p.cellIndex(x, y)
	if fr >= 0 && fc >= 0 && fr < float64(p.Rows()) && fc < float64(p.Columns()) {
		return int(fr), int(fc), nil
	}

	// Sized in float64 so a distant point is rejected before any int
	// conversion can overflow.
	shiftRows := blocksToCover(-fr, p.unitRows)
	shiftCols := blocksToCover(-fc, p.unitCols)
	extraRows := blocksToCover(fr-float64(p.Rows())+1, p.unitRows)
	extraCols := blocksToCover(fc-float64(p.Columns())+1, p.unitCols)
	planeRows := float64(p.planeRows) + shiftRows + extraRows
	planeCols := float64(p.planeCols) + shiftCols + extraCols
	if err := checkCells(p.unitRows, p.unitCols, planeRows, planeCols); err != nil {
		return 0, 0, fmt.Errorf("reserve (%g, %g): %w", x, y, err)
	}

	sr, sc := int(shiftRows), int(shiftCols)
	if err := p.Reallocate(int(planeRows), int(planeCols), sr, sc); err != nil {
		return 0, 0, err
	}
	p.Origin.X -= float64(sc*p.unitCols) * p.Resolution.X
	p.Origin.Y -= float64(sr*p.unitRows) * p.Resolution.Y

	return int(fr) + sr*p.unitRows, int(fc) + sc*p.unitCols, nil
}

// blocksToCover returns how many blocks of unit cells are needed to span
// cells, zero when cells <= 0.
func blocksToCover(cells float64, unit int) float64 {
	if cells <= 0 {
		return 0
	}
	return math.Ceil(cells / float64(unit))
}
