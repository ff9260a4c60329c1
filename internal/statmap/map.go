package statmap

import (
	"fmt"
	"math"

	"github.com/banshee-data/scanmatch/internal/blockgrid"
	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/monitoring"
)

// Planes is the number of staggered planes in every map.
const Planes = 4

// PlaneOffsets are the per-plane origin offsets in cell widths.
var PlaneOffsets = [Planes]blockgrid.Point{
	{X: 0, Y: 0},
	{X: 0.5, Y: 0},
	{X: 0, Y: 0.5},
	{X: 0.5, Y: 0.5},
}

// Map is the four-plane container shared by counting and probability maps.
// Cells are square with side CellSize; every plane grows in blocks of
// UnitCells × UnitCells cells.
type Map[T any] struct {
	planes    [Planes]blockgrid.Plane[T]
	cellSize  float64
	unitCells int
	log       *monitoring.Logger
}

func (m *Map[T]) init(cellSize float64, unitCells int) error {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return fmt.Errorf("%w: cell size must be positive and finite, got %g", blockgrid.ErrInvalidArgument, cellSize)
	}
	if unitCells <= 0 {
		return fmt.Errorf("%w: block size must be positive, got %d", blockgrid.ErrInvalidArgument, unitCells)
	}
	m.cellSize = cellSize
	m.unitCells = unitCells
	res := blockgrid.Point{X: cellSize, Y: cellSize}
	half := float64(unitCells/2) * cellSize
	for i := range m.planes {
		origin := blockgrid.Point{
			X: PlaneOffsets[i].X*cellSize - half,
			Y: PlaneOffsets[i].Y*cellSize - half,
		}
		if err := m.planes[i].Init(unitCells, unitCells, 1, 1, origin, res); err != nil {
			m.release()
			return fmt.Errorf("plane %d: %w", i, err)
		}
	}
	return nil
}

// initLike allocates m with the same geometry as src, plane by plane.
func initLike[T, S any](m *Map[T], src *Map[S]) error {
	m.cellSize = src.cellSize
	m.unitCells = src.unitCells
	m.log = src.log
	for i := range m.planes {
		sp := &src.planes[i]
		if err := m.planes[i].Init(sp.UnitRows(), sp.UnitColumns(), sp.PlaneRows(), sp.PlaneColumns(), sp.Origin, sp.Resolution); err != nil {
			m.release()
			return fmt.Errorf("plane %d: %w", i, err)
		}
	}
	return nil
}

func (m *Map[T]) release() {
	for i := range m.planes {
		m.planes[i].Deallocate()
	}
}

// SetLogger attaches a logger for growth and build diagnostics.
func (m *Map[T]) SetLogger(l *monitoring.Logger) { m.log = l }

func (m *Map[T]) logger() *monitoring.Logger { return monitoring.OrDiscard(m.log) }

// CellSize returns the cell side length in metres.
func (m *Map[T]) CellSize() float64 { return m.cellSize }

// UnitCells returns the block side length in cells.
func (m *Map[T]) UnitCells() int { return m.unitCells }

// Plane returns plane i for read access. Callers must not reallocate it.
func (m *Map[T]) Plane(i int) *blockgrid.Plane[T] { return &m.planes[i] }

// Cell returns the cell of plane i containing (x, y) and that cell's centre,
// or nil when the point lies outside the plane.
func (m *Map[T]) Cell(i int, x, y float64) (*T, linalg.Vec2) {
	p := &m.planes[i]
	if !p.IsAllocated() {
		return nil, linalg.Vec2{}
	}
	row, col := p.CellIndex(x, y)
	c := p.Pointer(row, col)
	if c == nil {
		return nil, linalg.Vec2{}
	}
	core := p.CellCore(row, col)
	return c, linalg.Vec2{core.X, core.Y}
}

// Bounds returns the union of the four plane extents in world coordinates.
func (m *Map[T]) Bounds() (lo, hi blockgrid.Point) {
	lo = blockgrid.Point{X: math.Inf(1), Y: math.Inf(1)}
	hi = blockgrid.Point{X: math.Inf(-1), Y: math.Inf(-1)}
	for i := range m.planes {
		p := &m.planes[i]
		if !p.IsAllocated() {
			continue
		}
		lo.X = math.Min(lo.X, p.Origin.X)
		lo.Y = math.Min(lo.Y, p.Origin.Y)
		hi.X = math.Max(hi.X, p.Origin.X+float64(p.Columns())*p.Resolution.X)
		hi.Y = math.Max(hi.Y, p.Origin.Y+float64(p.Rows())*p.Resolution.Y)
	}
	return lo, hi
}

// Range calls fn for every cell of every plane with the cell's world centre,
// stopping early when fn returns false.
func (m *Map[T]) Range(fn func(plane int, core blockgrid.Point, cell *T) bool) {
	for i := range m.planes {
		p := &m.planes[i]
		keepGoing := true
		p.Range(func(row, col int, cell *T) bool {
			keepGoing = fn(i, p.CellCore(row, col), cell)
			return keepGoing
		})
		if !keepGoing {
			return
		}
	}
}
