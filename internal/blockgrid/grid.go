package blockgrid

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by grid and plane operations.
var (
	ErrInvalidState    = errors.New("blockgrid: invalid state")
	ErrInvalidArgument = errors.New("blockgrid: invalid argument")
	ErrOutOfBounds     = errors.New("blockgrid: index out of bounds")
	ErrFormatMismatch  = errors.New("blockgrid: format mismatch")
	ErrIO              = errors.New("blockgrid: i/o failure")
	ErrTooLarge        = errors.New("blockgrid: grid too large")
)

// Grid is a 2-D array of T stored as fixed-size blocks.
//
// The zero value is an unallocated grid; call Allocate before use.
// A Grid is not safe for concurrent mutation.
type Grid[T any] struct {
	unitRows  int
	unitCols  int
	planeRows int
	planeCols int

	// slots maps block (r, c) at r*planeCols+c to an arena index, -1 if the
	// block has not been allocated.
	slots []int
	arena [][]T
}

// Allocate sets up a grid of planeRows × planeCols zeroed blocks, each
// unitRows × unitCols cells.
func (g *Grid[T]) Allocate(unitRows, unitCols, planeRows, planeCols int) error {
	if g.IsAllocated() {
		return fmt.Errorf("%w: grid already allocated", ErrInvalidState)
	}
	if unitRows <= 0 || unitCols <= 0 || planeRows <= 0 || planeCols <= 0 {
		return fmt.Errorf("%w: sizes must be positive, got unit %dx%d plane %dx%d",
			ErrInvalidArgument, unitRows, unitCols, planeRows, planeCols)
	}
	if err := checkCells(unitRows, unitCols, float64(planeRows), float64(planeCols)); err != nil {
		return err
	}

	g.unitRows, g.unitCols = unitRows, unitCols
	g.planeRows, g.planeCols = planeRows, planeCols
	g.slots = make([]int, planeRows*planeCols)
	g.arena = make([][]T, 0, planeRows*planeCols)
	for i := range g.slots {
		g.slots[i] = g.newBlock()
	}
	return nil
}

// Deallocate releases every block and returns the grid to its zero state.
func (g *Grid[T]) Deallocate() {
	*g = Grid[T]{}
}

// IsAllocated reports whether Allocate has been called since the last
// Deallocate.
func (g *Grid[T]) IsAllocated() bool {
	return g.slots != nil
}

func (g *Grid[T]) Rows() int         { return g.planeRows * g.unitRows }
func (g *Grid[T]) Columns() int      { return g.planeCols * g.unitCols }
func (g *Grid[T]) UnitRows() int     { return g.unitRows }
func (g *Grid[T]) UnitColumns() int  { return g.unitCols }
func (g *Grid[T]) PlaneRows() int    { return g.planeRows }
func (g *Grid[T]) PlaneColumns() int { return g.planeCols }

// Blocks returns the number of allocated blocks.
func (g *Grid[T]) Blocks() int { return len(g.arena) }

// checkCells rejects a layout of planeRows × planeCols blocks holding more
// than maxCells cells. Block counts are float64 so callers can check a size
// before converting it to int.
func checkCells(unitRows, unitCols int, planeRows, planeCols float64) error {
	cells := planeRows * float64(unitRows) * planeCols * float64(unitCols)
	if cells > maxCells {
		return fmt.Errorf("%w: %gx%g blocks of %dx%d cells exceeds %d cells",
			ErrTooLarge, planeRows, planeCols, unitRows, unitCols, maxCells)
	}
	return nil
}

func (g *Grid[T]) newBlock() int {
	g.arena = append(g.arena, make([]T, g.unitRows*g.unitCols))
	return len(g.arena) - 1
}

// Pointer returns the address of cell (row, col), or nil when the index is
// outside the grid or the containing block is unallocated.
func (g *Grid[T]) Pointer(row, col int) *T {
	if row < 0 || col < 0 || row >= g.Rows() || col >= g.Columns() {
		return nil
	}
	slot := g.slots[(row/g.unitRows)*g.planeCols+col/g.unitCols]
	if slot < 0 {
		return nil
	}
	return &g.arena[slot][(row%g.unitRows)*g.unitCols+col%g.unitCols]
}

// Get returns a copy of cell (row, col) and whether it exists.
func (g *Grid[T]) Get(row, col int) (T, bool) {
	p := g.Pointer(row, col)
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Set stores v at (row, col).
func (g *Grid[T]) Set(row, col int, v T) error {
	p := g.Pointer(row, col)
	if p == nil {
		return fmt.Errorf("%w: (%d, %d) in %dx%d grid", ErrOutOfBounds, row, col, g.Rows(), g.Columns())
	}
	*p = v
	return nil
}

// Reallocate grows the block index to planeRows × planeCols blocks. The
// existing block (r, c) moves to (r+shiftRows, c+shiftCols); every slot not
// covered by an existing block receives a new zeroed block. Only slot
// indices move, cell contents stay where they are.
func (g *Grid[T]) Reallocate(planeRows, planeCols, shiftRows, shiftCols int) error {
	if !g.IsAllocated() {
		return fmt.Errorf("%w: reallocate of unallocated grid", ErrInvalidState)
	}
	if shiftRows < 0 || shiftCols < 0 ||
		planeRows < g.planeRows+shiftRows || planeCols < g.planeCols+shiftCols {
		return fmt.Errorf("%w: cannot fit %dx%d blocks shifted by (%d, %d) into %dx%d",
			ErrInvalidArgument, g.planeRows, g.planeCols, shiftRows, shiftCols, planeRows, planeCols)
	}
	if err := checkCells(g.unitRows, g.unitCols, float64(planeRows), float64(planeCols)); err != nil {
		return err
	}

	slots := make([]int, planeRows*planeCols)
	for i := range slots {
		slots[i] = -1
	}
	for r := 0; r < g.planeRows; r++ {
		for c := 0; c < g.planeCols; c++ {
			slots[(r+shiftRows)*planeCols+c+shiftCols] = g.slots[r*g.planeCols+c]
		}
	}
	for i := range slots {
		if slots[i] < 0 {
			slots[i] = g.newBlock()
		}
	}

	g.slots = slots
	g.planeRows, g.planeCols = planeRows, planeCols
	return nil
}

// SetUniform writes v into every cell. The first block is filled by
// doubling copies and then replicated into the rest.
func (g *Grid[T]) SetUniform(v T) error {
	if !g.IsAllocated() {
		return fmt.Errorf("%w: set uniform on unallocated grid", ErrInvalidState)
	}
	seed := g.arena[0]
	seed[0] = v
	for n := 1; n < len(seed); n *= 2 {
		copy(seed[n:], seed[:n])
	}
	for _, b := range g.arena[1:] {
		copy(b, seed)
	}
	return nil
}

// Range calls fn for every cell of every allocated block in row-major block
// order. Iteration stops early when fn returns false.
func (g *Grid[T]) Range(fn func(row, col int, cell *T) bool) {
	for br := 0; br < g.planeRows; br++ {
		for bc := 0; bc < g.planeCols; bc++ {
			slot := g.slots[br*g.planeCols+bc]
			if slot < 0 {
				continue
			}
			block := g.arena[slot]
			for i := range block {
				row := br*g.unitRows + i/g.unitCols
				col := bc*g.unitCols + i%g.unitCols
				if !fn(row, col, &block[i]) {
					return
				}
			}
		}
	}
}

// block returns the cells of block (r, c), or nil when unallocated.
func (g *Grid[T]) block(r, c int) []T {
	slot := g.slots[r*g.planeCols+c]
	if slot < 0 {
		return nil
	}
	return g.arena[slot]
}
