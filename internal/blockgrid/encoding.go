package blockgrid

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// File tags identifying the persisted layout.
const (
	TagGrid  = "GGRD"
	TagPlane = "GPLN"
)

// maxCells bounds the size of any grid, whether allocated, grown or read
// by Load.
const maxCells = 1 << 30

type fileHeader struct {
	UnitRows  uint32
	UnitCols  uint32
	PlaneRows uint32
	PlaneCols uint32
}

type planeHeader struct {
	OriginX float64
	OriginY float64
	ResX    float64
	ResY    float64
}

// Save writes the grid as a "GGRD" record.
func (g *Grid[T]) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := g.writeTagged(bw, TagGrid, nil); err != nil {
		return err
	}
	return flush(bw)
}

// Load reads a "GGRD" record into an unallocated grid. The reader must hold
// exactly one record.
func (g *Grid[T]) Load(r io.Reader) error {
	return g.readTagged(bufio.NewReader(r), TagGrid, nil)
}

// Save writes the plane as a "GPLN" record: the grid header followed by the
// origin and resolution, then the cells.
func (p *Plane[T]) Save(w io.Writer) error {
	bw := bufio.NewWriter(w)
	ph := planeHeader{OriginX: p.Origin.X, OriginY: p.Origin.Y, ResX: p.Resolution.X, ResY: p.Resolution.Y}
	if err := p.writeTagged(bw, TagPlane, &ph); err != nil {
		return err
	}
	return flush(bw)
}

// Load reads a "GPLN" record into an unallocated plane.
func (p *Plane[T]) Load(r io.Reader) error {
	var ph planeHeader
	if err := p.readTagged(bufio.NewReader(r), TagPlane, &ph); err != nil {
		return err
	}
	if !(ph.ResX > 0) || !(ph.ResY > 0) {
		p.Deallocate()
		return fmt.Errorf("%w: non-positive resolution (%g, %g)", ErrFormatMismatch, ph.ResX, ph.ResY)
	}
	p.Origin = Point{X: ph.OriginX, Y: ph.OriginY}
	p.Resolution = Point{X: ph.ResX, Y: ph.ResY}
	return nil
}

func cellSize[T any]() int {
	var zero T
	return binary.Size(zero)
}

func (g *Grid[T]) writeTagged(w io.Writer, tag string, ph *planeHeader) error {
	if !g.IsAllocated() {
		return fmt.Errorf("%w: save of unallocated grid", ErrInvalidState)
	}
	if cellSize[T]() <= 0 {
		return fmt.Errorf("%w: cell type %T has no fixed binary size", ErrInvalidArgument, *new(T))
	}

	if _, err := io.WriteString(w, tag); err != nil {
		return fmt.Errorf("%w: writing tag: %v", ErrIO, err)
	}
	hdr := fileHeader{
		UnitRows:  uint32(g.unitRows),
		UnitCols:  uint32(g.unitCols),
		PlaneRows: uint32(g.planeRows),
		PlaneCols: uint32(g.planeCols),
	}
	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: writing header: %v", ErrIO, err)
	}
	if ph != nil {
		if err := binary.Write(w, binary.LittleEndian, ph); err != nil {
			return fmt.Errorf("%w: writing plane header: %v", ErrIO, err)
		}
	}

	empty := make([]T, g.unitRows*g.unitCols)
	for r := 0; r < g.planeRows; r++ {
		for c := 0; c < g.planeCols; c++ {
			b := g.block(r, c)
			if b == nil {
				b = empty
			}
			if err := binary.Write(w, binary.LittleEndian, b); err != nil {
				return fmt.Errorf("%w: writing block (%d, %d): %v", ErrIO, r, c, err)
			}
		}
	}
	return nil
}

func (g *Grid[T]) readTagged(r io.Reader, tag string, ph *planeHeader) error {
	if g.IsAllocated() {
		return fmt.Errorf("%w: load into allocated grid", ErrInvalidState)
	}
	size := cellSize[T]()
	if size <= 0 {
		return fmt.Errorf("%w: cell type %T has no fixed binary size", ErrInvalidArgument, *new(T))
	}

	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return fmt.Errorf("%w: reading tag: %v", ErrIO, err)
	}
	if string(got[:]) != tag {
		return fmt.Errorf("%w: tag %q, want %q", ErrFormatMismatch, got[:], tag)
	}

	var hdr fileHeader
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("%w: reading header: %v", ErrIO, err)
	}
	if hdr.UnitRows == 0 || hdr.UnitCols == 0 || hdr.PlaneRows == 0 || hdr.PlaneCols == 0 {
		return fmt.Errorf("%w: zero dimension in header %+v", ErrFormatMismatch, hdr)
	}
	cells := uint64(hdr.UnitRows) * uint64(hdr.UnitCols) * uint64(hdr.PlaneRows) * uint64(hdr.PlaneCols)
	if cells > maxCells {
		return fmt.Errorf("%w: header declares %d cells", ErrFormatMismatch, cells)
	}
	if ph != nil {
		if err := binary.Read(r, binary.LittleEndian, ph); err != nil {
			return fmt.Errorf("%w: reading plane header: %v", ErrIO, err)
		}
	}

	if err := g.Allocate(int(hdr.UnitRows), int(hdr.UnitCols), int(hdr.PlaneRows), int(hdr.PlaneCols)); err != nil {
		return err
	}
	for br := 0; br < g.planeRows; br++ {
		for bc := 0; bc < g.planeCols; bc++ {
			if err := binary.Read(r, binary.LittleEndian, g.block(br, bc)); err != nil {
				g.Deallocate()
				return fmt.Errorf("%w: reading block (%d, %d): %v", ErrIO, br, bc, err)
			}
		}
	}

	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		g.Deallocate()
		return fmt.Errorf("%w: trailing data after %d blocks", ErrFormatMismatch, g.planeRows*g.planeCols)
	}
	return nil
}

func flush(bw *bufio.Writer) error {
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}
