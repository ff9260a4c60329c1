package statmap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/scanmatch/internal/blockgrid"
	"github.com/banshee-data/scanmatch/internal/fsutil"
)

// PlaneFile returns the file name of plane i for a map saved under prefix.
func PlaneFile(prefix string, i int) string {
	return fmt.Sprintf("%s.%d", prefix, i)
}

// Save writes the four planes as GPLN files named prefix.0 .. prefix.3.
func (m *Map[T]) Save(fsys fsutil.FileSystem, prefix string) error {
	if dir := filepath.Dir(prefix); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %s: %v", blockgrid.ErrIO, dir, err)
		}
	}
	for i := range m.planes {
		name := PlaneFile(prefix, i)
		if err := writePlane(fsys, name, &m.planes[i]); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	}
	m.logger().Diagf("saved map to %s.[0-%d]", prefix, Planes-1)
	return nil
}

func writePlane[T any](fsys fsutil.FileSystem, name string, p *blockgrid.Plane[T]) error {
	w, err := fsys.Create(name)
	if err != nil {
		return fmt.Errorf("%w: %v", blockgrid.ErrIO, err)
	}
	if err := p.Save(w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %v", blockgrid.ErrIO, err)
	}
	return nil
}

// EncodePlanes serialises each plane to its GPLN byte form.
func (m *Map[T]) EncodePlanes() ([Planes][]byte, error) {
	var out [Planes][]byte
	for i := range m.planes {
		var buf bytes.Buffer
		if err := m.planes[i].Save(&buf); err != nil {
			return out, fmt.Errorf("plane %d: %w", i, err)
		}
		out[i] = buf.Bytes()
	}
	return out, nil
}

// load reads the planes from open and checks they describe one map.
func (m *Map[T]) load(open func(i int) (io.ReadCloser, error)) error {
	for i := range m.planes {
		if err := m.loadPlane(i, open); err != nil {
			m.release()
			return fmt.Errorf("plane %d: %w", i, err)
		}
	}
	if err := m.checkGeometry(); err != nil {
		m.release()
		return err
	}
	return nil
}

func (m *Map[T]) loadPlane(i int, open func(i int) (io.ReadCloser, error)) error {
	r, err := open(i)
	if err != nil {
		return fmt.Errorf("%w: %v", blockgrid.ErrIO, err)
	}
	defer r.Close()
	return m.planes[i].Load(r)
}

func (m *Map[T]) checkGeometry() error {
	p0 := &m.planes[0]
	if p0.Resolution.X != p0.Resolution.Y || p0.UnitRows() != p0.UnitColumns() {
		return fmt.Errorf("%w: cells and blocks must be square", blockgrid.ErrFormatMismatch)
	}
	for i := 1; i < Planes; i++ {
		p := &m.planes[i]
		if p.Resolution != p0.Resolution || p.UnitRows() != p0.UnitRows() || p.UnitColumns() != p0.UnitColumns() {
			return fmt.Errorf("%w: plane %d geometry differs from plane 0", blockgrid.ErrFormatMismatch, i)
		}
	}
	m.cellSize = p0.Resolution.X
	m.unitCells = p0.UnitRows()
	return nil
}

func fileOpener(fsys fsutil.FileSystem, prefix string) func(int) (io.ReadCloser, error) {
	return func(i int) (io.ReadCloser, error) {
		return fsys.Open(PlaneFile(prefix, i))
	}
}

func bytesOpener(planes [Planes][]byte) func(int) (io.ReadCloser, error) {
	return func(i int) (io.ReadCloser, error) {
		if planes[i] == nil {
			return nil, errors.New("missing plane data")
		}
		return io.NopCloser(bytes.NewReader(planes[i])), nil
	}
}

// LoadCountingMap reads a counting map saved under prefix.
func LoadCountingMap(fsys fsutil.FileSystem, prefix string) (*CountingMap, error) {
	m := &CountingMap{}
	if err := m.load(fileOpener(fsys, prefix)); err != nil {
		return nil, fmt.Errorf("load %s: %w", prefix, err)
	}
	m.recount()
	return m, nil
}

// DecodeCountingMap rebuilds a counting map from EncodePlanes output.
func DecodeCountingMap(planes [Planes][]byte) (*CountingMap, error) {
	m := &CountingMap{}
	if err := m.load(bytesOpener(planes)); err != nil {
		return nil, err
	}
	m.recount()
	return m, nil
}

// LoadProbabilityMap reads a probability map saved under prefix.
func LoadProbabilityMap(fsys fsutil.FileSystem, prefix string) (*ProbabilityMap, error) {
	m := &ProbabilityMap{}
	if err := m.load(fileOpener(fsys, prefix)); err != nil {
		return nil, fmt.Errorf("load %s: %w", prefix, err)
	}
	m.restat()
	return m, nil
}

// DecodeProbabilityMap rebuilds a probability map from EncodePlanes output.
func DecodeProbabilityMap(planes [Planes][]byte) (*ProbabilityMap, error) {
	m := &ProbabilityMap{}
	if err := m.load(bytesOpener(planes)); err != nil {
		return nil, err
	}
	m.restat()
	return m, nil
}

// restat recovers the populated-cell count after a load. Sparse and
// singular cells are indistinguishable from empty ones once saved.
func (m *ProbabilityMap) restat() {
	m.stats = BuildStats{}
	m.Range(func(plane int, _ blockgrid.Point, c *ProbabilityCell) bool {
		if c.Weight > 0 {
			m.stats.Populated++
			if plane == 0 {
				m.stats.Points += c.N
			}
		}
		return true
	})
}
