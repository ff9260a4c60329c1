// Package monitor renders human-readable views of maps and matcher runs: a
// likelihood heatmap as PNG via gonum/plot, and map scatter and convergence
// charts as HTML via go-echarts.
package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/scanmatch/internal/blockgrid"
	"github.com/banshee-data/scanmatch/internal/scanmatch"
)

// MaxFieldCells caps the number of poses SampleLikelihood evaluates.
const MaxFieldCells = 1 << 20

// ErrFieldTooLarge is returned when a sampling request exceeds MaxFieldCells.
var ErrFieldTooLarge = errors.New("monitor: likelihood field too large")

// LikelihoodField is the scan likelihood sampled on a regular XY lattice at a
// fixed heading. It satisfies plotter.GridXYZ.
type LikelihoodField struct {
	Theta  float64
	Origin blockgrid.Point // centre of cell (0, 0)
	Step   float64
	cols   int
	rows   int
	values []float64 // row-major, rows along Y
}

// SampleLikelihood evaluates eval's current scan at every lattice pose in
// [lo, hi] with spacing step and heading theta.
func SampleLikelihood(eval *scanmatch.Evaluator, theta float64, lo, hi blockgrid.Point, step float64) (*LikelihoodField, error) {
	if eval == nil {
		return nil, fmt.Errorf("%w: nil evaluator", scanmatch.ErrInvalidArgument)
	}
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("%w: step must be positive, got %g", scanmatch.ErrInvalidArgument, step)
	}
	if !(hi.X >= lo.X) || !(hi.Y >= lo.Y) {
		return nil, fmt.Errorf("%w: empty bounds (%g, %g)-(%g, %g)", scanmatch.ErrInvalidArgument, lo.X, lo.Y, hi.X, hi.Y)
	}
	cols := int(math.Floor((hi.X-lo.X)/step)) + 1
	rows := int(math.Floor((hi.Y-lo.Y)/step)) + 1
	if cols <= 0 || rows <= 0 || cols > MaxFieldCells/rows {
		return nil, fmt.Errorf("%w: %g m step over %gx%g m", ErrFieldTooLarge, step, hi.X-lo.X, hi.Y-lo.Y)
	}

	f := &LikelihoodField{
		Theta:  theta,
		Origin: lo,
		Step:   step,
		cols:   cols,
		rows:   rows,
		values: make([]float64, cols*rows),
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			f.values[r*cols+c] = eval.Likelihood(scanmatch.Pose{X: f.X(c), Y: f.Y(r), Theta: theta})
		}
	}
	return f, nil
}

func (f *LikelihoodField) Dims() (c, r int)   { return f.cols, f.rows }
func (f *LikelihoodField) Z(c, r int) float64 { return f.values[r*f.cols+c] }
func (f *LikelihoodField) X(c int) float64    { return f.Origin.X + float64(c)*f.Step }
func (f *LikelihoodField) Y(r int) float64    { return f.Origin.Y + float64(r)*f.Step }
func (f *LikelihoodField) At(c, r int) Sample { return Sample{X: f.X(c), Y: f.Y(r), Value: f.Z(c, r)} }
func (f *LikelihoodField) Len() int           { return len(f.values) }

// Sample is one lattice value.
type Sample struct {
	X, Y  float64
	Value float64
}

// Peak returns the lattice sample with the highest likelihood. Ties go to
// the first in row-major order.
func (f *LikelihoodField) Peak() Sample {
	best := 0
	for i, v := range f.values {
		if v > f.values[best] {
			best = i
		}
	}
	return f.At(best%f.cols, best/f.cols)
}

// RenderLikelihoodHeatmap draws field as a PNG heatmap, overlaying marks as
// crosses (typically the prior and the matched pose).
func RenderLikelihoodHeatmap(w io.Writer, field *LikelihoodField, title string, marks ...scanmatch.Pose) error {
	if field == nil || field.Len() == 0 {
		return fmt.Errorf("%w: empty likelihood field", scanmatch.ErrInvalidArgument)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	hm := plotter.NewHeatMap(field, moreland.ExtendedBlackBody().Palette(255))
	hm.Rasterized = true
	p.Add(hm)

	if len(marks) > 0 {
		pts := make(plotter.XYs, len(marks))
		for i, m := range marks {
			pts[i] = plotter.XY{X: m.X, Y: m.Y}
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("failed to create pose marks: %w", err)
		}
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Color = color.RGBA{R: 0, G: 200, B: 255, A: 255}
		sc.GlyphStyle.Radius = vg.Points(5)
		p.Add(sc)
	}

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to render heatmap: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write heatmap: %w", err)
	}
	return nil
}
