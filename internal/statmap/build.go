package statmap

import (
	"fmt"
	"math"

	"github.com/banshee-data/scanmatch/internal/blockgrid"
	"github.com/banshee-data/scanmatch/internal/linalg"
)

// MinCellPoints is the smallest count for which a cell gets a Gaussian.
const MinCellPoints = 4

// Mode selects how Build weights populated cells.
type Mode int

const (
	// ModeFull weights a cell by n / sqrt(det(cov)).
	ModeFull Mode = iota
	// ModeNDT gives every populated cell unit weight and n = 1.
	ModeNDT
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeNDT:
		return "ndt"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "full" or "ndt".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "full", "":
		return ModeFull, nil
	case "ndt":
		return ModeNDT, nil
	}
	return ModeFull, fmt.Errorf("%w: unknown map mode %q", blockgrid.ErrInvalidArgument, s)
}

// ProbabilityCell is the Gaussian derived from one counting cell. Mean is
// relative to the cell centre; InvCov is row-major. Weight 0 means no data.
type ProbabilityCell struct {
	Mean   [2]float64
	InvCov [4]float64
	Weight float64
	N      uint64
}

// ProbabilityMap holds per-cell Gaussians for pose evaluation.
type ProbabilityMap struct {
	Map[ProbabilityCell]
	stats BuildStats
}

// BuildOptions controls Build.
type BuildOptions struct {
	// SensorError is the minimum sensor error ε in metres; ε²·I is added to
	// every covariance.
	SensorError float64
	Mode        Mode
}

// BuildStats summarises a build across all planes.
type BuildStats struct {
	Populated int    // cells with a valid Gaussian
	Sparse    int    // cells with 1..MinCellPoints-1 points
	Singular  int    // cells whose covariance determinant was not positive
	Points    uint64 // points in the source map
}

// Stats returns the statistics of the build that produced m.
func (m *ProbabilityMap) Stats() BuildStats { return m.stats }

// Build derives a probability map from a counting map. Cells with too few
// points or a degenerate covariance get weight 0; neither fails the build.
func Build(counting *CountingMap, opts BuildOptions) (*ProbabilityMap, error) {
	if counting == nil || !counting.planes[0].IsAllocated() {
		return nil, fmt.Errorf("%w: build from unallocated counting map", blockgrid.ErrInvalidState)
	}
	if opts.SensorError < 0 || math.IsNaN(opts.SensorError) || math.IsInf(opts.SensorError, 0) {
		return nil, fmt.Errorf("%w: sensor error must be finite and non-negative, got %g", blockgrid.ErrInvalidArgument, opts.SensorError)
	}

	pm := &ProbabilityMap{}
	if err := initLike(&pm.Map, &counting.Map); err != nil {
		return nil, err
	}
	pm.stats.Points = counting.points
	eps2 := opts.SensorError * opts.SensorError

	for i := range counting.planes {
		dst := &pm.planes[i]
		counting.planes[i].Range(func(row, col int, c *CountingCell) bool {
			if c.Count == 0 {
				return true
			}
			if c.Count < MinCellPoints {
				pm.stats.Sparse++
				return true
			}
			cell, ok := gaussian(c, eps2, opts.Mode)
			if !ok {
				pm.stats.Singular++
				return true
			}
			*dst.Pointer(row, col) = cell
			pm.stats.Populated++
			return true
		})
	}

	pm.logger().Diagf("built %s map: %d populated, %d sparse, %d singular cells from %d points",
		opts.Mode, pm.stats.Populated, pm.stats.Sparse, pm.stats.Singular, pm.stats.Points)
	return pm, nil
}

// gaussian computes the cell's mean and regularised covariance and reports
// false when the covariance is not positive definite.
func gaussian(c *CountingCell, eps2 float64, mode Mode) (ProbabilityCell, bool) {
	n := float64(c.Count)
	mean := linalg.Vec2{c.PosSum[0] / n, c.PosSum[1] / n}
	cov := linalg.Mat2(c.OuterSum).Scale(1 / n).
		Add(linalg.Outer2(mean, mean).Scale(-1)).
		Add(linalg.Identity2().Scale(eps2))

	det := cov.Det()
	if !(det > 0) {
		return ProbabilityCell{}, false
	}
	inv, err := cov.Inverse()
	if err != nil {
		return ProbabilityCell{}, false
	}

	cell := ProbabilityCell{Mean: mean, InvCov: inv}
	switch mode {
	case ModeNDT:
		cell.Weight = 1
		cell.N = 1
	default:
		cell.Weight = n / math.Sqrt(det)
		cell.N = c.Count
	}
	return cell, true
}

// Covariance returns the cell covariance, the inverse of InvCov.
func (c *ProbabilityCell) Covariance() (linalg.Mat2, error) {
	return linalg.Mat2(c.InvCov).Inverse()
}
