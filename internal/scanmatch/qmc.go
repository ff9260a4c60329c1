package scanmatch

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/monitoring"
	"github.com/banshee-data/scanmatch/internal/statmap"
)

// QMCOptions configures a QMC optimizer.
type QMCOptions struct {
	// Resolution is the lattice points per axis; the lattice has
	// Resolution³ points spanning [−1, 1]³. 1 gives a single point at the
	// mean.
	Resolution int
	// InitialCov is used when Begin is given a zero covariance.
	InitialCov linalg.Mat3
	// MinCov is added to every re-estimated covariance so the lattice
	// never collapses to a point.
	MinCov       linalg.Mat3
	PositionGain bool
	Log          *monitoring.Logger
}

// Lattice returns the resolution³ offsets of a regular grid over [−1, 1]³,
// ordered x-major.
func Lattice(resolution int) []linalg.Vec3 {
	if resolution <= 1 {
		return []linalg.Vec3{{}}
	}
	ticks := make([]float64, resolution)
	floats.Span(ticks, -1, 1)
	out := make([]linalg.Vec3, 0, resolution*resolution*resolution)
	for _, x := range ticks {
		for _, y := range ticks {
			for _, th := range ticks {
				out = append(out, linalg.Vec3{x, y, th})
			}
		}
	}
	return out
}

// QMC is a deterministic quasi-Monte Carlo search: each iteration places a
// fixed lattice around the current mean, scaled by the Cholesky factor of
// the current covariance, and moves to the likelihood-weighted mean.
type QMC struct {
	opts       QMCOptions
	eval       *Evaluator
	log        *monitoring.Logger
	lattice    []linalg.Vec3
	particles  []Particle
	pose       Pose
	cov        linalg.Mat3
	delta      Pose
	likelihood float64
	started    bool
	stepped    bool
}

// NewQMC returns a quasi-Monte Carlo optimizer over m.
func NewQMC(m *statmap.ProbabilityMap, opts QMCOptions) (*QMC, error) {
	if opts.Resolution < 1 {
		return nil, fmt.Errorf("%w: qmc resolution must be at least 1, got %d", ErrInvalidArgument, opts.Resolution)
	}
	return &QMC{
		opts:    opts,
		eval:    NewEvaluator(m, opts.PositionGain),
		log:     monitoring.OrDiscard(opts.Log),
		lattice: Lattice(opts.Resolution),
	}, nil
}

func (q *QMC) Name() string { return "qmc" }

// Begin centres the lattice on prior with covariance cov, or InitialCov
// when cov is zero.
func (q *QMC) Begin(prior Pose, cov linalg.Mat3) error {
	if !prior.IsFinite() {
		return fmt.Errorf("%w: non-finite prior %v", ErrInvalidArgument, prior)
	}
	if isZero(cov) {
		cov = q.opts.InitialCov
	}
	if _, err := linalg.CholeskyLower(cov); err != nil {
		return fmt.Errorf("%w: initial covariance: %v", ErrInvalidArgument, err)
	}
	q.pose = prior.Normalize()
	q.cov = cov
	q.delta = Pose{}
	q.likelihood = 0
	q.particles = q.particles[:0]
	q.started = true
	q.stepped = false
	return nil
}

func (q *QMC) SetScan(points []linalg.Vec2) { q.eval.SetScan(points) }

// Iterate evaluates the lattice around the current mean and moves to the
// weighted mean; the weighted sample covariance (plus MinCov) drives the
// next lattice.
func (q *QMC) Iterate() (Pose, error) {
	if !q.started {
		return Pose{}, ErrNotStarted
	}
	chol, err := linalg.CholeskyLower(q.cov)
	if err != nil {
		q.stepped = false
		return Pose{}, fmt.Errorf("%w: %v", ErrNumericalFailure, err)
	}

	n := len(q.lattice)
	q.particles = q.particles[:0]
	offsets := mat.NewDense(n, 3, nil)
	weights := make([]float64, n)
	for i, o := range q.lattice {
		d := chol.MulVec(o)
		p := newParticle(q.pose.Add(PoseFromVec(d)))
		p.Weight = q.eval.likelihood(p.Transform)
		q.particles = append(q.particles, p)
		offsets.SetRow(i, d[:])
		weights[i] = p.Weight
	}

	total := floats.Sum(weights)
	if !(total > 0) || math.IsInf(total, 0) {
		q.delta = Pose{}
		q.stepped = false
		q.log.Diagf("qmc: lattice does not overlap the map (total %g)", total)
		return Pose{}, fmt.Errorf("%w: %d lattice points scored %g", ErrNoOverlap, n, total)
	}

	var step linalg.Vec3
	for j := 0; j < 3; j++ {
		step[j] = stat.Mean(mat.Col(nil, j, offsets), weights)
	}

	if n > 1 {
		// Frequency-normalise so the divisor is n−1 like the unweighted case.
		norm := make([]float64, n)
		floats.ScaleTo(norm, float64(n)/total, weights)
		var c mat.SymDense
		stat.CovarianceMatrix(&c, offsets, norm)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				q.cov[i*3+j] = c.At(i, j) + q.opts.MinCov[i*3+j]
			}
		}
	}

	q.delta = PoseFromVec(step)
	q.pose = q.pose.Add(q.delta)
	q.likelihood = q.eval.Likelihood(q.pose)
	q.stepped = true
	q.log.Tracef("qmc: %d points, sum L=%.6g step=%v -> %v (L=%.6g)",
		n, total, q.delta, q.pose, q.likelihood)
	return q.delta, nil
}

// ConvergeTest reports whether the last successful iteration moved the mean
// less than both thresholds.
func (q *QMC) ConvergeTest(distance, angle float64) bool {
	return q.stepped && withinThreshold(q.delta, distance, angle)
}

func (q *QMC) Pose() Pose          { return q.pose }
func (q *QMC) Likelihood() float64 { return q.likelihood }

// Covariance returns the covariance the next lattice will use.
func (q *QMC) Covariance() linalg.Mat3 { return q.cov }

// Particles returns the lattice particles of the last iteration.
func (q *QMC) Particles() []Particle { return q.particles }

// ClearParticles drops the particle set.
func (q *QMC) ClearParticles() { q.particles = q.particles[:0] }
