package scanmatch

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/monitoring"
	"github.com/banshee-data/scanmatch/internal/statmap"
)

// MonteCarloOptions configures a MonteCarlo optimizer.
type MonteCarloOptions struct {
	Particles    int         // population size, at least 1
	Alpha        float64     // fraction of each new population cloned from the best particle
	InitialCov   linalg.Mat3 // default spread of the seeded population
	ResampleCov  linalg.Mat3 // jitter added to roulette-drawn particles
	PositionGain bool
	Seed         uint64
	Log          *monitoring.Logger
}

func (o *MonteCarloOptions) validate() error {
	if o.Particles < 1 {
		return fmt.Errorf("%w: particles must be at least 1, got %d", ErrInvalidArgument, o.Particles)
	}
	if o.Alpha < 0 || o.Alpha > 1 || math.IsNaN(o.Alpha) {
		return fmt.Errorf("%w: resample alpha must be in [0, 1], got %g", ErrInvalidArgument, o.Alpha)
	}
	return nil
}

// MonteCarlo is a particle search: every iteration keeps the most likely
// particle as the estimate and resamples the population around it.
type MonteCarlo struct {
	opts       MonteCarloOptions
	eval       *Evaluator
	log        *monitoring.Logger
	src        rand.Source
	rng        *rand.Rand
	jitter     *distmv.Normal
	particles  []Particle
	pose       Pose
	delta      Pose
	likelihood float64
	started    bool
	stepped    bool
}

// NewMonteCarlo returns a Monte Carlo optimizer over m.
func NewMonteCarlo(m *statmap.ProbabilityMap, opts MonteCarloOptions) (*MonteCarlo, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	src := rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)
	mc := &MonteCarlo{
		opts: opts,
		eval: NewEvaluator(m, opts.PositionGain),
		log:  monitoring.OrDiscard(opts.Log),
		src:  src,
		rng:  rand.New(src),
	}
	if !isZero(opts.ResampleCov) {
		jitter, ok := distmv.NewNormal(make([]float64, 3), opts.ResampleCov.SymDense(), src)
		if !ok {
			return nil, fmt.Errorf("%w: resample covariance is not positive definite", ErrInvalidArgument)
		}
		mc.jitter = jitter
	}
	return mc, nil
}

func (mc *MonteCarlo) Name() string { return "montecarlo" }

// Begin seeds one particle at prior and the rest from N(prior, cov). A zero
// cov selects InitialCov.
func (mc *MonteCarlo) Begin(prior Pose, cov linalg.Mat3) error {
	if !prior.IsFinite() {
		return fmt.Errorf("%w: non-finite prior %v", ErrInvalidArgument, prior)
	}
	if isZero(cov) {
		cov = mc.opts.InitialCov
	}
	prior = prior.Normalize()
	mc.particles = mc.particles[:0]
	mc.particles = append(mc.particles, newParticle(prior))

	if mc.opts.Particles > 1 {
		if isZero(cov) {
			return fmt.Errorf("%w: no initial covariance for %d particles", ErrInvalidArgument, mc.opts.Particles)
		}
		mu := prior.Vec()
		seed, ok := distmv.NewNormal(mu[:], cov.SymDense(), mc.src)
		if !ok {
			return fmt.Errorf("%w: initial covariance is not positive definite", ErrInvalidArgument)
		}
		x := make([]float64, 3)
		for i := 1; i < mc.opts.Particles; i++ {
			seed.Rand(x)
			mc.particles = append(mc.particles, newParticle(Pose{X: x[0], Y: x[1], Theta: x[2]}.Normalize()))
		}
	}

	mc.pose = prior
	mc.delta = Pose{}
	mc.likelihood = 0
	mc.started = true
	mc.stepped = false
	return nil
}

func (mc *MonteCarlo) SetScan(points []linalg.Vec2) { mc.eval.SetScan(points) }

// Iterate scores every particle, adopts the best as the estimate and
// resamples. When no particle overlaps the map the pose and population are
// left unchanged and ErrNoOverlap is returned.
func (mc *MonteCarlo) Iterate() (Pose, error) {
	if !mc.started {
		return Pose{}, ErrNotStarted
	}
	weights := make([]float64, len(mc.particles))
	best := 0
	for i := range mc.particles {
		w := mc.eval.likelihood(mc.particles[i].Transform)
		mc.particles[i].Weight = w
		weights[i] = w
		if w > weights[best] {
			best = i
		}
	}
	total := floats.Sum(weights)
	if !(total > 0) || math.IsInf(total, 0) {
		mc.delta = Pose{}
		mc.stepped = false
		mc.log.Diagf("montecarlo: no particle overlaps the map (total %g)", total)
		return Pose{}, fmt.Errorf("%w: %d particles scored %g", ErrNoOverlap, len(mc.particles), total)
	}

	prev := mc.pose
	mc.pose = mc.particles[best].Pose
	mc.likelihood = weights[best]
	mc.delta = mc.pose.Sub(prev)
	mc.stepped = true
	mc.resample(best, weights)
	mc.log.Tracef("montecarlo: best L=%.6g of %d (sum %.6g) delta=%v -> %v",
		mc.likelihood, len(weights), total, mc.delta, mc.pose)
	return mc.delta, nil
}

// resample builds the next population: ⌈α·N⌉ clones of the best particle,
// the rest drawn by roulette wheel on weights and jittered.
func (mc *MonteCarlo) resample(best int, weights []float64) {
	n := len(mc.particles)
	bestParticle := mc.particles[best]
	cum := floats.CumSum(make([]float64, n), weights)
	total := cum[n-1]

	next := make([]Particle, 0, n)
	keep := int(math.Ceil(mc.opts.Alpha * float64(n)))
	for i := 0; i < keep && i < n; i++ {
		next = append(next, bestParticle)
	}
	jitter := make([]float64, 3)
	for len(next) < n {
		p := mc.particles[rouletteIndex(cum, weights, mc.rng.Float64()*total)].Pose
		if mc.jitter != nil {
			mc.jitter.Rand(jitter)
			p = p.Add(Pose{X: jitter[0], Y: jitter[1], Theta: jitter[2]})
		}
		next = append(next, newParticle(p))
	}
	mc.particles = next
}

// rouletteIndex returns the particle whose slice of the cumulative weights
// cum contains r, for 0 <= r < cum[len(cum)-1]. Zero-weight particles are
// never returned.
func rouletteIndex(cum, weights []float64, r float64) int {
	idx := sort.SearchFloat64s(cum, r)
	// cum[idx] >= r; skip zero-weight entries sharing the same cumulative
	// value.
	for idx < len(cum)-1 && weights[idx] == 0 {
		idx++
	}
	return idx
}

// ConvergeTest reports whether the last successful iteration moved the
// estimate less than both thresholds.
func (mc *MonteCarlo) ConvergeTest(distance, angle float64) bool {
	return mc.stepped && withinThreshold(mc.delta, distance, angle)
}

func (mc *MonteCarlo) Pose() Pose          { return mc.pose }
func (mc *MonteCarlo) Likelihood() float64 { return mc.likelihood }

// Particles returns the current population. The slice is owned by mc.
func (mc *MonteCarlo) Particles() []Particle { return mc.particles }
