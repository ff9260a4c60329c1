package scanmatch

import (
	"math"

	"github.com/banshee-data/scanmatch/internal/linalg"
	"github.com/banshee-data/scanmatch/internal/monitoring"
)

// Inner thresholds at which Hybrid hands over from QMC to Newton. They are
// independent of the thresholds callers pass to ConvergeTest.
const (
	HybridSwitchDistance = 0.001         // 1 mm
	HybridSwitchAngle    = math.Pi / 180 // 1°
)

// Hybrid runs QMC until the lattice mean settles, then switches to Newton
// for the rest of the run. It never switches back.
type Hybrid struct {
	qmc        *QMC
	newton     *Newton
	log        *monitoring.Logger
	newtonMode bool
}

// NewHybrid combines a QMC and a Newton optimizer over the same map.
func NewHybrid(qmc *QMC, newton *Newton, log *monitoring.Logger) *Hybrid {
	return &Hybrid{qmc: qmc, newton: newton, log: monitoring.OrDiscard(log)}
}

func (h *Hybrid) Name() string { return "hybrid" }

// Begin restarts in QMC mode.
func (h *Hybrid) Begin(prior Pose, cov linalg.Mat3) error {
	h.newtonMode = false
	return h.qmc.Begin(prior, cov)
}

func (h *Hybrid) SetScan(points []linalg.Vec2) {
	h.qmc.SetScan(points)
	h.newton.SetScan(points)
}

// Iterate steps the active optimizer. After a QMC step that passes the inner
// switch test with particles present, the particles are discarded and Newton
// starts from the QMC mean.
func (h *Hybrid) Iterate() (Pose, error) {
	if h.newtonMode {
		return h.newton.Iterate()
	}
	delta, err := h.qmc.Iterate()
	if err != nil {
		return delta, err
	}
	if h.qmc.ConvergeTest(HybridSwitchDistance, HybridSwitchAngle) && len(h.qmc.Particles()) > 0 {
		h.qmc.ClearParticles()
		if err := h.newton.Begin(h.qmc.Pose(), linalg.Mat3{}); err != nil {
			return delta, err
		}
		// Newton has not scored its start yet; report the QMC score for
		// the switch step.
		h.newton.likelihood = h.qmc.Likelihood()
		h.newtonMode = true
		h.log.Diagf("hybrid: switching to newton at %v", h.qmc.Pose())
	}
	return delta, nil
}

// ConvergeTest only passes in Newton mode.
func (h *Hybrid) ConvergeTest(distance, angle float64) bool {
	return h.newtonMode && h.newton.ConvergeTest(distance, angle)
}

func (h *Hybrid) Pose() Pose {
	if h.newtonMode {
		return h.newton.Pose()
	}
	return h.qmc.Pose()
}

func (h *Hybrid) Likelihood() float64 {
	if h.newtonMode {
		return h.newton.Likelihood()
	}
	return h.qmc.Likelihood()
}

// NewtonMode reports whether the switch to Newton has happened.
func (h *Hybrid) NewtonMode() bool { return h.newtonMode }
