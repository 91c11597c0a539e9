// sim/simulator.go
package sim

import (
	"fmt"
	"math"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/cosmo-sim/cosmo-sim/sim/comm"
)

// Simulator owns the integration state of one rank: the particle slab, the
// bin registry, the integer clock and the long-range super-step. The
// configuration is immutable after NewSimulator; mutable state is only
// touched at the well-defined points of the sync/kick cycle.
type Simulator struct {
	cfg   Config
	tl    *Timeline
	comm  comm.Communicator
	hooks Hooks

	P    []Particle
	Bins *TimeBinRegistry

	// TiCurrent is the global integer clock, including snapshot bits.
	TiCurrent Ti
	// PMStart/PMStep delimit the current long-range interval
	// [PMStart, PMStart+PMStep).
	PMStart Ti
	PMStep  Ti

	// Derived quantities refreshed by SetGlobalTime.
	Time     float64 // scale factor a
	TimeStep float64 // dloga covered by the last clock advance
	a2inv    float64
	a3inv    float64
	facEgy   float64 // a^{3(gamma-1)}
	hubble   float64 // H(a)
	hubbleA2 float64 // a^2 H(a)

	// ForceSoftening holds 2.8 times the clamped comoving softening per type.
	ForceSoftening [NumTypes]float64
	MinGasHsml     float64

	Metrics *Metrics

	numWorkers int
}

// NewSimulator validates the configuration and assembles a rank-local
// integrator around the given particle slab.
func NewSimulator(cfg Config, particles []Particle, c comm.Communicator, hooks Hooks) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if c == nil {
		c = comm.Local{}
	}
	hooks.fillDefaults()

	s := &Simulator{
		cfg:        cfg,
		comm:       c,
		hooks:      hooks,
		P:          particles,
		Bins:       NewTimeBinRegistry(len(particles)),
		Metrics:    NewMetrics(),
		numWorkers: cfg.NumWorkers,
	}
	if s.numWorkers <= 0 {
		s.numWorkers = runtime.NumCPU()
	}
	s.tl = NewTimeline(&s.cfg, func(code int, format string, args ...any) {
		s.hooks.Err.Endrun(code, format, args...)
	})

	// Particle slabs may arrive fresh (all bin 0) or carrying restart state;
	// either way the registry is rebuilt from what the slab says.
	s.Bins.UpdateActiveTimeBins(maskTi(s.TiCurrent))
	s.Bins.RebuildActiveList(s.P)
	s.SetGlobalTime(cfg.Time.TimeBegin)
	logrus.Infof("integrator ready: %d local particles, %d workers, timebase=2^%d",
		len(particles), s.numWorkers, TimeBaseLog2)
	return s, nil
}

// Config returns the immutable run configuration.
func (s *Simulator) Config() *Config { return &s.cfg }

// Timeline exposes the tick conversions and kick factors.
func (s *Simulator) Timeline() *Timeline { return s.tl }

// NumPart returns the local particle count.
func (s *Simulator) NumPart() int { return len(s.P) }

// maskTi strips the snapshot bits off a tick. The in-run clock spans
// [0, TimeBase] inclusive, so the snapshot counter starts one bit above
// TimeBaseLog2.
func maskTi(ti Ti) Ti { return ti & (2*TimeBase - 1) }

// InitTimeBins resets the clock and the long-range super-step. PMStep starts
// at zero so the very first kick phase lands on a long-range boundary and
// computes the initial mesh cadence.
func (s *Simulator) InitTimeBins(ti Ti) {
	s.TiCurrent = ti
	s.PMStart = maskTi(ti)
	s.PMStep = 0
	for i := range s.P {
		s.P[i].TimeBin = 0
		s.P[i].TiBegStep = maskTi(ti)
		s.P[i].TiKick = maskTi(ti)
	}
	s.Bins.UpdateActiveTimeBins(maskTi(ti))
	s.Bins.RebuildActiveList(s.P)
}

// SetGlobalTime advances the bookkeeping that depends on the scale factor:
// kinematic factors, the Hubble rate, softenings, and the ionization and
// lightcone collaborators.
func (s *Simulator) SetGlobalTime(a float64) {
	s.TimeStep = 0
	if s.Time > 0 {
		s.TimeStep = math.Log(a) - math.Log(s.Time)
	}
	s.Time = a
	s.a2inv = 1 / (a * a)
	s.a3inv = 1 / (a * a * a)
	s.facEgy = math.Pow(a, 3*(s.cfg.Hydro.Gamma-1))
	s.hubble = s.cfg.Cosmology.HubbleFunction(a)
	s.hubbleA2 = a * a * s.hubble

	s.hooks.IonizeParams(a)
	if s.cfg.Flags.LightconeOn {
		s.hooks.LightconeSetTime(a)
	}
	s.SetSoftenings()
}

// SetSoftenings recomputes the comoving softening table at the current scale
// factor. The comoving value is clamped so the physical softening eps*a never
// exceeds the configured physical cap.
func (s *Simulator) SetSoftenings() {
	for t := 0; t < NumTypes; t++ {
		eps := s.cfg.Softening.Comoving(t)
		if maxPhys := s.cfg.Softening.MaxPhys(t); maxPhys > 0 && eps*s.Time > maxPhys {
			eps = maxPhys / s.Time
		}
		s.ForceSoftening[t] = 2.8 * eps
	}
	s.MinGasHsml = s.cfg.Softening.MinGasHsmlFractional * s.ForceSoftening[TypeGas]
}

// GetShortKickTime returns the tick the particle's velocity refers to: the
// midpoint of its current step, or the step start while it has no bin yet.
func (s *Simulator) GetShortKickTime(i int) Ti {
	p := &s.P[i]
	if p.TimeBin == 0 {
		return p.TiBegStep
	}
	return KickTi(p.TiBegStep, Ti(1)<<uint(p.TimeBin))
}

// IsPMTimestep reports whether ti sits on the closing boundary of the
// current long-range interval.
func (s *Simulator) IsPMTimestep(ti Ti) bool {
	return maskTi(ti) == s.PMStart+s.PMStep
}

// RestartState is the integrator-owned global state persisted across
// restarts; per-particle fields live in the particle slab itself.
type RestartState struct {
	TiCurrent Ti
	PMStart   Ti
	PMStep    Ti
}

// State captures the persisted globals.
func (s *Simulator) State() RestartState {
	return RestartState{TiCurrent: s.TiCurrent, PMStart: s.PMStart, PMStep: s.PMStep}
}

// Restore reinstates persisted globals and rebuilds derived bookkeeping.
func (s *Simulator) Restore(st RestartState) {
	s.TiCurrent = st.TiCurrent
	s.PMStart = st.PMStart
	s.PMStep = st.PMStep
	s.SetGlobalTime(s.tl.AFromTi(s.TiCurrent))
	s.Bins.UpdateActiveTimeBins(maskTi(s.TiCurrent))
	s.Bins.RebuildActiveList(s.P)
}
