// sim/hooks.go
package sim

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ForceKernel refreshes accelerations for the active particles before a kick
// phase. The tree walk, PM mesh and SPH loops live behind this interface; the
// integrator never waits on them itself — the driver invokes the kernel and
// only then enters the kick phase.
type ForceKernel interface {
	// ComputeShortRange must fill GravAccel and, for gas, HydroAccel,
	// Density, Hsml and MaxSignalVel of every particle listed in active.
	ComputeShortRange(p []Particle, active []int) error
	// ComputeLongRange must fill GravPM of every local particle. Called only
	// on long-range boundaries.
	ComputeLongRange(p []Particle) error
}

// DriftKernel advances positions between sync points.
type DriftKernel interface {
	Drift(p []Particle, ti Ti) error
}

// SnapshotWriter emits a snapshot. halfKick records that velocities carry
// only the closing half-kick of their step.
type SnapshotWriter interface {
	Save(snapnum int, halfKick bool) error
}

// ErrHook terminates the run. Any inconsistency the integrator detects means
// the run is corrupt; there is no local recovery path.
type ErrHook interface {
	Endrun(code int, format string, args ...any)
}

// Hooks bundles the external collaborators of the integrator. Zero-value
// fields are replaced by no-op (or fatal-by-exit) defaults in NewSimulator.
type Hooks struct {
	Forces   ForceKernel
	Drift    DriftKernel
	Snapshot SnapshotWriter
	Err      ErrHook

	// IonizeParams re-tabulates the ionization background at every global
	// time update.
	IonizeParams func(a float64)
	// LightconeSetTime notifies the lightcone of the new global time.
	LightconeSetTime func(a float64)
	// Walltime records phase boundaries for the timing report.
	Walltime func(tag string)
}

type noopForces struct{}

func (noopForces) ComputeShortRange([]Particle, []int) error { return nil }
func (noopForces) ComputeLongRange([]Particle) error         { return nil }

type noopDrift struct{}

func (noopDrift) Drift(p []Particle, ti Ti) error {
	for i := range p {
		p[i].TiDrift = ti
	}
	return nil
}

type noopSnapshot struct{}

func (noopSnapshot) Save(snapnum int, halfKick bool) error {
	logrus.Warnf("no snapshot writer configured, dropping snapshot %d (half_kick=%v)", snapnum, halfKick)
	return nil
}

type exitErrHook struct{}

func (exitErrHook) Endrun(code int, format string, args ...any) {
	logrus.Errorf(format, args...)
	logrus.Errorf("endrun called with code %d", code)
	os.Exit(code)
}

func (h *Hooks) fillDefaults() {
	if h.Forces == nil {
		h.Forces = noopForces{}
	}
	if h.Drift == nil {
		h.Drift = noopDrift{}
	}
	if h.Snapshot == nil {
		h.Snapshot = noopSnapshot{}
	}
	if h.Err == nil {
		h.Err = exitErrHook{}
	}
	if h.IonizeParams == nil {
		h.IonizeParams = func(float64) {}
	}
	if h.LightconeSetTime == nil {
		h.LightconeSetTime = func(float64) {}
	}
	if h.Walltime == nil {
		h.Walltime = func(string) {}
	}
}
