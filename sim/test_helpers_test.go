package sim

import (
	"fmt"
	"testing"
)

// panicErrHook turns endrun into a panic so tests can observe fatal paths.
type panicErrHook struct{}

func (panicErrHook) Endrun(code int, format string, args ...any) {
	panic(fmt.Sprintf("endrun %d: %s", code, fmt.Sprintf(format, args...)))
}

// recordingSnapshot remembers every snapshot request.
type recordingSnapshot struct {
	saved []int
	half  []bool
}

func (r *recordingSnapshot) Save(snapnum int, halfKick bool) error {
	r.saved = append(r.saved, snapnum)
	r.half = append(r.half, halfKick)
	return nil
}

// edsConfig is an Einstein-de-Sitter box in units where H0 = G = 1, so
// H(a=1) = 1 and the criteria of the tests evaluate to round numbers.
func edsConfig() Config {
	cfg := DefaultConfig()
	cfg.Time.TimeBegin = 0.1
	cfg.Time.TimeMax = 1.0
	cfg.Cosmology = CosmologyConfig{
		Omega0:      1.0,
		OmegaLambda: 0.0,
		OmegaBaryon: 0.05,
		HubbleParam: 0.7,
		H0:          1.0,
		G:           1.0,
	}
	cfg.Softening = SofteningConfig{
		Gas: 0.01, Halo: 0.01, Disk: 0.01, Bulge: 0.01, Stars: 0.01, Bndry: 0.01,
		MinGasHsmlFractional: 0.1,
	}
	cfg.PM = PMConfig{
		Asmth:                 1.25,
		Nmesh:                 64,
		BoxSize:               10.0,
		MaxRMSDisplacementFac: 0.125,
		FastParticleType:      -1,
	}
	cfg.NumWorkers = 2
	return cfg
}

// mustNewSimulator builds a test integrator with a panicking error hook and
// a recording snapshot writer.
func mustNewSimulator(t *testing.T, cfg Config, particles []Particle) (*Simulator, *recordingSnapshot) {
	t.Helper()
	rec := &recordingSnapshot{}
	s, err := NewSimulator(cfg, particles, nil, Hooks{Err: panicErrHook{}, Snapshot: rec})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return s, rec
}

// haloParticle returns a collisionless particle at rest.
func haloParticle(id uint64) Particle {
	return Particle{ID: id, Type: TypeHalo, Mass: 1.0}
}

// gasParticle returns a gas particle with plausible SPH state.
func gasParticle(id uint64) Particle {
	return Particle{
		ID: id, Type: TypeGas, Mass: 0.1,
		Sph: &SphState{
			Density:      1.0,
			Entropy:      1.0,
			Hsml:         0.05,
			MaxSignalVel: 10.0,
		},
	}
}
