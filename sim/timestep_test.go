package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Single collisionless particle with |a| = 1 at a = 1, H = 1, eta = 0.025,
// softening 0.01: the gravity criterion gives dt = sqrt(2*0.025*0.01) and
// the resulting bin must be stable across repeated evaluations.
func TestGravityCriterionSingleParticle(t *testing.T) {
	p := haloParticle(0)
	p.GravAccel = [3]float64{1, 0, 0}
	s, _ := mustNewSimulator(t, edsConfig(), []Particle{p})
	s.SetGlobalTime(1.0)
	require.InEpsilon(t, 1.0, s.hubble, 1e-12, "H(a=1) must be 1 in this background")

	wantDt := math.Sqrt(2 * 0.025 * 1.0 * 0.01 / 1.0)
	require.InEpsilon(t, wantDt, s.timestepDloga(0), 1e-12)

	wantDti := s.tl.DtiFromDloga(wantDt * s.hubble)
	got := s.rawTimestepTicks(0, TimeBase)
	assert.Equal(t, wantDti, got)

	wantBin := TimestepBin(RoundDownPowerOfTwo(got))
	for trial := 0; trial < 5; trial++ {
		dti := s.rawTimestepTicks(0, TimeBase)
		assert.Equal(t, wantBin, TimestepBin(RoundDownPowerOfTwo(dti)), "trial %d", trial)
	}
}

func TestCourantCriterionBindsForFastGas(t *testing.T) {
	p := gasParticle(0)
	p.GravAccel = [3]float64{1e-6, 0, 0}
	p.Sph.MaxSignalVel = 1e4
	s, _ := mustNewSimulator(t, edsConfig(), []Particle{p})
	s.SetGlobalTime(1.0)

	wantCour := 2 * s.cfg.Time.CourantFac * 1.0 * p.Sph.Hsml / (1.0 * p.Sph.MaxSignalVel)
	assert.InEpsilon(t, wantCour, s.timestepDloga(0), 1e-12)
}

func TestAdaptiveGasSofteningUsesHsml(t *testing.T) {
	p := gasParticle(0)
	p.GravAccel = [3]float64{1, 0, 0}
	p.Sph.MaxSignalVel = 0 // disable the Courant branch
	cfg := edsConfig()
	cfg.Softening.AdaptiveGravsoftForGas = true
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	want := math.Sqrt(2 * 0.025 * 1.0 * (p.Sph.Hsml / 2.8) / 1.0)
	assert.InEpsilon(t, want, s.timestepDloga(0), 1e-12)
}

func TestAccretionLimitBindsForBlackHole(t *testing.T) {
	p := haloParticle(0)
	p.Type = TypeBndry
	p.BH = &BHState{Mdot: 1.0, Mass: 1e-6}
	p.GravAccel = [3]float64{1e-10, 0, 0}
	cfg := edsConfig()
	cfg.Flags.BlackHolesOn = true
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	assert.InEpsilon(t, 0.25*1e-6, s.timestepDloga(0), 1e-12)
}

func TestNeighborBinLimiter(t *testing.T) {
	p := haloParticle(0)
	p.Type = TypeBndry
	p.BH = &BHState{MinTimeBin: 5}
	p.GravAccel = [3]float64{1e-10, 0, 0}
	cfg := edsConfig()
	cfg.Flags.BlackHolesOn = true
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	assert.InEpsilon(t, s.tl.DlogaForBin(5)/s.hubble, s.timestepDloga(0), 1e-12)
}

func TestTreeGravOffRidesLongRangeCadence(t *testing.T) {
	cfg := edsConfig()
	cfg.Flags.TreeGravOn = false
	p := haloParticle(0)
	p.GravAccel = [3]float64{1e20, 0, 0} // would be a bad step if it were consulted
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	assert.Equal(t, Ti(4096), s.rawTimestepTicks(0, 4096))
}

func TestMaxSizeTimestepCapsForceFreeParticles(t *testing.T) {
	s, _ := mustNewSimulator(t, edsConfig(), []Particle{haloParticle(0)})
	s.SetGlobalTime(1.0)

	want := s.tl.DtiFromDloga(s.cfg.Time.MaxSizeTimestep)
	assert.Equal(t, want, s.rawTimestepTicks(0, TimeBase))
}

func TestLongRangeStepAlignsWithSuperStep(t *testing.T) {
	particles := []Particle{haloParticle(0), haloParticle(1)}
	particles[0].Vel = [3]float64{30, 0, 0}
	particles[1].Vel = [3]float64{0, 30, 0}
	s, _ := mustNewSimulator(t, edsConfig(), particles)
	s.SetGlobalTime(1.0)

	dti := s.longRangeTimestepTicks(0)
	require.Greater(t, dti, Ti(0))
	assert.Equal(t, dti, RoundDownPowerOfTwo(dti), "mesh cadence must be a power of two")

	// A super-step opening at an odd multiple of 2^16 must divide it.
	aligned := s.longRangeTimestepTicks(3 << 16)
	assert.Equal(t, Ti(0), (3<<16)&(aligned-1), "cadence must divide the opening tick")
}

func TestLongRangeStepExcludesFastParticleType(t *testing.T) {
	slow := haloParticle(0)
	slow.Vel = [3]float64{1, 0, 0}
	fast := haloParticle(1)
	fast.Type = TypeBulge
	fast.Vel = [3]float64{1e6, 0, 0}

	cfg := edsConfig()
	cfg.PM.FastParticleType = TypeBulge
	s, _ := mustNewSimulator(t, cfg, []Particle{slow, fast})
	s.SetGlobalTime(1.0)
	withExclusion := s.longRangeTimestepDloga()

	cfg.PM.FastParticleType = -1
	s2, _ := mustNewSimulator(t, cfg, []Particle{slow, fast})
	s2.SetGlobalTime(1.0)
	without := s2.longRangeTimestepDloga()

	assert.Greater(t, withExclusion, without,
		"excluding the fast type must relax the bound")
}

func TestStarformationFoldsBaryonsIntoOneBucket(t *testing.T) {
	cfg := edsConfig()
	cfg.Flags.StarformationOn = true
	s, _ := mustNewSimulator(t, cfg, nil)

	assert.Equal(t, TypeGas, s.rmsBucket(TypeGas))
	assert.Equal(t, TypeGas, s.rmsBucket(TypeStars))
	assert.Equal(t, TypeGas, s.rmsBucket(TypeBndry))
	assert.Equal(t, TypeHalo, s.rmsBucket(TypeHalo))

	cfg.Flags.StarformationOn = false
	s2, _ := mustNewSimulator(t, cfg, nil)
	assert.Equal(t, TypeStars, s2.rmsBucket(TypeStars))
}
