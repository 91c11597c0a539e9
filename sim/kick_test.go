package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// accelForBin returns a tree acceleration magnitude that makes the gravity
// criterion land inside bin b at a = 1, H = 1.
func accelForBin(s *Simulator, b int) float64 {
	// Aim at 1.5 * 2^b ticks so rounding cannot spill into a neighbour bin.
	dloga := s.tl.DlogaFromDti(3 * (Ti(1) << uint(b)) / 2)
	// dloga = dt * H = sqrt(2 eta a eps / ac)
	eps := s.ForceSoftening[TypeHalo] / 2.8
	return 2 * s.cfg.Time.ErrTolIntAccuracy * eps / (dloga * dloga)
}

// A particle promoted out of bin 3 while only bins 0..4 fire at the current
// tick must stop at bin 4, not jump to bin 6.
func TestUpwardBinMovementGuard(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 1
	p := haloParticle(0)
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)
	s.P[0].GravAccel = [3]float64{accelForBin(s, 6), 0, 0}

	s.TiCurrent = 16
	setBin(s, 0, 3, 8)
	s.PMStart, s.PMStep = 0, 1024
	s.Bins.UpdateActiveTimeBins(16) // bins 0..4 active
	s.Bins.RebuildActiveList(s.P)

	// Sanity: the raw request really is bin 6.
	require.Equal(t, 6, TimestepBin(RoundDownPowerOfTwo(s.rawTimestepTicks(0, s.PMStep))))

	require.NoError(t, s.AdvanceAndFindTimesteps(false))
	assert.Equal(t, 4, s.P[0].TimeBin)
	assert.Equal(t, int64(1), s.Bins.TimeBinCount[4].Load())
	assert.Equal(t, int64(0), s.Bins.TimeBinCount[3].Load())
	assert.Equal(t, Ti(16), s.P[0].TiBegStep)
}

// A gas particle over the velocity cap with zero acceleration must come out
// of the kick at exactly the cap.
func TestGasVelocityCap(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 1
	cfg.Hydro.MaxGasVel = 100.0
	p := gasParticle(0)
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	vmax := cfg.Hydro.MaxGasVel * math.Sqrt(s.a3inv)
	s.P[0].Vel = [3]float64{2 * vmax, 0, 0}

	s.doTheShortRangeKick(0, 0, 16)
	assert.InDelta(t, vmax, floats.Norm(s.P[0].Vel[:], 2), vmax*1e-15)
}

// Degenerate step sizes are counted, voted on across ranks, dumped as the
// diagnostic snapshot, and terminate the run.
func TestBadStepTerminatesWithDiagnosticSnapshot(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 1
	p := haloParticle(0)
	p.GravAccel = [3]float64{1e30, 0, 0}
	s, rec := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)
	s.PMStart, s.PMStep = 0, 1024
	setBin(s, 0, 3, 0)
	s.TiCurrent = 8
	s.Bins.UpdateActiveTimeBins(8)
	s.Bins.RebuildActiveList(s.P)

	require.Panics(t, func() { _ = s.AdvanceAndFindTimesteps(false) })
	require.Len(t, rec.saved, 1)
	assert.Equal(t, BadStepSnapshot, rec.saved[0])
	assert.Equal(t, int64(1), s.Metrics.BadSteps)
}

// On a long-range boundary the mesh kick covers the interval between the old
// and new super-step midpoints and the super-step advances.
func TestPMBoundaryKickAndSuperStepAdvance(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 1
	p := haloParticle(0)
	p.GravPM = [3]float64{1, 0, 0}
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	s.PMStart, s.PMStep = 0, 1024
	s.TiCurrent = 1024
	setBin(s, 0, 8, 768)
	s.P[0].Vel = [3]float64{0, 0, 0}
	s.Bins.UpdateActiveTimeBins(1024)
	s.Bins.RebuildActiveList(s.P)

	// Slow enough that the rms bound exceeds the alignment clamp: the new
	// cadence stays 1024 because it must divide the new start tick.
	require.NoError(t, s.AdvanceAndFindTimesteps(false))

	assert.Equal(t, Ti(1024), s.PMStart)
	assert.Equal(t, Ti(1024), s.PMStep)

	wantKick := s.tl.GravKickFactor(KickTi(0, 1024), KickTi(1024, 1024))
	assert.InDelta(t, wantKick, s.P[0].Vel[0], math.Abs(wantKick)*1e-12)
}

func TestEntropyCorrectorHalvesOnRunawayCooling(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 1
	p := gasParticle(0)
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	sph := s.P[0].Sph
	sph.Entropy = 1.0
	dloga := s.tl.DlogaFromDti(1 << 20)
	sph.DtEntropy = -1.0 / dloga // dA*dloga = -1 < -0.5*A

	s.doTheShortRangeKick(0, 0, 1<<20)
	assert.InDelta(t, 0.5, sph.Entropy, 1e-12)
}

func TestEntropyIntegratesInTheStableRegime(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 1
	p := gasParticle(0)
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	sph := s.P[0].Sph
	sph.Entropy = 2.0
	sph.DtEntropy = 3.0
	dloga := s.tl.DlogaFromDti(1 << 18)

	s.doTheShortRangeKick(0, 0, 1<<18)
	assert.InDelta(t, 2.0+3.0*dloga, sph.Entropy, 1e-12)
}

func TestEntropyFloorFromMinEgySpec(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 1
	cfg.Hydro.MinEgySpec = 10.0
	p := gasParticle(0)
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	sph := s.P[0].Sph
	sph.Entropy = 1e-8
	sph.DtEntropy = -1e-3

	s.doTheShortRangeKick(0, 0, 1<<10)
	gm1 := cfg.Hydro.Gamma - 1
	wantFloor := cfg.Hydro.MinEgySpec * gm1 / math.Pow(sph.Density*s.a3inv, gm1)
	assert.InDelta(t, wantFloor, sph.Entropy, wantFloor*1e-12)
	assert.Zero(t, sph.DtEntropy)
}

func TestDtEntropyClampedForNextHalfStep(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 1
	p := gasParticle(0)
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	s.P[0].TimeBin = 10
	sph := s.P[0].Sph
	sph.Entropy = 1.0
	daNext := s.tl.DlogaForBin(10) / 2
	sph.DtEntropy = -2.0 / daNext

	s.doTheShortRangeKick(0, 0, 2)
	assert.InDelta(t, -0.5*sph.Entropy/daNext, sph.DtEntropy, 1e-6)
	// === Invariant: the look-ahead half-step cannot remove more than half
	// the entropy ===
	assert.LessOrEqual(t, math.Abs(sph.DtEntropy*daNext), 0.5*sph.Entropy+1e-12)
}

func TestKickTimeDesyncIsFatalUnderDebugChecks(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 1
	cfg.Flags.DebugChecks = true
	p := haloParticle(0)
	s, _ := mustNewSimulator(t, cfg, []Particle{p})
	s.SetGlobalTime(1.0)

	s.P[0].TiKick = 5
	require.Panics(t, func() { s.doTheShortRangeKick(0, 7, 9) })
}

func TestLongRangeKickCoversAllParticles(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 2
	particles := []Particle{haloParticle(0), haloParticle(1), gasParticle(2)}
	for i := range particles {
		particles[i].GravPM = [3]float64{0, 1, 0}
	}
	s, _ := mustNewSimulator(t, cfg, particles)
	s.SetGlobalTime(1.0)

	kg := s.tl.GravKickFactor(100, 900)
	s.longRangeKick(100, 900)
	for i := range s.P {
		assert.InDelta(t, kg, s.P[i].Vel[1], math.Abs(kg)*1e-12, "particle %d", i)
	}
}

// Closing a step with a half-kick and reopening it with ApplyHalfKick must
// land on the same state as the single full kick, up to quadrature rounding
// in the split kick factors.
func TestHalfKickSnapshotRoundTrip(t *testing.T) {
	mk := func() *Simulator {
		cfg := edsConfig()
		cfg.NumWorkers = 1
		p := gasParticle(0)
		p.GravAccel = [3]float64{0.3, -0.2, 0.1}
		p.Sph.HydroAccel = [3]float64{-0.05, 0.02, 0}
		p.Sph.DtEntropy = 0.01
		s, _ := mustNewSimulator(t, cfg, []Particle{p})
		s.SetGlobalTime(1.0)
		s.PMStart, s.PMStep = 0, 1<<12
		setBin(s, 0, 8, 512)
		s.TiCurrent = 768
		s.Bins.UpdateActiveTimeBins(768)
		s.Bins.RebuildActiveList(s.P)
		return s
	}

	full := mk()
	require.NoError(t, full.AdvanceAndFindTimesteps(false))

	half := mk()
	require.NoError(t, half.AdvanceAndFindTimesteps(true))
	// Snapshot would be written here, with velocities synchronous.
	half.Bins.RebuildActiveList(half.P)
	half.ApplyHalfKick()

	for j := 0; j < 3; j++ {
		assert.InDelta(t, full.P[0].Vel[j], half.P[0].Vel[j], 1e-10, "component %d", j)
	}
	assert.InDelta(t, full.P[0].Sph.Entropy, half.P[0].Sph.Entropy, 1e-10)
	assert.Equal(t, full.P[0].TiBegStep, half.P[0].TiBegStep)
	assert.Equal(t, full.P[0].TiKick, half.P[0].TiKick)
}

// With step equalization every particle adopts the global minimum bin.
func TestForceEqualTimesteps(t *testing.T) {
	cfg := edsConfig()
	cfg.NumWorkers = 1
	cfg.Time.ForceEqualTimesteps = true
	slow := haloParticle(0)
	fast := haloParticle(1)
	s, _ := mustNewSimulator(t, cfg, []Particle{slow, fast})
	s.SetGlobalTime(1.0)
	s.P[0].GravAccel = [3]float64{accelForBin(s, 10), 0, 0}
	s.P[1].GravAccel = [3]float64{accelForBin(s, 6), 0, 0}

	s.TiCurrent = 0
	s.PMStart, s.PMStep = 0, 1<<20
	s.Bins.UpdateActiveTimeBins(0)
	s.Bins.RebuildActiveList(s.P)

	require.NoError(t, s.AdvanceAndFindTimesteps(false))
	assert.Equal(t, s.P[1].TimeBin, s.P[0].TimeBin)
	assert.Equal(t, 6, s.P[0].TimeBin)
}
