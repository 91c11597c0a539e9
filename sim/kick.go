// sim/kick.go
//
// The kick engine. Short-range kicks cover each particle's own step
// midpoints; long-range kicks cover the mesh super-step. Workers partition
// the active list by index stripe, so each particle is written by exactly
// one goroutine and only the bin counters need atomics.
package sim

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// BadStepSnapshot is the snapshot id reserved for the diagnostic dump
// written when a step size degenerates.
const BadStepSnapshot = 999999

// AdvanceAndFindTimesteps is the kick phase of one sync point. It must run
// after the force kernels have refreshed the accelerations of the active
// particles. For every active particle it selects the new time bin, applies
// the short-range kick across the step boundary, and advances the step
// bookkeeping; on long-range boundaries it also applies the mesh kick and
// opens the next super-step.
//
// With doHalfKick the kick stops at the step boundary instead of crossing to
// the next midpoint. That leaves velocities synchronous with positions,
// which is how snapshots are written; ApplyHalfKick reopens the steps
// afterwards.
func (s *Simulator) AdvanceAndFindTimesteps(doHalfKick bool) error {
	ti := maskTi(s.TiCurrent)
	pmBoundary := ti == s.PMStart+s.PMStep

	pmStepNew := s.PMStep
	if pmBoundary {
		pmStepNew = s.longRangeTimestepTicks(s.PMStart + s.PMStep)
		logrus.Debugf("[ti %09d] long-range boundary, next mesh step %d ticks", ti, pmStepNew)
	}
	dtiMax := s.PMStep
	if pmBoundary {
		dtiMax = pmStepNew
	}

	// Optional equalization: every particle adopts the cluster-wide minimum
	// raw step.
	useEqual := s.cfg.Time.ForceEqualTimesteps
	equalDti := Ti(0)
	if useEqual {
		localMin := dtiMax
		for _, i := range s.Bins.ActiveParticle {
			if dti := s.rawTimestepTicks(i, dtiMax); dti < localMin {
				localMin = dti
			}
		}
		equalDti = s.comm.AllreduceMinInt64(localMin)
	}

	var badCount atomic.Int64
	var g errgroup.Group
	active := s.Bins.ActiveParticle
	for w := 0; w < s.numWorkers; w++ {
		w := w
		g.Go(func() error {
			for idx := w; idx < len(active); idx += s.numWorkers {
				i := active[idx]
				dtiRaw := equalDti
				if !useEqual {
					dtiRaw = s.rawTimestepTicks(i, dtiMax)
				}
				if !s.advanceParticle(i, dtiRaw, doHalfKick) {
					badCount.Add(1)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	s.Metrics.ShortKicks += int64(len(active)) - badCount.Load()

	badTotal := s.comm.AllreduceSumInt64(badCount.Load())
	if badTotal > 0 {
		s.Metrics.BadSteps += badTotal
		logrus.Errorf("[ti %09d] %d particles hit a degenerate step size, dumping diagnostic snapshot", ti, badTotal)
		if err := s.hooks.Snapshot.Save(BadStepSnapshot, false); err != nil {
			logrus.Errorf("diagnostic snapshot failed: %v", err)
		}
		s.hooks.Err.Endrun(2, "degenerate step size on %d particles", badTotal)
		return fmt.Errorf("degenerate step size on %d particles", badTotal)
	}

	if pmBoundary {
		t0 := KickTi(s.PMStart, s.PMStep)
		t1 := s.PMStart + s.PMStep
		if !doHalfKick {
			t1 = KickTi(s.PMStart+s.PMStep, pmStepNew)
		}
		s.longRangeKick(t0, t1)
		s.PMStart += s.PMStep
		s.PMStep = pmStepNew
		s.Metrics.PMBoundaries++
	}
	return nil
}

// advanceParticle selects the new bin for one active particle and kicks it
// across its step boundary. Returns false when the raw step is degenerate.
func (s *Simulator) advanceParticle(i int, dtiRaw Ti, doHalfKick bool) bool {
	p := &s.P[i]

	if dtiRaw < 2 || dtiRaw > TimeBase {
		logrus.Debugf("bad step size for particle %d: raw dti %d", p.ID, dtiRaw)
		return false
	}

	binOld := p.TimeBin
	bin := TimestepBin(RoundDownPowerOfTwo(dtiRaw))
	if bin >= TimeBins {
		logrus.Debugf("bad step size for particle %d: bin %d out of range", p.ID, bin)
		return false
	}

	// A particle may only be promoted into a bin that fires at this tick,
	// otherwise it would skip the kick the larger bin already had scheduled.
	if bin > binOld {
		for bin > binOld && !s.Bins.IsTimeBinActive(bin) {
			bin--
		}
	}
	if bin != binOld {
		s.Bins.Migrate(p.Type, binOld, bin)
		p.TimeBin = bin
	}

	var dtiOld Ti
	if binOld > 0 {
		dtiOld = Ti(1) << uint(binOld)
	}
	dtiNew := Ti(1) << uint(bin)

	tistart := KickTi(p.TiBegStep, dtiOld)
	tiend := p.TiBegStep + dtiOld
	if !doHalfKick {
		tiend = KickTi(p.TiBegStep+dtiOld, dtiNew)
	}
	p.TiBegStep += dtiOld

	s.doTheShortRangeKick(i, tistart, tiend)
	return true
}

// ApplyHalfKick reopens the steps after a snapshot: every active particle is
// kicked from its step start to its step midpoint, and the mesh kick covers
// the opening half of the current super-step. Step bookkeeping is not
// advanced.
func (s *Simulator) ApplyHalfKick() {
	active := s.Bins.ActiveParticle
	var g errgroup.Group
	for w := 0; w < s.numWorkers; w++ {
		w := w
		g.Go(func() error {
			for idx := w; idx < len(active); idx += s.numWorkers {
				i := active[idx]
				p := &s.P[i]
				var dti Ti
				if p.TimeBin > 0 {
					dti = Ti(1) << uint(p.TimeBin)
				}
				s.doTheShortRangeKick(i, p.TiBegStep, KickTi(p.TiBegStep, dti))
			}
			return nil
		})
	}
	_ = g.Wait()
	s.Metrics.ShortKicks += int64(len(active))

	s.longRangeKick(s.PMStart, KickTi(s.PMStart, s.PMStep))
}

// doTheShortRangeKick applies the tree-gravity and hydro momentum updates
// over the tick interval [t0, t1], plus the entropy integration for gas.
func (s *Simulator) doTheShortRangeKick(i int, t0, t1 Ti) {
	p := &s.P[i]
	if s.cfg.Flags.DebugChecks && p.TiKick != t0 {
		s.hooks.Err.Endrun(3, "kick time desync on particle %d: at %d, expected %d", p.ID, p.TiKick, t0)
	}

	kg := s.tl.GravKickFactor(t0, t1)
	for j := 0; j < 3; j++ {
		p.Vel[j] += p.GravAccel[j] * kg
	}

	if p.IsGas() {
		sph := p.Sph
		kh := s.tl.HydroKickFactor(t0, t1)
		for j := 0; j < 3; j++ {
			p.Vel[j] += sph.HydroAccel[j] * kh
		}

		if s.cfg.Hydro.MaxGasVel > 0 {
			vmax := s.cfg.Hydro.MaxGasVel * math.Sqrt(s.a3inv)
			if v := floats.Norm(p.Vel[:], 2); v > vmax {
				scale := vmax / v
				for j := 0; j < 3; j++ {
					p.Vel[j] *= scale
				}
			}
		}

		dloga := s.tl.DlogaFromDti(t1 - t0)
		// Half the entropy is the most one corrector step may remove; past
		// that the rate is no longer trustworthy.
		if sph.DtEntropy*dloga < -0.5*sph.Entropy {
			sph.Entropy *= 0.5
		} else {
			sph.Entropy += sph.DtEntropy * dloga
		}

		if s.cfg.Hydro.MinEgySpec > 0 {
			gm1 := s.cfg.Hydro.Gamma - 1
			minEntropy := s.cfg.Hydro.MinEgySpec * gm1 / math.Pow(s.eomDensity(sph)*s.a3inv, gm1)
			if sph.Entropy < minEntropy {
				sph.Entropy = minEntropy
				sph.DtEntropy = 0
			}
		}

		// Keep the look-ahead half-step of the new bin inside the same
		// stability bound.
		if daNext := s.tl.DlogaForBin(p.TimeBin) / 2; sph.DtEntropy*daNext < -0.5*sph.Entropy {
			sph.DtEntropy = -0.5 * sph.Entropy / daNext
		}
	}

	p.TiKick = t1
}

// longRangeKick applies the mesh momentum update over [t0, t1] to every
// local particle, active or not.
func (s *Simulator) longRangeKick(t0, t1 Ti) {
	kg := s.tl.GravKickFactor(t0, t1)
	var g errgroup.Group
	for w := 0; w < s.numWorkers; w++ {
		w := w
		g.Go(func() error {
			for i := w; i < len(s.P); i += s.numWorkers {
				for j := 0; j < 3; j++ {
					s.P[i].Vel[j] += s.P[i].GravPM[j] * kg
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	s.Metrics.LongKicks += int64(len(s.P))
}

// eomDensity returns the density entering the equation of state.
func (s *Simulator) eomDensity(sph *SphState) float64 {
	if s.cfg.Hydro.DensityIndependentSph && sph.EgyWtDensity > 0 {
		return sph.EgyWtDensity
	}
	return sph.Density
}
