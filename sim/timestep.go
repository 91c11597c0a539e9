// sim/timestep.go
//
// Timestep selection. Each particle's step comes from the most restrictive
// of the physical criteria (gravity, Courant, accretion), converted to ticks
// and rounded down to a power of two. The long-range cadence comes from the
// rms-displacement bound evaluated per particle species across all ranks.
package sim

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// accelFloor keeps the gravity criterion finite for force-free particles.
const accelFloor = 1e-30

// timestepDloga evaluates the short-range criteria for particle i and
// returns the step as a physical dt times nothing — the caller multiplies by
// H to obtain dloga. dt is in physical time units.
func (s *Simulator) timestepDloga(i int) float64 {
	p := &s.P[i]

	var aphys [3]float64
	for j := 0; j < 3; j++ {
		aphys[j] = s.a2inv * (p.GravAccel[j] + p.GravPM[j])
	}
	if p.IsGas() {
		hydroFac := math.Pow(s.Time, -(3*s.cfg.Hydro.Gamma - 2))
		for j := 0; j < 3; j++ {
			aphys[j] += hydroFac * p.Sph.HydroAccel[j]
		}
	}
	ac := floats.Norm(aphys[:], 2)
	if ac < accelFloor {
		ac = accelFloor
	}

	eps := s.ForceSoftening[p.Type] / 2.8
	if p.IsGas() && s.cfg.Softening.AdaptiveGravsoftForGas {
		eps = p.Sph.Hsml / 2.8
	}
	dt := math.Sqrt(2 * s.cfg.Time.ErrTolIntAccuracy * s.Time * eps / ac)

	if p.IsGas() && p.Sph.MaxSignalVel > 0 {
		// Courant bound on the signal crossing time of the kernel.
		csfac := math.Pow(s.Time, 1.5*(1-s.cfg.Hydro.Gamma))
		dtCour := 2 * s.cfg.Time.CourantFac * s.Time * p.Sph.Hsml / (csfac * p.Sph.MaxSignalVel)
		if dtCour < dt {
			dt = dtCour
		}
	}

	if s.cfg.Flags.BlackHolesOn && p.BH != nil {
		if p.BH.Mdot > 0 {
			dtAccr := 0.25 * p.BH.Mass / p.BH.Mdot
			if dtAccr < dt {
				dt = dtAccr
			}
		}
		if p.BH.MinTimeBin > 0 {
			dtNgb := s.tl.DlogaForBin(p.BH.MinTimeBin) / s.hubble
			if dtNgb < dt {
				dt = dtNgb
			}
		}
	}
	return dt
}

// rawTimestepTicks converts the short-range criteria to a tick count clipped
// to dtiMax. With tree gravity disabled there is no short-range criterion
// and the particle simply rides the long-range cadence.
func (s *Simulator) rawTimestepTicks(i int, dtiMax Ti) Ti {
	if !s.cfg.Flags.TreeGravOn {
		return dtiMax
	}
	dloga := s.timestepDloga(i) * s.hubble
	if dloga < s.cfg.Time.MinSizeTimestep {
		dloga = s.cfg.Time.MinSizeTimestep
	}
	if dloga > s.cfg.Time.MaxSizeTimestep {
		dloga = s.cfg.Time.MaxSizeTimestep
	}
	dti := s.tl.DtiFromDloga(dloga)
	if dti > dtiMax {
		dti = dtiMax
	}
	return dti
}

// rmsBucket folds a particle type into a displacement-criterion bucket.
// With star formation all baryonic species share bucket 0 and the baryon
// density; otherwise the tag itself is the bucket.
func (s *Simulator) rmsBucket(ptype int) int {
	if s.cfg.Flags.StarformationOn && (ptype == TypeGas || ptype == TypeStars || ptype == TypeBndry) {
		return TypeGas
	}
	return ptype
}

// longRangeTimestepDloga evaluates the rms-displacement bound: the mesh kick
// interval must keep the typical particle displacement below a fraction of
// the mesh cell (or of the mean inter-particle spacing, whichever is
// smaller). Cluster-wide sums make every rank adopt the same cadence.
func (s *Simulator) longRangeTimestepDloga() float64 {
	// Per-bucket accumulators: sum v^2, count, and min mass.
	sumV2 := make([]float64, NumTypes)
	count := make([]float64, NumTypes)
	minMass := make([]float64, NumTypes)
	for t := range minMass {
		minMass[t] = math.MaxFloat64
	}
	for i := range s.P {
		b := s.rmsBucket(s.P[i].Type)
		sumV2[b] += floats.Dot(s.P[i].Vel[:], s.P[i].Vel[:])
		count[b]++
		if s.P[i].Mass < minMass[b] {
			minMass[b] = s.P[i].Mass
		}
	}
	s.comm.AllreduceSumFloat64s(sumV2)
	s.comm.AllreduceSumFloat64s(count)
	s.comm.AllreduceMinFloat64s(minMass)

	asmth := s.cfg.PM.Asmth * s.cfg.PM.BoxSize / float64(s.cfg.PM.Nmesh)
	rhoCrit := s.cfg.Cosmology.RhoCrit()

	dloga := s.cfg.Time.MaxSizeTimestep
	for t := 0; t < NumTypes; t++ {
		if count[t] == 0 || t == s.cfg.PM.FastParticleType {
			continue
		}
		sigma := math.Sqrt(sumV2[t] / count[t])
		if sigma <= 0 {
			continue
		}
		omega := s.bucketOmega(t)
		if omega <= 0 {
			continue
		}
		dMean := math.Cbrt(minMass[t] / (omega * rhoCrit))
		scale := asmth
		if dMean < scale {
			scale = dMean
		}
		d := s.cfg.PM.MaxRMSDisplacementFac * s.hubble * s.Time * s.Time * scale / sigma
		if d < dloga {
			dloga = d
		}
	}
	return dloga
}

// bucketOmega returns the density parameter backing a displacement bucket.
func (s *Simulator) bucketOmega(bucket int) float64 {
	if bucket == TypeGas {
		return s.cfg.Cosmology.OmegaBaryon
	}
	return s.cfg.Cosmology.OmegaCDM()
}

// longRangeTimestepTicks converts the rms bound to the power-of-two tick
// cadence of the mesh kick. The result always divides pmStart, the opening
// tick of the new super-step, so PMStart stays a multiple of PMStep.
func (s *Simulator) longRangeTimestepTicks(pmStart Ti) Ti {
	dti := RoundDownPowerOfTwo(s.tl.DtiFromDloga(s.longRangeTimestepDloga()))
	if dti < 1 {
		dti = 1
	}
	if dti > TimeBase {
		dti = TimeBase
	}
	for pmStart&(dti-1) != 0 {
		dti >>= 1
	}
	return dti
}
