// sim/predict.go
//
// Drift-time predictions. Kicked quantities live at step midpoints while
// positions live at the drift tick; the SPH loops need both at the same
// time, so velocity, entropy and pressure are extrapolated by the kick
// integral between the two. The factor memo in the timeline makes the
// repeated per-neighbour calls cheap.
package sim

import "math"

// VelPred returns the velocity of particle i extrapolated to its drift tick.
func (s *Simulator) VelPred(i int) [3]float64 {
	p := &s.P[i]
	kick := s.GetShortKickTime(i)
	pmKick := KickTi(s.PMStart, s.PMStep)

	kg := s.tl.GravKickFactor(kick, p.TiDrift)
	kpm := s.tl.GravKickFactor(pmKick, p.TiDrift)

	var v [3]float64
	for j := 0; j < 3; j++ {
		v[j] = p.Vel[j] + p.GravAccel[j]*kg + p.GravPM[j]*kpm
	}
	if p.IsGas() {
		kh := s.tl.HydroKickFactor(kick, p.TiDrift)
		for j := 0; j < 3; j++ {
			v[j] += p.Sph.HydroAccel[j] * kh
		}
	}
	return v
}

// EntropyPred returns the entropic function of gas particle i extrapolated
// to its drift tick.
func (s *Simulator) EntropyPred(i int) float64 {
	p := &s.P[i]
	if !p.IsGas() {
		return 0
	}
	dloga := s.tl.DlogaFromDti(p.TiDrift - s.GetShortKickTime(i))
	return p.Sph.Entropy + p.Sph.DtEntropy*dloga
}

// PressurePred returns the drift-time pressure of gas particle i in the
// entropy formulation P = A rho^gamma, using the equation-of-state density.
func (s *Simulator) PressurePred(i int) float64 {
	p := &s.P[i]
	if !p.IsGas() {
		return 0
	}
	return s.EntropyPred(i) * math.Pow(s.eomDensity(p.Sph), s.cfg.Hydro.Gamma)
}
