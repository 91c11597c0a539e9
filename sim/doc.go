// Package sim implements the hierarchical time-integration core of a
// cosmological N-body/SPH run: a kick-drift-kick leapfrog with per-particle
// power-of-two timestep bins on a shared integer timeline, a superimposed
// long-range (particle-mesh) cadence, and the collective reductions that keep
// a distributed run in lockstep. Force computation, drifting, cooling and
// I/O live behind the interfaces in hooks.go.
package sim
