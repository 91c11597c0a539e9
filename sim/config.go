// sim/config.go
package sim

import "fmt"

// TimeIntegrationConfig groups the accuracy parameters of the leapfrog.
type TimeIntegrationConfig struct {
	TimeBegin          float64 `yaml:"time_begin"`            // scale factor at the start of the run (must be > 0)
	TimeMax            float64 `yaml:"time_max"`              // scale factor at the end of the run (must be > TimeBegin)
	ErrTolIntAccuracy  float64 `yaml:"err_tol_int_accuracy"`  // eta of the gravity criterion (default 0.025)
	CourantFac         float64 `yaml:"courant_fac"`           // hydrodynamic signal-velocity safety factor (default 0.15)
	MaxSizeTimestep    float64 `yaml:"max_size_timestep"`     // upper bound on dloga per step (default 0.1)
	MinSizeTimestep    float64 `yaml:"min_size_timestep"`     // lower bound on dloga per step (0 = none)
	ForceEqualTimesteps bool   `yaml:"force_equal_timesteps"` // all particles adopt the global minimum step
}

// SofteningConfig groups the per-type gravitational softenings. Comoving
// values are clamped at run time so the physical softening never exceeds the
// MaxPhys entry (0 = no cap).
type SofteningConfig struct {
	Gas   float64 `yaml:"gas"`
	Halo  float64 `yaml:"halo"`
	Disk  float64 `yaml:"disk"`
	Bulge float64 `yaml:"bulge"`
	Stars float64 `yaml:"stars"`
	Bndry float64 `yaml:"bndry"`

	GasMaxPhys   float64 `yaml:"gas_max_phys"`
	HaloMaxPhys  float64 `yaml:"halo_max_phys"`
	DiskMaxPhys  float64 `yaml:"disk_max_phys"`
	BulgeMaxPhys float64 `yaml:"bulge_max_phys"`
	StarsMaxPhys float64 `yaml:"stars_max_phys"`
	BndryMaxPhys float64 `yaml:"bndry_max_phys"`

	AdaptiveGravsoftForGas bool    `yaml:"adaptive_gravsoft_for_gas"` // gas uses Hsml/2.8 instead of the fixed table entry
	MinGasHsmlFractional   float64 `yaml:"min_gas_hsml_fractional"`   // MinGasHsml = frac * ForceSoftening[gas]
}

// Comoving returns the configured comoving softening for a particle type.
func (sc *SofteningConfig) Comoving(ptype int) float64 {
	switch ptype {
	case TypeGas:
		return sc.Gas
	case TypeHalo:
		return sc.Halo
	case TypeDisk:
		return sc.Disk
	case TypeBulge:
		return sc.Bulge
	case TypeStars:
		return sc.Stars
	default:
		return sc.Bndry
	}
}

// MaxPhys returns the physical softening cap for a particle type (0 = none).
func (sc *SofteningConfig) MaxPhys(ptype int) float64 {
	switch ptype {
	case TypeGas:
		return sc.GasMaxPhys
	case TypeHalo:
		return sc.HaloMaxPhys
	case TypeDisk:
		return sc.DiskMaxPhys
	case TypeBulge:
		return sc.BulgeMaxPhys
	case TypeStars:
		return sc.StarsMaxPhys
	default:
		return sc.BndryMaxPhys
	}
}

// HydroConfig groups the SPH entropy-integration parameters.
type HydroConfig struct {
	Gamma                 float64 `yaml:"gamma"`                   // adiabatic index (default 5/3)
	MaxGasVel             float64 `yaml:"max_gas_vel"`             // velocity cap in internal units (0 = uncapped)
	MinEgySpec            float64 `yaml:"min_egy_spec"`            // minimum specific internal energy (0 = no floor)
	DensityIndependentSph bool    `yaml:"density_independent_sph"` // pressure-entropy formulation (uses EgyWtDensity)
}

// PMConfig groups the long-range (particle-mesh) step parameters.
type PMConfig struct {
	Asmth                 float64 `yaml:"asmth"`                    // mesh smoothing scale in cells (default 1.25)
	Nmesh                 int     `yaml:"nmesh"`                    // PM grid resolution per dimension
	BoxSize               float64 `yaml:"box_size"`                 // comoving box side length
	MaxRMSDisplacementFac float64 `yaml:"max_rms_displacement_fac"` // f_rms of the displacement criterion (default 0.125)
	FastParticleType      int     `yaml:"fast_particle_type"`       // type excluded from the rms bound (e.g. neutrinos)
}

// FeatureFlags groups the runtime toggles of the integrator.
type FeatureFlags struct {
	TreeGravOn      bool `yaml:"tree_grav_on"`      // short-range gravity contributes to the step criterion
	StarformationOn bool `yaml:"starformation_on"`  // fold gas+stars+BH into the baryon bucket of the rms bound
	BlackHolesOn    bool `yaml:"black_holes_on"`    // honour BH accretion limits on the timestep
	LightconeOn     bool `yaml:"lightcone_on"`      // notify the lightcone on every global time update
	MakeGlassFile   bool `yaml:"make_glass_file"`   // glass inversion mode (handled outside the integrator)
	DebugChecks     bool `yaml:"debug_checks"`      // kick-time consistency checks on every short-range kick
}

// Config is the full, immutable configuration of a run. It is validated once
// and then shared read-only by all workers.
type Config struct {
	Time      TimeIntegrationConfig `yaml:"time"`
	Cosmology CosmologyConfig       `yaml:"cosmology"`
	Softening SofteningConfig       `yaml:"softening"`
	Hydro     HydroConfig           `yaml:"hydro"`
	PM        PMConfig              `yaml:"pm"`
	Flags     FeatureFlags          `yaml:"flags"`

	// NumWorkers bounds the fan-out of the particle loops. 0 means one worker
	// per CPU.
	NumWorkers int `yaml:"num_workers"`
}

// DefaultConfig returns a configuration with the customary accuracy settings.
// Cosmology, box and softenings still have to be filled in by the caller.
func DefaultConfig() Config {
	return Config{
		Time: TimeIntegrationConfig{
			ErrTolIntAccuracy: 0.025,
			CourantFac:        0.15,
			MaxSizeTimestep:   0.1,
		},
		Hydro: HydroConfig{Gamma: 5.0 / 3.0},
		PM: PMConfig{
			Asmth:                 1.25,
			MaxRMSDisplacementFac: 0.125,
			FastParticleType:      -1,
		},
		Flags: FeatureFlags{TreeGravOn: true},
	}
}

// Validate rejects configurations the integrator cannot run meaningfully.
func (c *Config) Validate() error {
	if c.Time.TimeBegin <= 0 {
		return fmt.Errorf("time_begin must be > 0, got %g", c.Time.TimeBegin)
	}
	if c.Time.TimeMax <= c.Time.TimeBegin {
		return fmt.Errorf("time_max (%g) must exceed time_begin (%g)", c.Time.TimeMax, c.Time.TimeBegin)
	}
	if c.Time.ErrTolIntAccuracy <= 0 {
		return fmt.Errorf("err_tol_int_accuracy must be > 0, got %g", c.Time.ErrTolIntAccuracy)
	}
	if c.Time.CourantFac <= 0 {
		return fmt.Errorf("courant_fac must be > 0, got %g", c.Time.CourantFac)
	}
	if c.Time.MaxSizeTimestep <= 0 {
		return fmt.Errorf("max_size_timestep must be > 0, got %g", c.Time.MaxSizeTimestep)
	}
	if c.Time.MinSizeTimestep < 0 {
		return fmt.Errorf("min_size_timestep must be >= 0, got %g", c.Time.MinSizeTimestep)
	}
	if c.Hydro.Gamma <= 1 {
		return fmt.Errorf("gamma must be > 1, got %g", c.Hydro.Gamma)
	}
	if c.PM.Nmesh > 0 && c.PM.BoxSize <= 0 {
		return fmt.Errorf("box_size must be > 0 when nmesh is set, got %g", c.PM.BoxSize)
	}
	if c.PM.MaxRMSDisplacementFac <= 0 {
		return fmt.Errorf("max_rms_displacement_fac must be > 0, got %g", c.PM.MaxRMSDisplacementFac)
	}
	// Gas (and, under star formation, all baryonic species) anchors bucket 0
	// of the rms-displacement bound. Declaring that bucket "fast" would drop
	// the baryons from the long-range step bound altogether.
	if c.PM.FastParticleType == TypeGas {
		return fmt.Errorf("fast_particle_type must not be %d (baryons)", TypeGas)
	}
	if err := c.Cosmology.validate(); err != nil {
		return err
	}
	return nil
}
