// cmd/params.go
package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cosmo-sim/cosmo-sim/sim"
)

// LoadParams reads a yaml parameter file on top of the built-in defaults.
// An empty path returns the demo configuration unchanged.
func LoadParams(path string) (sim.Config, error) {
	cfg := DemoConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading parameter file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing parameter file %s: %w", path, err)
	}
	return cfg, nil
}

// DemoConfig is a small LCDM box in internal units where G = H0 = 1.
func DemoConfig() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Time.TimeBegin = 0.1
	cfg.Time.TimeMax = 1.0
	cfg.Cosmology = sim.CosmologyConfig{
		Omega0:      0.308,
		OmegaLambda: 0.692,
		OmegaBaryon: 0.048,
		HubbleParam: 0.678,
		H0:          1.0,
		G:           1.0,
	}
	cfg.Softening = sim.SofteningConfig{
		Gas: 0.01, Halo: 0.01, Disk: 0.01, Bulge: 0.01, Stars: 0.01, Bndry: 0.01,
		MinGasHsmlFractional: 0.1,
	}
	cfg.PM = sim.PMConfig{
		Asmth:                 1.25,
		Nmesh:                 64,
		BoxSize:               10.0,
		MaxRMSDisplacementFac: 0.125,
		FastParticleType:      -1,
	}
	return cfg
}
