// sim/cosmology.go
package sim

import (
	"fmt"
	"math"
)

// CosmologyConfig holds the background cosmology of the run, in internal
// units (G and H0 are supplied explicitly rather than derived from CGS).
type CosmologyConfig struct {
	Omega0      float64 `yaml:"omega0"`       // total matter density parameter
	OmegaLambda float64 `yaml:"omega_lambda"` // cosmological constant density parameter
	OmegaBaryon float64 `yaml:"omega_baryon"` // baryon density parameter
	HubbleParam float64 `yaml:"hubble_param"` // little h, for bookkeeping only
	H0          float64 `yaml:"h0"`           // Hubble constant in internal units
	G           float64 `yaml:"g"`            // gravitational constant in internal units
}

func (cc *CosmologyConfig) validate() error {
	if cc.Omega0 <= 0 {
		return fmt.Errorf("omega0 must be > 0, got %g", cc.Omega0)
	}
	if cc.OmegaBaryon < 0 || cc.OmegaBaryon > cc.Omega0 {
		return fmt.Errorf("omega_baryon must lie in [0, omega0], got %g", cc.OmegaBaryon)
	}
	if cc.H0 <= 0 {
		return fmt.Errorf("h0 must be > 0, got %g", cc.H0)
	}
	if cc.G <= 0 {
		return fmt.Errorf("g must be > 0, got %g", cc.G)
	}
	return nil
}

// OmegaCDM returns the cold-dark-matter density parameter.
func (cc *CosmologyConfig) OmegaCDM() float64 { return cc.Omega0 - cc.OmegaBaryon }

// OmegaK returns the curvature density parameter.
func (cc *CosmologyConfig) OmegaK() float64 { return 1 - cc.Omega0 - cc.OmegaLambda }

// HubbleFunction evaluates H(a) for the configured background.
func (cc *CosmologyConfig) HubbleFunction(a float64) float64 {
	return cc.H0 * math.Sqrt(cc.Omega0/(a*a*a)+cc.OmegaK()/(a*a)+cc.OmegaLambda)
}

// RhoCrit returns the critical density 3 H0^2 / (8 pi G) in internal units.
func (cc *CosmologyConfig) RhoCrit() float64 {
	return 3 * cc.H0 * cc.H0 / (8 * math.Pi * cc.G)
}

// simpson integrates f over [x0, x1] with a fixed even panel count. The kick
// factors are smooth in loga, so a modest fixed order is plenty and keeps the
// result deterministic across ranks.
func simpson(f func(float64) float64, x0, x1 float64, n int) float64 {
	if x1 == x0 {
		return 0
	}
	h := (x1 - x0) / float64(n)
	sum := f(x0) + f(x1)
	for i := 1; i < n; i++ {
		x := x0 + float64(i)*h
		if i%2 == 1 {
			sum += 4 * f(x)
		} else {
			sum += 2 * f(x)
		}
	}
	return sum * h / 3
}
