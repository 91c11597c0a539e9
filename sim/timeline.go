// sim/timeline.go
//
// The integer timeline. The whole run spans TimeBase ticks mapped
// logarithmically onto [TimeBegin, TimeMax]; every step size is a
// power-of-two tick count so that step boundaries of different bins nest.
package sim

import (
	"math"
	"math/bits"
	"sync"
)

const (
	// TimeBaseLog2 fixes the resolution of the integer clock.
	TimeBaseLog2 = 29
	// TimeBase is the number of ticks spanning the full run. Bits above
	// TimeBaseLog2 in a Ti value carry the snapshot counter.
	TimeBase Ti = 1 << TimeBaseLog2
	// TimeBins is the number of power-of-two step classes.
	TimeBins = 30
)

// tiPair keys the kick-factor memo by interval endpoints.
type tiPair struct{ t0, t1 Ti }

// Timeline converts between ticks and logarithmic scale factor and evaluates
// the cosmological kick factors over tick intervals. The factor integrals are
// memoized by endpoint pair: the velocity predictor re-requests the same
// interval once per neighbour interaction, and recomputing the
// quadrature each time doubles the cost of the kick phase.
type Timeline struct {
	logTimeBegin float64
	dlogaTotal   float64 // log(TimeMax) - log(TimeBegin)
	gamma        float64
	cosmo        *CosmologyConfig

	fatal func(code int, format string, args ...any)

	mu        sync.RWMutex
	gravMemo  map[tiPair]float64
	hydroMemo map[tiPair]float64
}

// NewTimeline builds the tick mapping for the configured run interval.
func NewTimeline(cfg *Config, fatal func(code int, format string, args ...any)) *Timeline {
	return &Timeline{
		logTimeBegin: math.Log(cfg.Time.TimeBegin),
		dlogaTotal:   math.Log(cfg.Time.TimeMax) - math.Log(cfg.Time.TimeBegin),
		gamma:        cfg.Hydro.Gamma,
		cosmo:        &cfg.Cosmology,
		fatal:        fatal,
		gravMemo:     make(map[tiPair]float64),
		hydroMemo:    make(map[tiPair]float64),
	}
}

// DlogaFromDti converts a tick count to its span in log scale factor.
func (tl *Timeline) DlogaFromDti(dti Ti) float64 {
	return tl.dlogaTotal * float64(dti) / float64(TimeBase)
}

// DtiFromDloga converts a log-scale-factor span to ticks. The conversion is
// the exact inverse of DlogaFromDti on integer inputs. Results outside the
// representable tick range are fatal.
func (tl *Timeline) DtiFromDloga(dloga float64) Ti {
	raw := dloga / tl.dlogaTotal * float64(TimeBase)
	if math.IsNaN(raw) || raw >= math.MaxInt64/4 {
		tl.fatal(1, "tick conversion overflow: dloga=%g", dloga)
	}
	return Ti(math.Round(raw))
}

// DlogaForBin returns the log-scale-factor span of one step of bin b.
func (tl *Timeline) DlogaForBin(b int) float64 {
	return tl.DlogaFromDti(Ti(1) << uint(b))
}

// LogaFromTi returns log(a) at an (unmasked) tick of the current run.
func (tl *Timeline) LogaFromTi(ti Ti) float64 {
	return tl.logTimeBegin + tl.dlogaTotal*float64(maskTi(ti))/float64(TimeBase)
}

// AFromTi returns the scale factor at a tick.
func (tl *Timeline) AFromTi(ti Ti) float64 { return math.Exp(tl.LogaFromTi(ti)) }

// KickTi returns the kick reference tick of a step: its integer midpoint.
// Kicking at midpoints is what makes the leapfrog time-reversible and
// second-order.
func KickTi(start, step Ti) Ti { return start + step/2 }

// RoundDownPowerOfTwo returns the largest power of two not exceeding dti,
// or 0 for non-positive input.
func RoundDownPowerOfTwo(dti Ti) Ti {
	if dti <= 0 {
		return 0
	}
	return Ti(1) << uint(bits.Len64(uint64(dti))-1)
}

// TimestepBin returns the bin whose step equals the power-of-two dti.
// Zero maps to bin 0.
func TimestepBin(dti Ti) int {
	if dti <= 0 {
		return 0
	}
	return bits.Len64(uint64(dti)) - 1
}

const kickQuadraturePanels = 128

// GravKickFactor returns the integral of da/(a^2 H) over the tick interval
// [t0, t1]. Reversed intervals yield the negated integral.
func (tl *Timeline) GravKickFactor(t0, t1 Ti) float64 {
	return tl.kickFactor(t0, t1, tl.gravMemo, func(loga float64) float64 {
		a := math.Exp(loga)
		return 1 / (a * tl.cosmo.HubbleFunction(a))
	})
}

// HydroKickFactor returns the integral of da/(a^{3(gamma-1)+1} H) over the
// tick interval [t0, t1].
func (tl *Timeline) HydroKickFactor(t0, t1 Ti) float64 {
	return tl.kickFactor(t0, t1, tl.hydroMemo, func(loga float64) float64 {
		a := math.Exp(loga)
		return 1 / (math.Pow(a, 3*(tl.gamma-1)) * tl.cosmo.HubbleFunction(a))
	})
}

func (tl *Timeline) kickFactor(t0, t1 Ti, memo map[tiPair]float64, integrand func(float64) float64) float64 {
	if t0 == t1 {
		return 0
	}
	if t0 > t1 {
		return -tl.kickFactor(t1, t0, memo, integrand)
	}
	key := tiPair{t0, t1}
	tl.mu.RLock()
	v, ok := memo[key]
	tl.mu.RUnlock()
	if ok {
		return v
	}
	// Integrate in dloga: da = a dloga absorbs one power of a.
	v = simpson(integrand, tl.LogaFromTi(t0), tl.LogaFromTi(t1), kickQuadraturePanels)
	tl.mu.Lock()
	memo[key] = v
	tl.mu.Unlock()
	return v
}
