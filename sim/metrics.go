// Tracks integration-wide accounting for final reporting.

package sim

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Metrics aggregates statistics about the integration for final reporting.
// Useful for judging how well the bin hierarchy is paying off and for
// debugging behavior over time.
type Metrics struct {
	Syncs        int64 // number of sync points processed
	ShortKicks   int64 // short-range kicks applied
	LongKicks    int64 // long-range (mesh) kicks applied, counted per particle
	PMBoundaries int64 // long-range boundaries crossed
	ForceUpdates int64 // sum of active-particle counts over all syncs
	BadSteps     int64 // bad step sizes detected before termination

	// ActivePerSync records the active-list length at each sync point.
	ActivePerSync []float64

	// WalltimeByTag accumulates phase durations reported by the driver.
	WalltimeByTag map[string]float64
}

func NewMetrics() *Metrics {
	return &Metrics{WalltimeByTag: make(map[string]float64)}
}

// RecordSync accounts one sync point with the given active-list length.
func (m *Metrics) RecordSync(numActive int) {
	m.Syncs++
	m.ForceUpdates += int64(numActive)
	m.ActivePerSync = append(m.ActivePerSync, float64(numActive))
}

// Print displays aggregated metrics at the end of the integration.
func (m *Metrics) Print() {
	fmt.Println("=== Integration Metrics ===")
	fmt.Printf("Sync points          : %d\n", m.Syncs)
	fmt.Printf("Short-range kicks    : %d\n", m.ShortKicks)
	fmt.Printf("Long-range kicks     : %d\n", m.LongKicks)
	fmt.Printf("PM boundaries        : %d\n", m.PMBoundaries)
	fmt.Printf("Force updates        : %d\n", m.ForceUpdates)
	if m.Syncs > 0 && len(m.ActivePerSync) > 0 {
		sorted := append([]float64(nil), m.ActivePerSync...)
		sort.Float64s(sorted)
		fmt.Printf("Active per sync      : mean %.1f, median %.1f, p90 %.1f\n",
			stat.Mean(sorted, nil),
			stat.Quantile(0.5, stat.Empirical, sorted, nil),
			stat.Quantile(0.9, stat.Empirical, sorted, nil))
	}
	for tag, secs := range m.WalltimeByTag {
		fmt.Printf("Walltime %-12s: %.3fs\n", tag, secs)
	}
}
