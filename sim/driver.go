// sim/driver.go
//
// The reference driver loop. One iteration per sync point: find the next
// kick tick, advance the global clock, rebuild the active list, drift, run
// the force kernels, then kick. Snapshot syncs use the half-kick protocol so
// the written velocities are synchronous with positions.
package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cosmo-sim/cosmo-sim/sim/trace"
)

// RunOptions controls the reference driver.
type RunOptions struct {
	// SnapshotEvery writes a snapshot every n sync points (0 = never).
	SnapshotEvery int
	// Trace, when non-nil, receives one record per sync point.
	Trace *trace.Trace
}

// Run integrates from the current clock to the end of the timeline.
func (s *Simulator) Run(opts RunOptions) error {
	snapnum := 0
	for maskTi(s.TiCurrent) < TimeBase {
		s.hooks.Walltime("find_next_kick")
		next := s.FindNextKick(s.TiCurrent)
		s.TiCurrent = next
		ti := maskTi(next)

		a := s.cfg.Time.TimeMax
		if ti < TimeBase {
			a = s.tl.AFromTi(ti)
		}
		s.SetGlobalTime(a)

		s.Bins.UpdateActiveTimeBins(ti)
		s.Bins.RebuildActiveList(s.P)
		s.Metrics.RecordSync(s.Bins.NumActiveParticle())
		s.hooks.Walltime("timebins")

		if err := s.hooks.Drift.Drift(s.P, next); err != nil {
			return fmt.Errorf("drift to tick %d: %w", ti, err)
		}
		pmBoundary := s.IsPMTimestep(next)
		if pmBoundary {
			if err := s.hooks.Forces.ComputeLongRange(s.P); err != nil {
				return fmt.Errorf("long-range forces at tick %d: %w", ti, err)
			}
		}
		if err := s.hooks.Forces.ComputeShortRange(s.P, s.Bins.ActiveParticle); err != nil {
			return fmt.Errorf("short-range forces at tick %d: %w", ti, err)
		}
		s.hooks.Walltime("forces")

		snapshotSync := opts.SnapshotEvery > 0 && s.Metrics.Syncs%int64(opts.SnapshotEvery) == 0
		if snapshotSync {
			// Close the steps with half-kicks, write, then reopen.
			if err := s.AdvanceAndFindTimesteps(true); err != nil {
				return err
			}
			if err := s.hooks.Snapshot.Save(snapnum, true); err != nil {
				return fmt.Errorf("snapshot %d: %w", snapnum, err)
			}
			snapnum++
			s.ApplyHalfKick()
		} else if err := s.AdvanceAndFindTimesteps(false); err != nil {
			return err
		}
		s.hooks.Walltime("kick")

		if opts.Trace != nil {
			opts.Trace.Append(trace.Record{
				Ti:         ti,
				A:          s.Time,
				NumActive:  s.Bins.NumActiveParticle(),
				PMBoundary: pmBoundary,
				PMStep:     s.PMStep,
			})
		}
		if ti >= TimeBase {
			break
		}
	}
	logrus.Infof("[ti %09d] integration finished at a=%.6f after %d sync points",
		maskTi(s.TiCurrent), s.Time, s.Metrics.Syncs)
	return nil
}
