// sim/sync.go
package sim

import "github.com/sirupsen/logrus"

// FindNextKick returns the next tick at which any populated bin reaches a
// step boundary, agreed across all ranks. Snapshot bits ride along
// untouched: they are masked off before the scan and re-applied to the
// result.
func (s *Simulator) FindNextKick(tiCurrent Ti) Ti {
	snapBits := tiCurrent &^ (2*TimeBase - 1)
	ti := maskTi(tiCurrent)

	next := TimeBase
	// Bin 0 holds particles that still need a step assigned; they force an
	// immediate sync.
	if s.Bins.TimeBinCount[0].Load() > 0 {
		next = ti
	}
	for b := 1; b < TimeBins; b++ {
		if s.Bins.TimeBinCount[b].Load() == 0 {
			continue
		}
		step := Ti(1) << uint(b)
		if candidate := (ti/step)*step + step; candidate < next {
			next = candidate
		}
	}

	next = s.comm.AllreduceMinInt64(next + snapBits)
	logrus.Debugf("[ti %09d] next kick at %d", ti, maskTi(next))
	return next
}
