// Package trace records one entry per synchronization point so a run can be
// inspected or compared after the fact without replaying it.
package trace

// Record captures the state of one sync point.
type Record struct {
	Ti         int64   `yaml:"ti"`          // integer clock at the sync point
	A          float64 `yaml:"a"`           // scale factor at the sync point
	NumActive  int     `yaml:"num_active"`  // length of the active list
	PMBoundary bool    `yaml:"pm_boundary"` // whether the mesh kick fired here
	PMStep     int64   `yaml:"pm_step"`     // mesh cadence after this sync
}

// Trace is an append-only sequence of sync-point records.
type Trace struct {
	Records []Record
}

// Append adds one record.
func (t *Trace) Append(r Record) {
	t.Records = append(t.Records, r)
}

// Len returns the number of recorded sync points.
func (t *Trace) Len() int { return len(t.Records) }
