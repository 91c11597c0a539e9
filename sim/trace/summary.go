// trace/summary.go
package trace

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Summary condenses a trace into run-level aggregates.
type Summary struct {
	SyncPoints   int     `yaml:"sync_points"`
	PMBoundaries int     `yaml:"pm_boundaries"`
	TotalKicks   int64   `yaml:"total_kicks"`
	MaxActive    int     `yaml:"max_active"`
	FinalTi      int64   `yaml:"final_ti"`
	FinalA       float64 `yaml:"final_a"`
}

// Summarize folds the records into a Summary.
func (t *Trace) Summarize() Summary {
	var s Summary
	s.SyncPoints = len(t.Records)
	for _, r := range t.Records {
		if r.PMBoundary {
			s.PMBoundaries++
		}
		s.TotalKicks += int64(r.NumActive)
		if r.NumActive > s.MaxActive {
			s.MaxActive = r.NumActive
		}
	}
	if n := len(t.Records); n > 0 {
		s.FinalTi = t.Records[n-1].Ti
		s.FinalA = t.Records[n-1].A
	}
	return s
}

// WriteSummary writes the yaml-encoded summary to w.
func (t *Trace) WriteSummary(w io.Writer) error {
	data, err := yaml.Marshal(t.Summarize())
	if err != nil {
		return fmt.Errorf("encoding trace summary: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing trace summary: %w", err)
	}
	return nil
}
