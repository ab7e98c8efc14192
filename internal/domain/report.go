package domain

import "time"

// EntityReport summarizes one entity within a stage run.
type EntityReport struct {
	Entity     string
	Enumerated int
	Processed  int
	Duplicates int
	Malformed  int
	Failed     int
	Fetched    int
	Err        error
}

// HasFailures reports whether the entity aborted or had a retryable record failure.
func (r EntityReport) HasFailures() bool {
	return r.Err != nil || r.Failed > 0
}

// StageReport is the coarse outcome of one stage run.
type StageReport struct {
	Stage          Stage
	Entities       []EntityReport
	RowsReconciled int64
	Duration       time.Duration
	Err            error
}

// Failed reports whether the run should be surfaced as a failure. Malformed
// records are diagnostics and do not fail a run.
func (r StageReport) Failed() bool {
	if r.Err != nil {
		return true
	}
	for _, e := range r.Entities {
		if e.HasFailures() {
			return true
		}
	}
	return false
}

// Totals sums the per-entity counters.
func (r StageReport) Totals() EntityReport {
	var t EntityReport
	for _, e := range r.Entities {
		t.Enumerated += e.Enumerated
		t.Processed += e.Processed
		t.Duplicates += e.Duplicates
		t.Malformed += e.Malformed
		t.Failed += e.Failed
		t.Fetched += e.Fetched
	}
	return t
}
