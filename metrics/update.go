package metrics

import "sync/atomic"

// RunCounters are the live totals of a job run. Rows of one chunk update them concurrently.
type RunCounters struct {
	ProcessedCount   atomic.Int32
	CreatedCount     atomic.Int32
	UpdatedCount     atomic.Int32
	DeactivatedCount atomic.Int32
	SkippedCount     atomic.Int32
	FailedCount      atomic.Int32
	InFlightRows     atomic.Int32
}
