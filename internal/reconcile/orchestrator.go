package reconcile

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"grocerysync/metrics"
	"grocerysync/pkg/csvio"
	"grocerysync/pkg/logger"
)

const DefaultChunkSize = 100

// Orchestrator runs row functions in chunks. Chunks run one after another; the rows of a chunk
// run concurrently and the next chunk starts only once every row of the current one settled.
type Orchestrator struct {
	Job        string
	ChunkSize  int
	RowTimeout time.Duration
	Log        logger.Logger
	Counters   *metrics.RunCounters
}

func NewOrchestrator(job string, chunkSize int, rowTimeout time.Duration, log logger.Logger) *Orchestrator {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{
		Job:        job,
		ChunkSize:  chunkSize,
		RowTimeout: rowTimeout,
		Log:        log,
		Counters:   &metrics.RunCounters{},
	}
}

// RowFunc processes one row. It reports problems through the Result and never aborts the run.
type RowFunc[R any] func(ctx context.Context, row R) Result

// Run processes rows and returns the summary with results in input order. A cancelled context
// stops before the next chunk; rows that never ran are reported as Failed.
func Run[R any](ctx context.Context, o *Orchestrator, rows []R, fn RowFunc[R]) Summary {
	results := make([]Result, len(rows))
	chunks := Chunk(rows, o.ChunkSize)

	offset := 0
	for n, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			for i := offset; i < len(rows); i++ {
				results[i] = Result{Outcome: Failed, Err: fmt.Errorf("not started: %w", err)}
			}
			o.Log.Warn("run cancelled", "job", o.Job, "chunk", n+1, "of", len(chunks), "error", err)
			break
		}

		started := time.Now()
		var g errgroup.Group
		for i, row := range chunk {
			pos := offset + i
			row := row
			g.Go(func() error {
				results[pos] = runRow(ctx, o, row, fn)
				return nil
			})
		}
		_ = g.Wait()
		metrics.RecordChunk(o.Job, time.Since(started))

		o.Log.Debug("chunk settled", "job", o.Job, "chunk", n+1, "of", len(chunks), "rows", len(chunk),
			"processed", o.Counters.ProcessedCount.Load())
		offset += len(chunk)
	}

	summary := NewSummary()
	for _, r := range results {
		summary.Add(r)
	}
	return summary
}

// identified rows keep their key and line when the row function panics.
type identified interface {
	Identity() (key string, line int)
}

func identify(row any) (string, int) {
	switch r := row.(type) {
	case identified:
		return r.Identity()
	case csvio.Row:
		return r.Cell(0), r.Line
	case string:
		return r, 0
	case interface{ GetObjectID() string }:
		return r.GetObjectID(), 0
	}
	return "", 0
}

func runRow[R any](ctx context.Context, o *Orchestrator, row R, fn RowFunc[R]) (result Result) {
	o.Counters.InFlightRows.Add(1)
	defer func() {
		if p := recover(); p != nil {
			key, line := identify(row)
			result = Result{Key: key, Line: line, Outcome: Failed, Err: fmt.Errorf("panic: %v", p)}
		}
		o.Counters.InFlightRows.Add(-1)
		o.count(result)
	}()

	if o.RowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.RowTimeout)
		defer cancel()
	}
	return fn(ctx, row)
}

func (o *Orchestrator) count(r Result) {
	o.Counters.ProcessedCount.Add(1)
	switch {
	case r.Outcome == Created:
		o.Counters.CreatedCount.Add(1)
	case r.Outcome == Updated:
		o.Counters.UpdatedCount.Add(1)
	case r.Outcome == Deactivated:
		o.Counters.DeactivatedCount.Add(1)
	case r.Outcome.Skipped():
		o.Counters.SkippedCount.Add(1)
	case r.Outcome == Failed:
		o.Counters.FailedCount.Add(1)
	}
	metrics.RecordRow(o.Job, r.Outcome.String())

	switch {
	case r.Outcome.Skipped():
		o.Log.Warn("row skipped", "job", o.Job, "key", r.Key, "line", r.Line, "outcome", r.Outcome.String(), "error", r.Err)
	case r.Outcome == Failed:
		o.Log.Error("row failed", "job", o.Job, "key", r.Key, "line", r.Line, "error", r.Err)
	}
}
