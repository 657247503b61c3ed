package sinks

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/crawler"
	"github.com/JakeFAU/sitepdf/internal/progress"
)

// CounterStore accumulates live page counters for running jobs.
type CounterStore interface {
	AddCounters(ctx context.Context, jobID string, delta crawler.JobCounters) error
}

// CounterSink folds page events into per-job counter deltas so job status
// reflects progress while a crawl runs.
type CounterSink struct {
	store  CounterStore
	logger *zap.Logger
}

// NewCounterSink constructs a CounterSink.
func NewCounterSink(store CounterStore, logger *zap.Logger) *CounterSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CounterSink{store: store, logger: logger}
}

// Consume implements progress.Sink. Unknown jobs, such as synchronous crawls
// that never had a job record, are skipped.
func (s *CounterSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	deltas := make(map[string]*crawler.JobCounters)
	var order []string
	for _, evt := range batch {
		if evt.Stage != progress.StagePageDone && evt.Stage != progress.StagePageFailed {
			continue
		}
		delta, ok := deltas[evt.JobID]
		if !ok {
			delta = &crawler.JobCounters{}
			deltas[evt.JobID] = delta
			order = append(order, evt.JobID)
		}
		if evt.Stage == progress.StagePageDone {
			delta.PagesCaptured++
		} else {
			delta.PagesFailed++
		}
	}
	for _, jobID := range order {
		err := s.store.AddCounters(ctx, jobID, *deltas[jobID])
		switch {
		case err == nil:
		case errors.Is(err, crawler.ErrJobNotFound):
			s.logger.Debug("progress for unknown job", zap.String("job_id", jobID))
		default:
			return fmt.Errorf("add counters for %s: %w", jobID, err)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *CounterSink) Close(context.Context) error {
	return nil
}
