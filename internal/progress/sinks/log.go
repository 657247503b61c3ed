package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitepdf/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wraps logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume implements progress.Sink.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StagePageDone, progress.StagePageFailed:
			fields = append(fields,
				zap.String("url", evt.URL),
				zap.Int("ordinal", evt.Ordinal),
				zap.Int("depth", evt.Depth),
				zap.String("status_class", string(evt.StatusClass)),
			)
		case progress.StageStepDone:
			fields = append(fields, zap.String("step", evt.Step))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
