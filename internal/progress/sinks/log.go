package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrapeforge/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields. Per-profile
// events go to debug so a long run does not flood info logs.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("project_id", evt.ProjectID),
			zap.String("stage", string(evt.Stage)),
			zap.String("platform", evt.Platform),
			zap.Int("percent", evt.Percent),
			zap.Int("scanned", evt.Scanned),
			zap.Int("found", evt.Found),
		}
		if evt.Current != "" {
			fields = append(fields, zap.String("current", evt.Current))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageProfile, progress.StageProgress:
			s.logger.Debug("progress event", fields...)
		default:
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
