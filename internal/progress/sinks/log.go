package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/progress"
)

// LogSink emits structured logs for debugging admission streams.
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

// Consume logs each event in the batch using structured fields. Errors log at
// warn, everything else at debug.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("stage", string(evt.Stage)),
			zap.String("host", evt.Host),
			zap.String("url", evt.URL),
			zap.Int("depth", evt.Depth),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Reason != "" {
			fields = append(fields, zap.String("reason", string(evt.Reason)))
		}
		if evt.Item != nil {
			fields = append(fields, zap.String("item_id", evt.Item.ID))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageAdmitError {
			s.logger.Warn("admission event", fields...)
			continue
		}
		s.logger.Debug("admission event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
