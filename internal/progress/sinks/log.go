package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/epg-crawler/internal/progress"
)

// LogSink emits reports as structured logs. It stands in for the mail sink
// when no recipient is configured.
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

// Name implements progress.Sink.
func (s *LogSink) Name() string { return "log" }

// Deliver logs the whole report as one entry.
func (s *LogSink) Deliver(_ context.Context, report progress.Report) error {
	s.logger.Info("run report",
		zap.String("run_id", report.RunID),
		zap.String("source", report.Source),
		zap.Strings("lines", report.Lines),
	)
	return nil
}
