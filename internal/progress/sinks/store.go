package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
	"github.com/JakeFAU/epg-crawler/internal/progress"
)

// RunLogWriter persists run records.
type RunLogWriter interface {
	AppendRunLog(ctx context.Context, entry crawler.RunLog) error
}

// StoreSink appends reports to the persistent run log.
type StoreSink struct {
	writer RunLogWriter
	clock  crawler.Clock
}

// NewStoreSink constructs a StoreSink for the provided writer.
func NewStoreSink(writer RunLogWriter, clock crawler.Clock) *StoreSink {
	return &StoreSink{writer: writer, clock: clock}
}

// Name implements progress.Sink.
func (s *StoreSink) Name() string { return "run log" }

// Deliver writes the report lines not yet persisted as one run log entry,
// numbered after the persisted ones.
func (s *StoreSink) Deliver(ctx context.Context, report progress.Report) error {
	if s == nil || s.writer == nil {
		return nil
	}
	skip := min(max(report.Persisted, 0), len(report.Lines))
	now := time.Now().UTC()
	if s.clock != nil {
		now = s.clock.Now()
	}
	entry := crawler.RunLog{
		RunID:     report.RunID,
		Source:    report.Source,
		FirstSeq:  skip + 1,
		Lines:     report.Lines[skip:],
		CreatedAt: now,
	}
	if err := s.writer.AppendRunLog(ctx, entry); err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}
