package sinks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
	"github.com/JakeFAU/epg-crawler/internal/progress"
)

// MailSink sends reports through a Notifier. The subject is the report source.
type MailSink struct {
	notifier crawler.Notifier
	to       string
}

// NewMailSink addresses reports to the given recipients.
func NewMailSink(notifier crawler.Notifier, to string) *MailSink {
	return &MailSink{notifier: notifier, to: to}
}

// Name implements progress.Sink.
func (s *MailSink) Name() string { return "mail" }

// Deliver sends the report body.
func (s *MailSink) Deliver(ctx context.Context, report progress.Report) error {
	if err := s.notifier.Send(ctx, s.to, report.Source, report.Body()); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}
