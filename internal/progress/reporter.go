package progress

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
)

// Reporter delivers a run record to the durable store first and to the
// notification sink second. Delivery failures never escape: a store failure
// is appended to the record so the notification still carries it.
type Reporter struct {
	store  Sink
	notify Sink
	logger *zap.Logger
}

// NewReporter wires the two sinks. Either may be nil.
func NewReporter(store, notify Sink, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{store: store, notify: notify, logger: logger}
}

// Deliver sends the record through both sinks in order.
func (r *Reporter) Deliver(ctx context.Context, runID, source string, record *Record) {
	if r.store != nil {
		report := Report{RunID: runID, Source: source, Lines: record.Lines(), Persisted: record.Persisted()}
		if err := r.store.Deliver(ctx, report); err != nil {
			rerr := &crawler.ReportingError{Sink: r.store.Name(), Err: err}
			record.Add(rerr.Error())
			r.logger.Error("run record not stored", zap.String("run_id", runID), zap.Error(rerr))
		}
	}
	if r.notify != nil {
		report := Report{RunID: runID, Source: source, Lines: record.Lines()}
		if err := r.notify.Deliver(ctx, report); err != nil {
			rerr := &crawler.ReportingError{Sink: r.notify.Name(), Err: err}
			r.logger.Error("run record not sent", zap.String("run_id", runID), zap.Error(rerr))
		}
	}
}
