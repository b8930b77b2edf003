package crawler

import (
	"context"
	"io"
	"time"
)

// Gateway persists the crawled guide and the run bookkeeping.
type Gateway interface {
	ListEnabledGenres(ctx context.Context) ([]Genre, error)
	IsChannelSkipped(ctx context.Context, number int, name string) (bool, error)
	UpsertChannel(ctx context.Context, genreID int, channel Channel, logo []byte) error
	ArchiveGenreJSON(ctx context.Context, genreID int, raw string) error
	ArchiveChannelDayJSON(ctx context.Context, channelID int64, dayOffset int, raw string) error
	UpsertEvent(ctx context.Context, event Event, channelID int64, start time.Time, description string) error
	PreRunMaintenance(ctx context.Context) error
	PostRunMaintenance(ctx context.Context) error
	AppendRunLog(ctx context.Context, entry RunLog) error
	IntParam(ctx context.Context, name string) (int, error)
	StringParam(ctx context.Context, name string) (string, error)
}

// Fetcher retrieves remote resources, one attempt per call.
type Fetcher interface {
	// FetchText returns the body as text. When prefix and suffix are set the
	// result runs from the first prefix through the last suffix, inclusive.
	FetchText(ctx context.Context, url, prefix, suffix string) (string, error)
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Notifier delivers a plain-text message to one or more recipients.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NotifierFactory builds a Notifier once credentials are known.
type NotifierFactory func(creds MailCredentials) (Notifier, error)

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// DescriptionCache remembers event descriptions across runs.
type DescriptionCache interface {
	Get(ctx context.Context, eventID int64) (string, bool, error)
	Set(ctx context.Context, eventID int64, description string) error
}

// Recorder receives crawl metrics.
type Recorder interface {
	ObserveFetch(resource, outcome string)
	ObserveChannel(outcome string)
	ObserveEventUpserted()
	ObserveRun(status string, duration time.Duration)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

// ObserveFetch implements Recorder.
func (NopRecorder) ObserveFetch(string, string) {}

// ObserveChannel implements Recorder.
func (NopRecorder) ObserveChannel(string) {}

// ObserveEventUpserted implements Recorder.
func (NopRecorder) ObserveEventUpserted() {}

// ObserveRun implements Recorder.
func (NopRecorder) ObserveRun(string, time.Duration) {}
