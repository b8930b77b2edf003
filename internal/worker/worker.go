// Package worker implements the crawl pass over genres, channels, days and
// events, with failures contained at the level above the failing call.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
	"github.com/JakeFAU/epg-crawler/internal/progress"
	"github.com/JakeFAU/epg-crawler/internal/progress/sinks"
)

// Parameter names read from persistence at run start.
const (
	ParamDayStart     = "DAY_START"
	ParamDayStop      = "DAY_STOP"
	ParamEmailFromUsr = "EMAIL_FROM_USR"
	ParamEmailFromPwd = "EMAIL_FROM_PWD"
	ParamEmailTo      = "EMAIL_TO"
)

const (
	startMessage = "PROCESS START"
	jsonType     = "application/json"
)

// Config controls Worker behavior.
type Config struct {
	ProcessName   string
	Endpoints     crawler.Endpoints
	Location      *time.Location
	MirrorPrefix  string
	ReportTimeout time.Duration
}

// Deps are the collaborators of a Worker. BlobStore, Cache, Notifiers and
// Recorder are optional.
type Deps struct {
	Gateway   crawler.Gateway
	Fetcher   crawler.Fetcher
	Notifiers crawler.NotifierFactory
	BlobStore crawler.BlobStore
	Cache     crawler.DescriptionCache
	Recorder  crawler.Recorder
	Clock     crawler.Clock
	IDGen     crawler.IDGenerator
}

// Worker runs crawl passes. A Worker runs one pass at a time.
type Worker struct {
	gateway   crawler.Gateway
	fetcher   crawler.Fetcher
	notifiers crawler.NotifierFactory
	blobStore crawler.BlobStore
	cache     crawler.DescriptionCache
	recorder  crawler.Recorder
	clock     crawler.Clock
	idGen     crawler.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// AbortError stops the main loop. It carries the position reached when the
// failure happened.
type AbortError struct {
	Cursor progress.Cursor
	Err    error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("crawl aborted: %v", e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// outcome is the result of processing one unit.
type outcome uint8

const (
	outcomeDone outcome = iota
	// outcomeEmpty means the source had no data for the unit.
	outcomeEmpty
	// outcomeFailed is contained by the caller.
	outcomeFailed
	// outcomeEscalated is contained one level further up.
	outcomeEscalated
)

type runParams struct {
	dayStart int
	dayStop  int
	creds    crawler.MailCredentials
}

// run is the state of one pass.
type run struct {
	id       string
	now      time.Time
	params   runParams
	record   *progress.Record
	cursor   *progress.Cursor
	counters crawler.Counters
	logger   *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProcessName == "" {
		cfg.ProcessName = "SkyEpg"
	}
	if cfg.Endpoints == (crawler.Endpoints{}) {
		cfg.Endpoints = crawler.DefaultEndpoints()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = time.Minute
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = crawler.NopRecorder{}
	}
	return &Worker{
		gateway:   deps.Gateway,
		fetcher:   deps.Fetcher,
		notifiers: deps.Notifiers,
		blobStore: deps.BlobStore,
		cache:     deps.Cache,
		recorder:  recorder,
		clock:     deps.Clock,
		idGen:     deps.IDGen,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run performs one crawl pass and always reports it. The returned error is
// an *AbortError when the main loop stopped early; the summary is complete
// either way.
func (w *Worker) Run(ctx context.Context) (crawler.Summary, error) {
	started := w.clock.Now()
	runID, idErr := w.idGen.NewID()
	if idErr != nil {
		runID = fmt.Sprintf("%s-%d", w.cfg.ProcessName, started.UnixNano())
	}
	r := &run{
		id:     runID,
		now:    started.In(w.cfg.Location),
		record: progress.NewRecord(),
		cursor: progress.NewCursor(),
		logger: w.logger.With(zap.String("run_id", runID)),
	}
	if idErr != nil {
		r.logger.Warn("run id generation failed, using fallback id", zap.Error(idErr))
	}
	r.logger.Info(startMessage)
	r.record.Add(startMessage)
	w.persistStart(ctx, r)

	var notify progress.Sink = sinks.NewLogSink(r.logger)
	var runErr error
	if err := w.begin(ctx, r, &notify); err != nil {
		runErr = err
	} else if err := w.crawl(ctx, r); err != nil {
		runErr = err
	}

	var abortErr *AbortError
	if runErr != nil {
		abortErr = &AbortError{Cursor: *r.cursor, Err: runErr}
		w.recordAbort(r, abortErr)
	}

	summary := w.finish(ctx, r, notify, started, abortErr)
	if abortErr != nil {
		return summary, abortErr
	}
	return summary, nil
}

// persistStart stores the start line before any crawl work. On success the
// final report only appends the lines that follow it.
func (w *Worker) persistStart(ctx context.Context, r *run) {
	store := sinks.NewStoreSink(w.gateway, w.clock)
	start := progress.Report{RunID: r.id, Source: w.cfg.ProcessName, Lines: r.record.Lines()}
	if err := store.Deliver(ctx, start); err != nil {
		r.logger.Error("start line not stored",
			zap.Error(&crawler.ReportingError{Sink: store.Name(), Err: err}))
		return
	}
	r.record.MarkPersisted()
}

func (w *Worker) begin(ctx context.Context, r *run, notify *progress.Sink) error {
	params, err := w.loadParams(ctx)
	if err != nil {
		return err
	}
	r.params = params
	*notify = w.notificationSink(params.creds, r.logger)

	start := progress.Report{RunID: r.id, Source: w.cfg.ProcessName, Lines: []string{startMessage}}
	if err := (*notify).Deliver(ctx, start); err != nil {
		r.logger.Error("start notification failed",
			zap.Error(&crawler.ReportingError{Sink: (*notify).Name(), Err: err}))
	}

	return w.gateway.PreRunMaintenance(ctx)
}

func (w *Worker) loadParams(ctx context.Context) (runParams, error) {
	var (
		params runParams
		err    error
	)
	if params.dayStart, err = w.gateway.IntParam(ctx, ParamDayStart); err != nil {
		return runParams{}, err
	}
	if params.dayStop, err = w.gateway.IntParam(ctx, ParamDayStop); err != nil {
		return runParams{}, err
	}
	if params.creds.Username, err = w.optionalParam(ctx, ParamEmailFromUsr); err != nil {
		return runParams{}, err
	}
	if params.creds.Password, err = w.optionalParam(ctx, ParamEmailFromPwd); err != nil {
		return runParams{}, err
	}
	if params.creds.To, err = w.optionalParam(ctx, ParamEmailTo); err != nil {
		return runParams{}, err
	}
	return params, nil
}

func (w *Worker) optionalParam(ctx context.Context, name string) (string, error) {
	value, err := w.gateway.StringParam(ctx, name)
	if errors.Is(err, crawler.ErrParamNotFound) {
		return "", nil
	}
	return value, err
}

func (w *Worker) notificationSink(creds crawler.MailCredentials, logger *zap.Logger) progress.Sink {
	if creds.To == "" || w.notifiers == nil {
		logger.Info("mail notifications disabled")
		return sinks.NewLogSink(logger)
	}
	notifier, err := w.notifiers(creds)
	if err != nil {
		logger.Error("notifier init failed", zap.Error(err))
		return sinks.NewLogSink(logger)
	}
	return sinks.NewMailSink(notifier, creds.To)
}

func (w *Worker) crawl(ctx context.Context, r *run) error {
	genres, err := w.gateway.ListEnabledGenres(ctx)
	if err != nil {
		return err
	}
	for _, genre := range genres {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.cursor.Reset(genre.Name)
		if err := w.processGenre(ctx, r, genre); err != nil {
			return err
		}
	}
	return nil
}

// processGenre returns only failures that must stop the main loop.
func (w *Worker) processGenre(ctx context.Context, r *run, genre crawler.Genre) error {
	logger := r.logger.With(zap.String("genre", genre.Name))
	logger.Info(genre.Name)
	started := w.clock.Now()

	url := w.cfg.Endpoints.Genre(genre.Name)
	raw, err := w.fetcher.FetchText(ctx, url, crawler.GenrePrefix, crawler.GenreSuffix)
	if err != nil {
		w.recorder.ObserveFetch("genre", "error")
		w.genreFailed(r, logger, genre, err)
		return nil
	}
	listing, err := crawler.DecodeGenreListing(raw)
	if err != nil {
		w.recorder.ObserveFetch("genre", "invalid")
		w.genreFailed(r, logger, genre, err)
		return nil
	}
	if !listing.Present {
		w.recorder.ObserveFetch("genre", "empty")
		w.genreFailed(r, logger, genre, errors.New("no data"))
		return nil
	}
	w.recorder.ObserveFetch("genre", "ok")
	r.counters.Genres++

	if err := w.gateway.ArchiveGenreJSON(ctx, genre.ID, raw); err != nil {
		return err
	}
	w.mirror(ctx, logger, fmt.Sprintf("genres/%d/%s.json", genre.ID, crawler.DayLabel(r.now, 0)), raw)

	total := len(listing.Value.Channels)
	for i, ch := range listing.Value.Channels {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.cursor.ChannelName = ch.Name
		r.cursor.ChannelNumber = ch.Number
		r.cursor.Date = ""
		r.cursor.EventID = crawler.NoEventID

		line := fmt.Sprintf("...%2d/%2d %4d %s", i+1, total, ch.Number, ch.Name)
		skipped, err := w.gateway.IsChannelSkipped(ctx, ch.Number, ch.Name)
		if err != nil {
			return err
		}
		if skipped {
			logger.Info(line + ": skipped")
			r.counters.ChannelsSkipped++
			w.recorder.ObserveChannel("skipped")
			continue
		}
		logger.Info(line)

		chLogger := logger.With(zap.Int64("channel_id", ch.ID), zap.Int("channel_number", ch.Number))
		if err := w.processChannel(ctx, r, chLogger, genre.ID, ch); err != nil {
			r.counters.ChannelsFailed++
			w.recorder.ObserveChannel("failed")
			chLogger.Error("channel aborted", zap.Error(err))
			r.record.Addf("%s %d %s: %v", genre.Name, ch.Number, ch.Name, err)
			continue
		}
		r.counters.Channels++
		w.recorder.ObserveChannel("done")
	}

	logger.Info(fmt.Sprintf("%s end in %s", genre.Name, elapsed(w.clock.Now().Sub(started))))
	return nil
}

func (w *Worker) genreFailed(r *run, logger *zap.Logger, genre crawler.Genre, err error) {
	r.counters.GenresFailed++
	logger.Error("genre listing unavailable", zap.Error(err))
	r.record.Addf("%s: %v", genre.Name, err)
}

// processChannel returns a non-nil error when the rest of the channel was abandoned.
func (w *Worker) processChannel(ctx context.Context, r *run, logger *zap.Logger, genreID int, ch crawler.Channel) error {
	logo := w.fetchLogo(ctx, logger, ch)
	if err := w.gateway.UpsertChannel(ctx, genreID, ch, logo); err != nil {
		return err
	}

	for offset := r.params.dayStart; offset <= r.params.dayStop; offset++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		day := crawler.DayLabel(r.now, offset)
		r.cursor.Date = day
		r.cursor.EventID = crawler.NoEventID
		logger.Debug("day", zap.String("day", day), zap.Int("offset", offset))

		dayLogger := logger.With(zap.String("day", day))
		out, err := w.processDay(ctx, r, dayLogger, ch, offset, day)
		switch out {
		case outcomeDone:
			r.counters.Days++
		case outcomeEmpty:
			r.counters.DaysFailed++
			dayLogger.Error("daily plan has no data")
		case outcomeFailed:
			r.counters.DaysFailed++
			dayLogger.Error("daily plan unavailable", zap.Error(err))
		case outcomeEscalated:
			r.counters.DaysFailed++
			return err
		}
	}
	return nil
}

func (w *Worker) fetchLogo(ctx context.Context, logger *zap.Logger, ch crawler.Channel) []byte {
	if ch.LogoURL == "" {
		return nil
	}
	logo, err := w.fetcher.FetchBytes(ctx, ch.LogoURL)
	if err != nil {
		w.recorder.ObserveFetch("logo", "error")
		logger.Warn("channel logo unavailable", zap.String("url", ch.LogoURL), zap.Error(err))
		return nil
	}
	w.recorder.ObserveFetch("logo", "ok")
	return logo
}

func (w *Worker) processDay(
	ctx context.Context,
	r *run,
	logger *zap.Logger,
	ch crawler.Channel,
	offset int,
	day string,
) (outcome, error) {
	url := w.cfg.Endpoints.ChannelDay(day, ch.ID)
	raw, err := w.fetcher.FetchText(ctx, url, "", "")
	if err != nil {
		w.recorder.ObserveFetch("plan", "error")
		return outcomeFailed, err
	}
	plan, err := crawler.DecodeChannelPlan(raw)
	if err != nil {
		w.recorder.ObserveFetch("plan", "invalid")
		return outcomeFailed, err
	}
	if !plan.Present {
		w.recorder.ObserveFetch("plan", "empty")
		return outcomeEmpty, nil
	}
	w.recorder.ObserveFetch("plan", "ok")

	if err := w.gateway.ArchiveChannelDayJSON(ctx, ch.ID, offset, raw); err != nil {
		return outcomeEscalated, err
	}
	w.mirror(ctx, logger, fmt.Sprintf("channels/%d/%s.json", ch.ID, day), raw)

	timeline := crawler.NewTimeline(day, w.cfg.Location)
	for _, ev := range plan.Value.Plan {
		r.cursor.EventID = ev.ID
		if ev.ID == crawler.NoEventID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return outcomeFailed, err
		}
		out, err := w.processEvent(ctx, logger, ch.ID, ev, timeline)
		switch out {
		case outcomeDone:
			r.counters.Events++
		case outcomeFailed:
			r.counters.EventsFailed++
			logger.Warn("event skipped", zap.Int64("event_id", ev.ID), zap.Error(err))
		case outcomeEscalated:
			r.counters.EventsFailed++
			return outcomeFailed, err
		}
	}
	return outcomeDone, nil
}

func (w *Worker) processEvent(
	ctx context.Context,
	logger *zap.Logger,
	channelID int64,
	ev crawler.Event,
	timeline *crawler.Timeline,
) (outcome, error) {
	description := w.describe(ctx, logger, ev.ID)
	start, err := timeline.Resolve(ev.StartTime)
	if err != nil {
		return outcomeFailed, err
	}
	if err := w.gateway.UpsertEvent(ctx, ev, channelID, start, description); err != nil {
		return outcomeEscalated, err
	}
	w.recorder.ObserveEventUpserted()
	return outcomeDone, nil
}

// describe never fails; anything short of a decoded description yields "".
func (w *Worker) describe(ctx context.Context, logger *zap.Logger, eventID int64) string {
	if w.cache != nil {
		cached, ok, err := w.cache.Get(ctx, eventID)
		switch {
		case err != nil:
			logger.Warn("description cache get failed", zap.Int64("event_id", eventID), zap.Error(err))
		case ok:
			w.recorder.ObserveFetch("description", "cached")
			return cached
		}
	}

	raw, err := w.fetcher.FetchText(ctx, w.cfg.Endpoints.EventDescription(eventID), "", "")
	if err != nil {
		w.recorder.ObserveFetch("description", "error")
		logger.Debug("description unavailable", zap.Int64("event_id", eventID), zap.Error(err))
		return ""
	}
	decoded, err := crawler.DecodeEventDescription(raw)
	if err != nil {
		w.recorder.ObserveFetch("description", "invalid")
		logger.Debug("description unreadable", zap.Int64("event_id", eventID), zap.Error(err))
		return ""
	}
	if !decoded.Present {
		w.recorder.ObserveFetch("description", "empty")
		return ""
	}
	w.recorder.ObserveFetch("description", "ok")

	if w.cache != nil {
		if err := w.cache.Set(ctx, eventID, decoded.Value.Description); err != nil {
			logger.Warn("description cache set failed", zap.Int64("event_id", eventID), zap.Error(err))
		}
	}
	return decoded.Value.Description
}

func (w *Worker) mirror(ctx context.Context, logger *zap.Logger, path, raw string) {
	if w.blobStore == nil {
		return
	}
	if w.cfg.MirrorPrefix != "" {
		path = w.cfg.MirrorPrefix + "/" + path
	}
	if _, err := w.blobStore.PutObject(ctx, path, jsonType, strings.NewReader(raw)); err != nil {
		logger.Warn("snapshot mirror failed", zap.String("path", path), zap.Error(err))
	}
}

func (w *Worker) recordAbort(r *run, abortErr *AbortError) {
	r.record.Add(abortErr.Err.Error())
	for _, line := range abortErr.Cursor.Lines() {
		r.record.Add(line)
	}
	r.logger.Error("crawl aborted",
		zap.Error(abortErr.Err),
		zap.String("genre", abortErr.Cursor.Genre),
		zap.String("channel", abortErr.Cursor.ChannelName),
		zap.Int("channel_number", abortErr.Cursor.ChannelNumber),
		zap.String("day", abortErr.Cursor.Date),
		zap.Int64("event_id", abortErr.Cursor.EventID),
	)
}

func (w *Worker) finish(
	ctx context.Context,
	r *run,
	notify progress.Sink,
	started time.Time,
	abortErr *AbortError,
) crawler.Summary {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.ReportTimeout)
	defer cancel()

	if err := w.gateway.PostRunMaintenance(ctx); err != nil {
		r.logger.Error("post-run maintenance failed", zap.Error(err))
		r.record.Add(err.Error())
	}

	c := r.counters
	r.record.Addf("genres %d (%d failed), channels %d (%d skipped, %d failed), days %d (%d failed), events %d (%d failed)",
		c.Genres, c.GenresFailed, c.Channels, c.ChannelsSkipped, c.ChannelsFailed,
		c.Days, c.DaysFailed, c.Events, c.EventsFailed)

	finished := w.clock.Now()
	took := finished.Sub(started)
	end := "PROCESS END in " + elapsed(took)
	r.record.Add(end)

	reporter := progress.NewReporter(sinks.NewStoreSink(w.gateway, w.clock), notify, r.logger)
	reporter.Deliver(ctx, r.id, w.cfg.ProcessName, r.record)
	r.logger.Info(end)

	status := "completed"
	summary := crawler.Summary{
		RunID:      r.id,
		StartedAt:  started,
		FinishedAt: finished,
		Counters:   c,
		Lines:      r.record.Lines(),
	}
	if abortErr != nil {
		status = "aborted"
		summary.Aborted = true
		summary.Error = abortErr.Err.Error()
	}
	w.recorder.ObserveRun(status, took)
	return summary
}

func elapsed(d time.Duration) string {
	return d.Round(time.Second).String()
}
