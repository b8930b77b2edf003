package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
	notifymemory "github.com/JakeFAU/epg-crawler/internal/notify/memory"
	memoryStorage "github.com/JakeFAU/epg-crawler/internal/storage/memory"
)

var runStart = time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)

type fixture struct {
	gateway  *fakeGateway
	fetcher  *fakeFetcher
	notifier *notifymemory.Notifier
	deps     Deps
}

func newFixture() *fixture {
	gw := newFakeGateway()
	gw.genres = []crawler.Genre{
		{ID: 1, Name: "Cinema", Enabled: true},
		{ID: 2, Name: "News", Enabled: true},
	}
	gw.params = map[string]string{
		ParamDayStart:     "0",
		ParamDayStop:      "1",
		ParamEmailFromUsr: "bot@example.com",
		ParamEmailFromPwd: "secret",
		ParamEmailTo:      "ops@example.com",
	}
	gw.skips["302/Sky Cinema Due"] = true

	f := newFakeFetcher()
	f.text[testEndpoints.Genre("Cinema")] = `var grid = {"channels":[` +
		`{"id":1001,"number":301,"name":"Sky Cinema Uno","logomsite":"http://img/1001.png"},` +
		`{"id":1002,"number":302,"name":"Sky Cinema Due"}]};`
	f.text[testEndpoints.Genre("News")] = `var grid = {"channels":[{"id":2001,"number":500,"name":"Sky TG24"}]};`
	f.bytes["http://img/1001.png"] = []byte("png")

	f.text[testEndpoints.ChannelDay("26_10_14", 1001)] = `{"channel":1001,"plan":[` +
		`{"id":-1,"starttime":"05:00"},` +
		`{"id":11,"starttime":"21:00","title":"Film A"},` +
		`{"id":12,"starttime":"23:50","title":"Film B"},` +
		`{"id":13,"starttime":"00:40","title":"Film C"}]}`
	f.text[testEndpoints.ChannelDay("26_10_15", 1001)] = `{"channel":1001,"plan":[{"id":21,"starttime":"06:00","title":"Morning"}]}`
	f.text[testEndpoints.ChannelDay("26_10_14", 2001)] = `{"channel":2001,"plan":[{"id":31,"starttime":"07:00","title":"TG"}]}`
	f.text[testEndpoints.ChannelDay("26_10_15", 2001)] = `{"channel":2001,"plan":[]}`

	f.text[testEndpoints.EventDescription(11)] = `{"description":"Trama A"}`
	f.text[testEndpoints.EventDescription(13)] = `null`

	notifier := notifymemory.New()
	return &fixture{
		gateway:  gw,
		fetcher:  f,
		notifier: notifier,
		deps: Deps{
			Gateway: gw,
			Fetcher: f,
			Notifiers: func(crawler.MailCredentials) (crawler.Notifier, error) {
				return notifier, nil
			},
			Clock: &fakeClock{now: runStart},
			IDGen: &fakeIDGen{},
		},
	}
}

func (fx *fixture) worker() *Worker {
	return New(fx.deps, Config{Endpoints: testEndpoints, Location: time.UTC}, zap.NewNop())
}

func TestWorker_Run_SuccessFlow(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)

	require.False(t, summary.Aborted)
	require.Equal(t, "run-1", summary.RunID)
	require.Equal(t, crawler.Counters{
		Genres:          2,
		Channels:        2,
		ChannelsSkipped: 1,
		Days:            4,
		Events:          5,
	}, summary.Counters)

	events := fx.gateway.events
	require.Len(t, events, 5)
	require.Equal(t, time.Date(2026, 10, 14, 21, 0, 0, 0, time.UTC), events[11].start)
	require.Equal(t, time.Date(2026, 10, 14, 23, 50, 0, 0, time.UTC), events[12].start)
	require.Equal(t, time.Date(2026, 10, 15, 0, 40, 0, 0, time.UTC), events[13].start)
	require.Equal(t, time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC), events[21].start)
	require.Equal(t, time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC), events[31].start)
	require.Equal(t, "Trama A", events[11].description)
	require.Empty(t, events[12].description)
	require.Empty(t, events[13].description)
	require.Equal(t, int64(1001), events[11].channelID)
	_, sentinel := events[crawler.NoEventID]
	require.False(t, sentinel)

	require.Len(t, fx.gateway.channels, 2)
	require.Equal(t, []byte("png"), fx.gateway.channels[1001].logo)
	require.Equal(t, 1, fx.gateway.channels[1001].genreID)
	require.Nil(t, fx.gateway.channels[2001].logo)
	_, skipped := fx.gateway.channels[1002]
	require.False(t, skipped)
	require.Zero(t, fx.fetcher.count(testEndpoints.ChannelDay("26_10_14", 1002)))

	require.Equal(t, `{"channels":[{"id":2001,"number":500,"name":"Sky TG24"}]}`, fx.gateway.genreJSON[2])
	require.Contains(t, fx.gateway.dayJSON, "1001/1")
	require.Contains(t, fx.gateway.dayJSON, "2001/1")

	pre := fx.gateway.callIndex("PreRunMaintenance")
	genres := fx.gateway.callIndex("ListEnabledGenres")
	post := fx.gateway.callIndex("PostRunMaintenance")
	startLog := fx.gateway.callIndex("AppendRunLog")
	runLog := fx.gateway.lastCallIndex("AppendRunLog")
	require.True(t, startLog < pre && pre < genres && genres < post && post < runLog,
		"order start=%d pre=%d genres=%d post=%d runlog=%d", startLog, pre, genres, post, runLog)

	require.Len(t, fx.gateway.runLogs, 2)
	start := fx.gateway.runLogs[0]
	require.Equal(t, "run-1", start.RunID)
	require.Equal(t, []string{"PROCESS START"}, start.Lines)
	entry := fx.gateway.runLogs[1]
	require.Equal(t, "SkyEpg", entry.Source)
	require.Equal(t, "run-1", entry.RunID)
	require.Equal(t, 2, entry.FirstSeq)
	require.NotContains(t, entry.Lines, "PROCESS START")
	require.Equal(t, "PROCESS END in 0s", entry.Lines[len(entry.Lines)-1])

	msgs := fx.notifier.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, notifymemory.Message{To: "ops@example.com", Subject: "SkyEpg", Body: "PROCESS START"}, msgs[0])
	require.True(t, strings.HasSuffix(msgs[1].Body, "PROCESS END in 0s"))
}

func TestWorker_Run_GenreFetchFailureContinues(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.fetcher.errs[testEndpoints.Genre("Cinema")] = errors.New("connection refused")

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Counters.GenresFailed)
	require.Equal(t, 1, summary.Counters.Genres)
	require.Contains(t, fx.gateway.channels, int64(2001))
	require.NotContains(t, fx.gateway.channels, int64(1001))
	require.True(t, containsPrefix(summary.Lines, "Cinema: fetch http://guide/grid/grid_cinema_channels.js"))
}

func TestWorker_Run_GenreNoDataAndBadJSONContinue(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.fetcher.text[testEndpoints.Genre("Cinema")] = `var grid = {"channels":[{"number":1}]};`
	fx.gateway.genres = append(fx.gateway.genres, crawler.Genre{ID: 3, Name: "Kids", Enabled: true})
	fx.fetcher.text[testEndpoints.Genre("Kids")] = ``

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Counters.GenresFailed)
	require.Contains(t, summary.Lines, "Kids: fetch http://guide/grid/grid_kids_channels.js: fragment markers not found")
	require.True(t, containsPrefix(summary.Lines, "Cinema: decode genre listing"))
	require.Contains(t, fx.gateway.channels, int64(2001))
}

func TestWorker_Run_ChannelFailureIsContained(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.gateway.failOn("UpsertChannel", int64(1001), errors.New("constraint"))

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Counters.ChannelsFailed)
	require.Equal(t, 1, summary.Counters.Channels)
	require.NotContains(t, fx.gateway.events, int64(11))
	require.Contains(t, fx.gateway.events, int64(31))
	require.True(t, containsPrefix(summary.Lines, "Cinema 301 Sky Cinema Uno: UpsertChannel"))
}

func TestWorker_Run_LogoFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.fetcher.errs["http://img/1001.png"] = errors.New("timeout")

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Counters.Channels)
	require.Contains(t, fx.gateway.channels, int64(1001))
	require.Nil(t, fx.gateway.channels[1001].logo)
}

func TestWorker_Run_DayFailureMovesToNextDay(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.fetcher.errs[testEndpoints.ChannelDay("26_10_14", 1001)] = errors.New("502")

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Counters.DaysFailed)
	require.NotContains(t, fx.gateway.events, int64(11))
	require.Contains(t, fx.gateway.events, int64(21))
}

func TestWorker_Run_ArchiveDayFailureAbortsChannel(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.gateway.failOn("ArchiveChannelDayJSON", "1001/0", errors.New("disk full"))

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, summary.Counters.ChannelsFailed)
	require.Zero(t, fx.fetcher.count(testEndpoints.ChannelDay("26_10_15", 1001)))
	require.NotContains(t, fx.gateway.events, int64(21))
	require.Contains(t, fx.gateway.events, int64(31))
}

func TestWorker_Run_EventUpsertFailureAbortsDay(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.gateway.failOn("UpsertEvent", int64(12), errors.New("deadlock"))

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, fx.gateway.events, int64(11))
	require.NotContains(t, fx.gateway.events, int64(13))
	require.Contains(t, fx.gateway.events, int64(21))
	require.Equal(t, 1, summary.Counters.DaysFailed)
	require.Equal(t, 1, summary.Counters.EventsFailed)
}

func TestWorker_Run_UnparseableStartSkipsEventOnly(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.fetcher.text[testEndpoints.ChannelDay("26_10_14", 2001)] = `{"plan":[` +
		`{"id":31,"starttime":"7 o'clock"},{"id":32,"starttime":"08:00"}]}`

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)

	require.NotContains(t, fx.gateway.events, int64(31))
	require.Equal(t, time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC), fx.gateway.events[32].start)
	require.Equal(t, 1, summary.Counters.EventsFailed)
	require.Zero(t, summary.Counters.DaysFailed)
}

func TestWorker_Run_GenreScopeFailureAborts(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.gateway.failOn("IsChannelSkipped", 302, errors.New("connection lost"))

	summary, err := fx.worker().Run(context.Background())

	var abortErr *AbortError
	require.True(t, errors.As(err, &abortErr))
	require.True(t, summary.Aborted)
	require.Equal(t, "Cinema", abortErr.Cursor.Genre)
	require.Equal(t, "Sky Cinema Due", abortErr.Cursor.ChannelName)
	require.Equal(t, 302, abortErr.Cursor.ChannelNumber)

	// News never started.
	require.NotContains(t, fx.gateway.channels, int64(2001))

	lines := fx.gateway.runLogs[1].Lines
	require.Contains(t, lines, "IsChannelSkipped: connection lost")
	require.Contains(t, lines, "curGenre: Cinema")
	require.Contains(t, lines, "curChnName: Sky Cinema Due")
	require.Contains(t, lines, "curChnNum: 302")
	require.Equal(t, "PROCESS END in 0s", lines[len(lines)-1])
	require.GreaterOrEqual(t, fx.gateway.callIndex("PostRunMaintenance"), 0)
	require.Len(t, fx.notifier.Messages(), 2)
}

func TestWorker_Run_ArchiveGenreFailureAborts(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.gateway.failOn("ArchiveGenreJSON", 2, errors.New("read only"))

	summary, err := fx.worker().Run(context.Background())
	require.Error(t, err)
	require.True(t, summary.Aborted)
	require.Equal(t, "ArchiveGenreJSON: read only", summary.Error)
	require.Contains(t, fx.gateway.channels, int64(1001))
	require.NotContains(t, fx.gateway.channels, int64(2001))
	require.Contains(t, summary.Lines, "curGenre: News")
	require.Contains(t, summary.Lines, "curChnName: null")
}

func TestWorker_Run_ParamFailureStillReports(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	delete(fx.gateway.params, ParamDayStop)

	summary, err := fx.worker().Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrParamNotFound)
	require.True(t, summary.Aborted)
	require.Len(t, fx.gateway.runLogs, 2)
	require.Equal(t, -1, fx.gateway.callIndex("ListEnabledGenres"))
	require.Equal(t, -1, fx.gateway.callIndex("PreRunMaintenance"))
	// Credentials were never read, so nothing is mailed.
	require.Empty(t, fx.notifier.Messages())
}

func TestWorker_Run_PreRunFailureAborts(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.gateway.failOn("PreRunMaintenance", nil, errors.New("lock timeout"))

	summary, err := fx.worker().Run(context.Background())
	require.Error(t, err)
	require.True(t, summary.Aborted)
	require.Equal(t, -1, fx.gateway.callIndex("ListEnabledGenres"))
	require.Contains(t, summary.Lines, "PreRunMaintenance: lock timeout")
	require.Contains(t, summary.Lines, "curGenre: null")
}

func TestWorker_Run_RunLogFailureIsMailed(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.gateway.failOn("AppendRunLog", nil, errors.New("too many connections"))

	_, err := fx.worker().Run(context.Background())
	require.NoError(t, err)

	msgs := fx.notifier.Messages()
	require.Len(t, msgs, 2)
	require.True(t, strings.HasSuffix(msgs[1].Body, "report via run log: append run log: AppendRunLog: too many connections"))
}

func TestWorker_Run_MailFailureIsOnlyLogged(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.notifier.Fail(errors.New("535 auth"))

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)
	require.False(t, summary.Aborted)
	require.Len(t, fx.gateway.runLogs, 2)
	require.Len(t, fx.gateway.events, 5)
}

func TestWorker_Run_NoRecipientUsesLogSink(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	delete(fx.gateway.params, ParamEmailTo)

	_, err := fx.worker().Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, fx.notifier.Messages())
	require.Len(t, fx.gateway.runLogs, 2)
}

func TestWorker_Run_IsIdempotent(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	w := fx.worker()

	_, err := w.Run(context.Background())
	require.NoError(t, err)
	first := fx.gateway.eventIDs()

	_, err = w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, fx.gateway.eventIDs())
	require.Len(t, fx.gateway.channels, 2)
	require.Len(t, fx.gateway.runLogs, 4)
	require.Equal(t, "run-2", fx.gateway.runLogs[2].RunID)
}

func TestWorker_Run_UsesDescriptionCache(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	cache := newFakeCache()
	fx.deps.Cache = cache
	w := fx.worker()

	_, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Trama A", cache.values[11])
	_, cachedMiss := cache.values[12]
	require.False(t, cachedMiss)

	_, err = w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fx.fetcher.count(testEndpoints.EventDescription(11)))
	require.Equal(t, 2, fx.fetcher.count(testEndpoints.EventDescription(12)))
	require.Equal(t, "Trama A", fx.gateway.events[11].description)
}

func TestWorker_Run_CacheErrorFallsBackToFetch(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	fx.deps.Cache = cache

	_, err := fx.worker().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Trama A", fx.gateway.events[11].description)
}

func TestWorker_Run_MirrorsSnapshots(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	blobs := memoryStorage.NewBlobStore()
	fx.deps.BlobStore = blobs
	w := New(fx.deps, Config{Endpoints: testEndpoints, Location: time.UTC, MirrorPrefix: "snapshots"}, zap.NewNop())

	_, err := w.Run(context.Background())
	require.NoError(t, err)

	data, ok := blobs.Object("snapshots/genres/1/26_10_14.json")
	require.True(t, ok)
	require.Equal(t, fx.gateway.genreJSON[1], string(data))
	_, ok = blobs.Object("snapshots/channels/1001/26_10_15.json")
	require.True(t, ok)
}

func TestWorker_Run_CanceledContextAbortsAndReports(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := fx.worker().Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, summary.Aborted)
	require.Len(t, fx.gateway.runLogs, 2)
}

func TestWorker_Run_IDFailureUsesFallbackAndReports(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.deps.IDGen = &fakeIDGen{err: errors.New("entropy")}

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)
	require.False(t, summary.Aborted)
	require.Equal(t, fmt.Sprintf("SkyEpg-%d", runStart.UnixNano()), summary.RunID)
	require.Len(t, fx.gateway.runLogs, 2)
	require.Equal(t, summary.RunID, fx.gateway.runLogs[1].RunID)
	require.Len(t, fx.notifier.Messages(), 2)
}

func TestWorker_Run_StartLineFailureKeepsItInFinalReport(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	gw := &flakyRunLog{fakeGateway: fx.gateway, failFirst: true}
	fx.deps.Gateway = gw

	_, err := fx.worker().Run(context.Background())
	require.NoError(t, err)
	require.Len(t, fx.gateway.runLogs, 1)
	entry := fx.gateway.runLogs[0]
	require.Equal(t, 1, entry.FirstSeq)
	require.Equal(t, "PROCESS START", entry.Lines[0])
}

func TestWorker_Run_SentinelWithoutStartTimeKeepsDay(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.fetcher.text[testEndpoints.ChannelDay("26_10_14", 2001)] = `{"channel":2001,"plan":[` +
		`{"id":-1},{"id":31,"starttime":"07:00"},{"id":32,"starttime":"08:00"}]}`

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC), fx.gateway.events[31].start)
	require.Equal(t, time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC), fx.gateway.events[32].start)
	require.Zero(t, summary.Counters.DaysFailed)
	require.Zero(t, summary.Counters.EventsFailed)
}

func TestWorker_Run_NullStartTimeSkipsEventOnly(t *testing.T) {
	t.Parallel()

	fx := newFixture()
	fx.fetcher.text[testEndpoints.ChannelDay("26_10_14", 2001)] = `{"channel":2001,"plan":[` +
		`{"id":30,"starttime":null},{"id":31,"starttime":"07:00"}]}`

	summary, err := fx.worker().Run(context.Background())
	require.NoError(t, err)
	require.NotContains(t, fx.gateway.events, int64(30))
	require.Equal(t, time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC), fx.gateway.events[31].start)
	require.Equal(t, 1, summary.Counters.EventsFailed)
	require.Zero(t, summary.Counters.DaysFailed)
}

// flakyRunLog fails the first AppendRunLog call only.
type flakyRunLog struct {
	*fakeGateway
	failFirst   bool
	appendCalls int
}

func (g *flakyRunLog) AppendRunLog(ctx context.Context, entry crawler.RunLog) error {
	g.appendCalls++
	if g.failFirst && g.appendCalls == 1 {
		return errors.New("pool exhausted")
	}
	return g.fakeGateway.AppendRunLog(ctx, entry)
}

func containsPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
