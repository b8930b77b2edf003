package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
)

var testEndpoints = crawler.Endpoints{GridBase: "http://guide/grid", BackendBase: "http://guide/be"}

type storedChannel struct {
	genreID int
	channel crawler.Channel
	logo    []byte
}

type storedEvent struct {
	event       crawler.Event
	channelID   int64
	start       time.Time
	description string
}

type fakeGateway struct {
	mu        sync.Mutex
	genres    []crawler.Genre
	skips     map[string]bool
	params    map[string]string
	failOps   map[string]error
	channels  map[int64]storedChannel
	events    map[int64]storedEvent
	genreJSON map[int]string
	dayJSON   map[string]string
	runLogs   []crawler.RunLog
	calls     []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		skips:     map[string]bool{},
		params:    map[string]string{},
		failOps:   map[string]error{},
		channels:  map[int64]storedChannel{},
		events:    map[int64]storedEvent{},
		genreJSON: map[int]string{},
		dayJSON:   map[string]string{},
	}
}

func (g *fakeGateway) failOn(op string, key any, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if key == nil {
		g.failOps[op] = err
		return
	}
	g.failOps[fmt.Sprintf("%s:%v", op, key)] = err
}

// fail must be called with g.mu held.
func (g *fakeGateway) fail(op string, key any) error {
	g.calls = append(g.calls, op)
	if err, ok := g.failOps[fmt.Sprintf("%s:%v", op, key)]; ok {
		return &crawler.PersistenceError{Op: op, Err: err}
	}
	if err, ok := g.failOps[op]; ok {
		return &crawler.PersistenceError{Op: op, Err: err}
	}
	return nil
}

func (g *fakeGateway) ListEnabledGenres(context.Context) ([]crawler.Genre, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("ListEnabledGenres", nil); err != nil {
		return nil, err
	}
	return append([]crawler.Genre(nil), g.genres...), nil
}

func (g *fakeGateway) IsChannelSkipped(_ context.Context, number int, name string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("IsChannelSkipped", number); err != nil {
		return false, err
	}
	return g.skips[fmt.Sprintf("%d/%s", number, name)], nil
}

func (g *fakeGateway) UpsertChannel(_ context.Context, genreID int, channel crawler.Channel, logo []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("UpsertChannel", channel.ID); err != nil {
		return err
	}
	g.channels[channel.ID] = storedChannel{genreID: genreID, channel: channel, logo: logo}
	return nil
}

func (g *fakeGateway) ArchiveGenreJSON(_ context.Context, genreID int, raw string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("ArchiveGenreJSON", genreID); err != nil {
		return err
	}
	g.genreJSON[genreID] = raw
	return nil
}

func (g *fakeGateway) ArchiveChannelDayJSON(_ context.Context, channelID int64, dayOffset int, raw string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := fmt.Sprintf("%d/%d", channelID, dayOffset)
	if err := g.fail("ArchiveChannelDayJSON", key); err != nil {
		return err
	}
	g.dayJSON[key] = raw
	return nil
}

func (g *fakeGateway) UpsertEvent(
	_ context.Context,
	event crawler.Event,
	channelID int64,
	start time.Time,
	description string,
) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("UpsertEvent", event.ID); err != nil {
		return err
	}
	g.events[event.ID] = storedEvent{event: event, channelID: channelID, start: start, description: description}
	return nil
}

func (g *fakeGateway) PreRunMaintenance(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fail("PreRunMaintenance", nil)
}

func (g *fakeGateway) PostRunMaintenance(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fail("PostRunMaintenance", nil)
}

func (g *fakeGateway) AppendRunLog(_ context.Context, entry crawler.RunLog) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("AppendRunLog", nil); err != nil {
		return err
	}
	g.runLogs = append(g.runLogs, entry)
	return nil
}

func (g *fakeGateway) IntParam(_ context.Context, name string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("IntParam", name); err != nil {
		return 0, err
	}
	raw, ok := g.params[name]
	if !ok {
		return 0, &crawler.PersistenceError{Op: "param " + name, Err: crawler.ErrParamNotFound}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &crawler.PersistenceError{Op: "param " + name, Err: err}
	}
	return v, nil
}

func (g *fakeGateway) StringParam(_ context.Context, name string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail("StringParam", name); err != nil {
		return "", err
	}
	raw, ok := g.params[name]
	if !ok {
		return "", &crawler.PersistenceError{Op: "param " + name, Err: crawler.ErrParamNotFound}
	}
	return raw, nil
}

func (g *fakeGateway) callIndex(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, c := range g.calls {
		if c == op {
			return i
		}
	}
	return -1
}

func (g *fakeGateway) lastCallIndex(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.calls) - 1; i >= 0; i-- {
		if g.calls[i] == op {
			return i
		}
	}
	return -1
}

func (g *fakeGateway) eventIDs() map[int64]time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[int64]time.Time, len(g.events))
	for id, ev := range g.events {
		out[id] = ev.start
	}
	return out
}

type fakeFetcher struct {
	mu    sync.Mutex
	text  map[string]string
	bytes map[string][]byte
	errs  map[string]error
	calls []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		text:  map[string]string{},
		bytes: map[string][]byte{},
		errs:  map[string]error{},
	}
}

func (f *fakeFetcher) FetchText(_ context.Context, url, prefix, suffix string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return "", &crawler.FetchError{URL: url, Err: err}
	}
	body, ok := f.text[url]
	if !ok {
		return "", &crawler.FetchError{URL: url, Err: errors.New("unexpected status 404")}
	}
	fragment, err := crawler.Fragment(body, prefix, suffix)
	if err != nil {
		return "", &crawler.FetchError{URL: url, Err: err}
	}
	return fragment, nil
}

func (f *fakeFetcher) FetchBytes(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return nil, &crawler.FetchError{URL: url, Err: err}
	}
	body, ok := f.bytes[url]
	if !ok {
		return nil, &crawler.FetchError{URL: url, Err: errors.New("unexpected status 404")}
	}
	return body, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeIDGen struct {
	mu   sync.Mutex
	next int
	err  error
}

func (g *fakeIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.next++
	return fmt.Sprintf("run-%d", g.next), nil
}

type fakeCache struct {
	mu     sync.Mutex
	values map[int64]string
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[int64]string{}}
}

func (c *fakeCache) Get(_ context.Context, eventID int64) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	v, ok := c.values[eventID]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, eventID int64, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[eventID] = description
	return nil
}
