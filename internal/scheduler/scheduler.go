// Package scheduler runs crawl passes on a cron schedule and on demand,
// never more than one at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
)

// ErrRunInProgress is returned when a crawl is requested while one is running.
var ErrRunInProgress = errors.New("crawl already in progress")

// RunFunc performs one crawl pass.
type RunFunc func(ctx context.Context) (crawler.Summary, error)

// Config controls when scheduled runs fire.
type Config struct {
	// Spec is a standard five-field cron expression or a descriptor such as "@daily".
	Spec     string
	Location *time.Location
}

// Scheduler owns the cron loop and the single-flight guard.
type Scheduler struct {
	cron   *cron.Cron
	run    RunFunc
	logger *zap.Logger

	running sync.Mutex
	wg      sync.WaitGroup

	mu      sync.RWMutex
	baseCtx context.Context
	last    *crawler.Summary
}

// New registers run on the configured schedule. Call Start to begin firing.
func New(run RunFunc, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("run func is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	cronLogger := zapCronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		run:     run,
		logger:  logger,
		baseCtx: context.Background(),
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
	if cfg.Spec != "" {
		if _, err := s.cron.AddFunc(cfg.Spec, s.scheduled); err != nil {
			return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
		}
	}
	return s, nil
}

// Start begins the cron loop. Runs inherit ctx, so cancelling it stops an
// in-flight crawl.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the cron loop and waits for any in-flight crawl to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Next reports when the scheduled run fires next. It is zero when no
// schedule is registered or the loop is stopped.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Trigger starts a crawl in the background unless one is already running.
func (s *Scheduler) Trigger() error {
	if !s.running.TryLock() {
		return ErrRunInProgress
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Unlock()
		s.execute(s.context(), "manual")
	}()
	return nil
}

// RunNow performs a crawl synchronously unless one is already running.
func (s *Scheduler) RunNow(ctx context.Context) (crawler.Summary, error) {
	if !s.running.TryLock() {
		return crawler.Summary{}, ErrRunInProgress
	}
	defer s.running.Unlock()
	return s.execute(ctx, "manual")
}

// Last returns the summary of the most recent finished run.
func (s *Scheduler) Last() (crawler.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return crawler.Summary{}, false
	}
	return *s.last, true
}

func (s *Scheduler) scheduled() {
	if !s.running.TryLock() {
		s.logger.Info("scheduled crawl skipped; another run is in progress")
		return
	}
	defer s.running.Unlock()
	s.execute(s.context(), "cron")
}

func (s *Scheduler) execute(ctx context.Context, trigger string) (crawler.Summary, error) {
	s.logger.Info("crawl starting", zap.String("trigger", trigger))
	summary, err := s.run(ctx)
	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn("crawl aborted",
			zap.String("trigger", trigger),
			zap.String("run_id", summary.RunID),
			zap.Error(err),
		)
		return summary, err
	}
	s.logger.Info("crawl finished",
		zap.String("trigger", trigger),
		zap.String("run_id", summary.RunID),
		zap.Int("events", summary.Counters.Events),
	)
	return summary, nil
}

func (s *Scheduler) context() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseCtx
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
