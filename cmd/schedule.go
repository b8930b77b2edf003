package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/epg-crawler/internal/api"
	"github.com/JakeFAU/epg-crawler/internal/scheduler"
)

func newScheduleCmd() *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Runs crawls on a cron schedule and serves the HTTP API",
		Long: `Starts the cron scheduler and the HTTP server (health, metrics and run
control) and keeps running until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), appInstance, runNow)
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "start a crawl immediately as well as on schedule")
	return cmd
}

func serve(parent context.Context, appInstance App, runNow bool) error {
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sched, err := scheduler.New(appInstance.Run, scheduler.Config{
		Spec:     cfg.Schedule.Cron,
		Location: loc,
	}, logger.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	sched.Start(ctx)
	logger.Info("scheduler started",
		zap.String("cron", cfg.Schedule.Cron),
		zap.Time("next", sched.Next()),
	)
	if runNow {
		if err := sched.Trigger(); err != nil {
			logger.Warn("initial crawl not started", zap.Error(err))
		}
	}

	apiServer := api.NewServer(sched, appInstance, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	sched.Stop()
	logger.Info("shutdown complete")
	return nil
}
