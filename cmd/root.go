package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/epg-crawler/internal/app"
	"github.com/JakeFAU/epg-crawler/internal/config"
	"github.com/JakeFAU/epg-crawler/internal/crawler"
	"github.com/JakeFAU/epg-crawler/internal/logging"
)

var cfgFile string

// ctxKey is the type of keys stored in the command context.
type ctxKey string

const (
	appKey    ctxKey = "app"
	configKey ctxKey = "config"
	loggerKey ctxKey = "logger"

	// skipAppAnnotation marks commands that only need config and logger.
	skipAppAnnotation = "epgcrawler/skip-app"
)

// App defines the application interface that commands use, so tests can
// inject a fake.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Run(ctx context.Context) (crawler.Summary, error)
	Ping(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// loadConfig is replaced in tests.
var loadConfig = config.Load

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epgcrawler",
		Short: "Crawls the Sky TV guide into Postgres.",
		Long: `epgcrawler walks the Sky TV guide genre by genre, channel by channel
and day by day, stores every scheduled event, and reports each run to the
run log and by email.`,
		SilenceUsage: true,

		// Loads config and logger, then builds the application unless the
		// subcommand opts out.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), configKey, cfg)
			ctx = context.WithValue(ctx, loggerKey, logger)
			if cmd.Annotations[skipAppAnnotation] == "" {
				appInstance, err := newApp(ctx, cfg, logger)
				if err != nil {
					return fmt.Errorf("failed to initialize application services: %w", err)
				}
				ctx = context.WithValue(ctx, appKey, appInstance)
			}
			cmd.SetContext(ctx)
			return nil
		},

		// Shuts services down and flushes the logger.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
			if logger, ok := cmd.Context().Value(loggerKey).(*zap.Logger); ok {
				_ = logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables use the EPG_ prefix")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newScheduleCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "epgcrawler:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application is not initialized")
	}
	return appInstance, nil
}

func resolveConfig(ctx context.Context) (config.Config, *zap.Logger, error) {
	cfg, ok := ctx.Value(configKey).(config.Config)
	if !ok {
		return config.Config{}, nil, fmt.Errorf("configuration is not loaded")
	}
	logger, ok := ctx.Value(loggerKey).(*zap.Logger)
	if !ok {
		logger = zap.NewNop()
	}
	return cfg, logger, nil
}
