package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/epg-crawler/internal/storage/postgres"
)

// runMigrations is replaced in tests.
var runMigrations = postgres.RunMigrations

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "migrate",
		Short:       "Applies the embedded database migrations",
		Annotations: map[string]string{skipAppAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			version, dirty, err := runMigrations(cfg.DB.DSN)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}
