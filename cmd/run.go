package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var printJSON bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one crawl pass and exits",
		Long: `Runs a single crawl pass over every enabled genre. The command exits
successfully even when the pass aborts, since the run record has already
been delivered; it fails only when the application cannot be assembled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger()

			summary, err := appInstance.Run(cmd.Context())
			if err != nil {
				logger.Warn("crawl aborted", zap.String("run_id", summary.RunID), zap.Error(err))
			} else {
				logger.Info("crawl finished",
					zap.String("run_id", summary.RunID),
					zap.Int("genres", summary.Counters.Genres),
					zap.Int("channels", summary.Counters.Channels),
					zap.Int("events", summary.Counters.Events),
				)
			}

			if printJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(summary); err != nil {
					return fmt.Errorf("encode summary: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printJSON, "json", false, "print the run summary as JSON")
	return cmd
}
