package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs one ingest pass over the configured categories",
		Long: `Resolves product ids for every configured category, fetches and normalizes
the products, embeds their images and upserts the rows. The run summary is
printed as JSON on stdout and published to the configured topic.`,
		RunE: runIngestCommand,
	}
}

func runIngestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	summary := appInstance.Run(cmd.Context())
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if summary.Err != nil {
		return fmt.Errorf("run %s failed: %w", summary.RunID, summary.Err)
	}
	appInstance.Logger().Info("run command finished", zap.String("run_id", summary.RunID))
	return nil
}
