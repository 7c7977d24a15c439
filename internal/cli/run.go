package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// RunCmd returns the run command: a single batch sweep over pending
// items, suitable for cron or a queue trigger.
func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process all pending knowledge items once",
		Long:  "Run one ingest sweep: chunk, embed and persist every pending item, then regenerate client summaries",
		RunE:  runSweep,
	}

	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	p, err := buildPipeline(ctx, !noMigrate)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.ingest.ProcessPending(ctx); err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	return nil
}
