package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/dotlink-ops/nexus-ingest/internal/telemetry"
	"github.com/spf13/cobra"
)

// SummarizeCmd returns the summarize command: force a full-corpus
// re-summary for one client without touching item state.
func SummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Regenerate the summary for a client",
		RunE:  runSummarize,
	}

	cmd.Flags().String("client", "", "Client ID to summarize")
	_ = cmd.MarkFlagRequired("client")

	return cmd
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	clientID, _ := cmd.Flags().GetString("client")

	p, err := buildPipeline(ctx, false)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.summarizer.Summarize(ctx, clientID); err != nil {
		telemetry.CaptureError(ctx, err)
		return fmt.Errorf("failed to summarize client %s: %w", clientID, err)
	}

	log.Printf("summary updated for client %s", clientID)
	return nil
}
