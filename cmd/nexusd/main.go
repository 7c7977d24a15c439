package main

import (
	"fmt"
	"os"

	"github.com/dotlink-ops/nexus-ingest/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nexusd",
		Short: "Nexus knowledge ingest worker",
		Long:  "Nexus worker for ingesting knowledge items, generating embeddings and maintaining client summaries",
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.WorkerCmd())
	rootCmd.AddCommand(cli.SummarizeCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
