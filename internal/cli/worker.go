package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dotlink-ops/nexus-ingest/internal/jobs"
	"github.com/dotlink-ops/nexus-ingest/internal/server"
	"github.com/spf13/cobra"
)

// WorkerCmd returns the worker command: a persistent polling worker with
// a small ops HTTP surface.
func WorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the ingest worker",
		Long:  "Poll for pending knowledge items on an interval and expose health and stats endpoints",
		RunE:  runWorker,
	}

	cmd.Flags().StringP("port", "p", "", "Port for the ops HTTP server")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	p, err := buildPipeline(ctx, !noMigrate)
	if err != nil {
		return err
	}
	defer p.Close()

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" {
		p.cfg.Port = portFlag
	}

	worker := jobs.NewWorker(p.ingest, p.cfg.PollInterval)
	go worker.Start(ctx)

	router := server.NewRouter(server.RouterConfig{
		DB:        p.pool,
		Items:     p.items,
		Summaries: p.summaries,
	})

	srv := &http.Server{
		Addr:    ":" + p.cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("ops server listening on port %s", p.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ops server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	worker.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server forced to shutdown: %w", err)
	}

	log.Println("worker exited")
	return nil
}
