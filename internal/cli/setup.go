package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/dotlink-ops/nexus-ingest/internal/config"
	"github.com/dotlink-ops/nexus-ingest/internal/database"
	"github.com/dotlink-ops/nexus-ingest/internal/openai"
	"github.com/dotlink-ops/nexus-ingest/internal/repository"
	"github.com/dotlink-ops/nexus-ingest/internal/service"
	"github.com/dotlink-ops/nexus-ingest/internal/telemetry"
	"github.com/dotlink-ops/nexus-ingest/internal/tokenizer"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	openaiapi "github.com/sashabaranov/go-openai"
)

// pipeline bundles everything a command needs to drive the ingest flow.
type pipeline struct {
	cfg        *config.Config
	pool       *pgxpool.Pool
	items      *repository.ItemRepository
	chunks     *repository.ChunkRepository
	summaries  *repository.SummaryRepository
	ingest     *service.IngestService
	summarizer *service.SummarizerService
	shutdown   func()
}

func (p *pipeline) Close() {
	p.ingest.Close()
	p.pool.Close()
	if p.shutdown != nil {
		p.shutdown()
	}
}

// buildPipeline loads config, connects to the store, optionally runs
// migrations, and wires the pipeline services. Configuration failures
// abort here, before any item is touched.
func buildPipeline(ctx context.Context, migrateDB bool) (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	shutdown := func() {}
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}
		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:         dsn,
			Environment: environment,
			Debug:       cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			shutdown = shutdownTelemetry
		}
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		shutdown()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("connected to database")

	if migrateDB {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			pool.Close()
			shutdown()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	counter, err := tokenizer.NewTiktokenCounter(cfg.EmbeddingModel)
	if err != nil {
		pool.Close()
		shutdown()
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}

	aiClient := openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      openaiapi.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		SummaryModel:        cfg.SummaryModel,
		RequestsPerSecond:   cfg.OpenAIRateLimit,
	})

	itemRepo := repository.NewItemRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	summaryRepo := repository.NewSummaryRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	summarizer := service.NewSummarizerService(chunkRepo, aiClient, txRunner, cfg.RequestTimeout)

	ingest, err := service.NewIngestService(itemRepo, chunkRepo, aiClient, counter, summarizer, service.IngestConfig{
		ChunkConfig: service.ChunkConfig{MaxWords: cfg.MaxChunkWords},
		Timeout:     cfg.RequestTimeout,
		BatchSize:   cfg.BatchSize,
		PoolSize:    cfg.WorkerPoolSize,
	})
	if err != nil {
		pool.Close()
		shutdown()
		return nil, fmt.Errorf("failed to create ingest service: %w", err)
	}

	return &pipeline{
		cfg:        cfg,
		pool:       pool,
		items:      itemRepo,
		chunks:     chunkRepo,
		summaries:  summaryRepo,
		ingest:     ingest,
		summarizer: summarizer,
		shutdown:   shutdown,
	}, nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
