package config

import (
	"fmt"
	"log"
	"time"

	"github.com/dotlink-ops/nexus-ingest/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8081"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey        string  `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	SummaryModel        string  `envconfig:"SUMMARY_MODEL" default:"gpt-4o-mini"`
	OpenAIRateLimit     float64 `envconfig:"OPENAI_RATE_LIMIT" default:"5"`

	MaxChunkWords  int           `envconfig:"MAX_CHUNK_WORDS" default:"350"`
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	WorkerPoolSize int           `envconfig:"WORKER_POOL_SIZE" default:"4"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	BatchSize      int           `envconfig:"BATCH_SIZE" default:"100"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("NEXUS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate checks settings the pipeline cannot run without. Violations
// abort the whole run at startup rather than surfacing per item.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return domain.ErrMissingAPIKey
	}
	if c.EmbeddingDimensions <= 0 {
		return domain.ErrDimensionMismatch
	}
	if c.MaxChunkWords <= 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration, "max chunk words must be positive")
	}
	if c.WorkerPoolSize <= 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration, "worker pool size must be positive")
	}
	return nil
}
