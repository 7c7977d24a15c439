package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dotlink-ops/nexus-ingest/internal/domain"
	"github.com/dotlink-ops/nexus-ingest/internal/telemetry"
	"github.com/panjf2000/ants/v2"
)

// ItemStore reads pending knowledge items and writes their state back.
type ItemStore interface {
	ListUnprocessed(ctx context.Context, limit int) ([]*domain.KnowledgeItem, error)
	SetState(ctx context.Context, id string, state domain.ItemState) error
	MarkProcessed(ctx context.Context, id string) error
}

// ChunkStore persists chunks and embeddings and serves the client corpus.
type ChunkStore interface {
	UpsertChunk(ctx context.Context, c *domain.KnowledgeChunk) error
	UpsertEmbedding(ctx context.Context, e *domain.KnowledgeEmbedding) error
	ListContentByClient(ctx context.Context, clientID string) ([]string, error)
	CountMissingEmbeddings(ctx context.Context, itemID string) (int, error)
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// TokenCounter counts model tokens for chunk accounting.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// ClientSummarizer re-derives the aggregate summary for a client.
type ClientSummarizer interface {
	Summarize(ctx context.Context, clientID string) error
}

// IngestService drives pending items through the pipeline:
// chunk, embed, persist, mark processed, then re-summarize the client.
type IngestService struct {
	items      ItemStore
	chunks     ChunkStore
	embedder   EmbeddingClient
	counter    TokenCounter
	summarizer ClientSummarizer
	uuidGen    UUIDGenerator
	chunkCfg   ChunkConfig
	timeout    time.Duration
	batchSize  int
	pool       *ants.Pool
}

// IngestConfig tunes the orchestrator.
type IngestConfig struct {
	ChunkConfig ChunkConfig
	// Timeout applies to each external call (embedding, store write),
	// not to the sweep as a whole.
	Timeout time.Duration
	// BatchSize caps how many items one sweep picks up.
	BatchSize int
	// PoolSize bounds concurrent item processing. Items of the same
	// client are still processed sequentially.
	PoolSize int
}

// NewIngestService creates a new IngestService instance.
func NewIngestService(
	items ItemStore,
	chunks ChunkStore,
	embedder EmbeddingClient,
	counter TokenCounter,
	summarizer ClientSummarizer,
	cfg IngestConfig,
) (*IngestService, error) {
	if cfg.ChunkConfig.MaxWords <= 0 {
		cfg.ChunkConfig = DefaultChunkConfig()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, err
	}

	return &IngestService{
		items:      items,
		chunks:     chunks,
		embedder:   embedder,
		counter:    counter,
		summarizer: summarizer,
		uuidGen:    &DefaultUUIDGenerator{},
		chunkCfg:   cfg.ChunkConfig,
		timeout:    cfg.Timeout,
		batchSize:  cfg.BatchSize,
		pool:       pool,
	}, nil
}

// Close releases the worker pool.
func (s *IngestService) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// ProcessPending runs one batch sweep. Items are grouped by client;
// clients run concurrently on the bounded pool while one client's items
// stay in order. Item failures are logged and skipped, never raised out
// of the sweep.
func (s *IngestService) ProcessPending(ctx context.Context) error {
	listCtx, cancel := s.callContext(ctx)
	items, err := s.items.ListUnprocessed(listCtx, s.batchSize)
	cancel()
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreWriteFailed, "failed to list unprocessed items", err)
	}

	if len(items) == 0 {
		return nil
	}

	log.Printf("found %d items needing processing", len(items))

	byClient := make(map[string][]*domain.KnowledgeItem)
	for _, item := range items {
		byClient[item.ClientID] = append(byClient[item.ClientID], item)
	}

	var wg sync.WaitGroup
	for clientID, clientItems := range byClient {
		clientID, clientItems := clientID, clientItems
		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			s.processClientItems(ctx, clientID, clientItems)
		})
		if submitErr != nil {
			wg.Done()
			log.Printf("failed to submit work for client %s: %v", clientID, submitErr)
		}
	}
	wg.Wait()

	return nil
}

func (s *IngestService) processClientItems(ctx context.Context, clientID string, items []*domain.KnowledgeItem) {
	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		if err := s.ProcessItem(ctx, item); err != nil {
			log.Printf("item %s (client %s) failed: %v", item.ID, clientID, err)
			continue
		}

		// Summarization failure never reverts item status; the item is
		// ingested once its chunks and embeddings are durable.
		if err := s.summarizer.Summarize(ctx, clientID); err != nil {
			log.Printf("summary skipped for client %s: %v", clientID, err)
		}
	}
}

// ProcessItem runs one item through the state machine:
// pending -> chunked -> embedded -> processed. Any failure leaves the
// item unprocessed so the next poll re-selects it; persisted chunk rows
// are reconciled by upsert on retry.
func (s *IngestService) ProcessItem(ctx context.Context, item *domain.KnowledgeItem) error {
	if item.Processed() {
		log.Printf("item %s already processed, skipping", item.ID)
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "IngestService.ProcessItem", telemetry.SpanAttributes{
		ClientID:  item.ClientID,
		ItemID:    item.ID,
		Operation: "ingest",
	})
	defer span.End()

	log.Printf("processing item %s", item.ID)

	chunks := chunkWords(item.RawText, s.chunkCfg)
	log.Printf("item %s: %d chunks generated", item.ID, len(chunks))

	if err := s.setState(ctx, item.ID, domain.ItemStateChunked); err != nil {
		return err
	}

	for idx, content := range chunks {
		if err := s.processChunk(ctx, item, idx, content); err != nil {
			s.markFailed(ctx, item.ID)
			return err
		}
	}

	if len(chunks) > 0 {
		if err := s.setState(ctx, item.ID, domain.ItemStateEmbedded); err != nil {
			s.markFailed(ctx, item.ID)
			return err
		}

		callCtx, cancel := s.callContext(ctx)
		missing, err := s.chunks.CountMissingEmbeddings(callCtx, item.ID)
		cancel()
		if err != nil {
			s.markFailed(ctx, item.ID)
			return domain.NewDomainErrorWithCause(domain.ErrCodeStoreWriteFailed, "failed to verify embeddings", err)
		}
		if missing > 0 {
			s.markFailed(ctx, item.ID)
			return domain.NewDomainError(domain.ErrCodeEmbeddingFailed, "item has chunks without embeddings")
		}
	}

	markCtx, cancel := s.callContext(ctx)
	err := s.items.MarkProcessed(markCtx, item.ID)
	cancel()
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreWriteFailed, "failed to mark item processed", err)
	}

	log.Printf("finished processing item %s", item.ID)
	return nil
}

// processChunk persists one chunk row and then its embedding. The chunk
// row is written first so it is visible before the embedding exists; the
// reverse state never occurs.
func (s *IngestService) processChunk(ctx context.Context, item *domain.KnowledgeItem, idx int, content string) error {
	tokens, err := s.counter.CountTokens(content)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeChunkingFailed, "failed to count tokens", err)
	}

	chunk := &domain.KnowledgeChunk{
		ID:         s.uuidGen.NewString(),
		ItemID:     item.ID,
		ClientID:   item.ClientID,
		ChunkIndex: idx,
		Content:    content,
		TokenCount: tokens,
	}

	callCtx, cancel := s.callContext(ctx)
	err = s.chunks.UpsertChunk(callCtx, chunk)
	cancel()
	if err != nil {
		return err
	}

	callCtx, cancel = s.callContext(ctx)
	vector, err := s.embedder.GenerateEmbedding(callCtx, content)
	cancel()
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed, "failed to generate embedding", err)
	}

	embedding := &domain.KnowledgeEmbedding{
		ID:       s.uuidGen.NewString(),
		ChunkID:  chunk.ID,
		ClientID: item.ClientID,
		Vector:   vector,
	}

	callCtx, cancel = s.callContext(ctx)
	err = s.chunks.UpsertEmbedding(callCtx, embedding)
	cancel()
	return err
}

func (s *IngestService) setState(ctx context.Context, itemID string, state domain.ItemState) error {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.items.SetState(callCtx, itemID, state); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreWriteFailed, "failed to record item state", err)
	}
	return nil
}

// markFailed is best-effort; the processed flag alone drives re-selection.
func (s *IngestService) markFailed(ctx context.Context, itemID string) {
	if err := s.setState(ctx, itemID, domain.ItemStateFailed); err != nil {
		log.Printf("failed to record failed state for item %s: %v", itemID, err)
	}
}

func (s *IngestService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
