package repository

import (
	"context"
	"time"

	"github.com/dotlink-ops/nexus-ingest/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository persists chunks and their embeddings. Writes are
// upserts keyed on (item_id, chunk_index) and chunk_id so a retried item
// converges instead of duplicating rows.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// UpsertChunk inserts a chunk row, or refreshes content and token count
// when the (item_id, chunk_index) key already exists. The chunk's ID is
// populated from the row that won.
func (r *ChunkRepository) UpsertChunk(ctx context.Context, c *domain.KnowledgeChunk) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO knowledge_chunks (id, item_id, client_id, chunk_index, content, token_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (item_id, chunk_index)
		 DO UPDATE SET content = EXCLUDED.content, token_count = EXCLUDED.token_count
		 RETURNING id`,
		c.ID, c.ItemID, c.ClientID, c.ChunkIndex, c.Content, c.TokenCount, createdAt,
	).Scan(&c.ID)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreWriteFailed, "failed to upsert chunk", err)
	}
	return nil
}

// UpsertEmbedding inserts the embedding for a chunk, replacing any vector
// left behind by an earlier partial run. Exactly one embedding per chunk.
func (r *ChunkRepository) UpsertEmbedding(ctx context.Context, e *domain.KnowledgeEmbedding) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO knowledge_embeddings (id, chunk_id, client_id, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (chunk_id)
		 DO UPDATE SET embedding = EXCLUDED.embedding
		 RETURNING id`,
		e.ID, e.ChunkID, e.ClientID, pgvector.NewVector(e.Vector), createdAt,
	).Scan(&e.ID)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreWriteFailed, "failed to upsert embedding", err)
	}
	return nil
}

// ListByItem returns an item's chunks in index order.
func (r *ChunkRepository) ListByItem(ctx context.Context, itemID string) ([]*domain.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, item_id, client_id, chunk_index, content, token_count, created_at
		 FROM knowledge_chunks
		 WHERE item_id = $1
		 ORDER BY chunk_index ASC`,
		itemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*domain.KnowledgeChunk
	for rows.Next() {
		var c domain.KnowledgeChunk
		if err := rows.Scan(&c.ID, &c.ItemID, &c.ClientID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// ListContentByClient returns the content of every chunk ever recorded
// for a client, in retrieval order, for full-corpus summarization.
func (r *ChunkRepository) ListContentByClient(ctx context.Context, clientID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT content
		 FROM knowledge_chunks
		 WHERE client_id = $1
		 ORDER BY created_at ASC, item_id ASC, chunk_index ASC`,
		clientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contents []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}
	return contents, rows.Err()
}

// CountMissingEmbeddings reports chunks of an item that have no embedding
// row yet. Zero is required before the item may be marked processed.
func (r *ChunkRepository) CountMissingEmbeddings(ctx context.Context, itemID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM knowledge_chunks c
		 LEFT JOIN knowledge_embeddings e ON e.chunk_id = c.id
		 WHERE c.item_id = $1 AND e.id IS NULL`,
		itemID,
	).Scan(&count)
	return count, err
}
