package repository

import (
	"context"
	"errors"

	"github.com/dotlink-ops/nexus-ingest/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ItemRepository reads knowledge items from the input feed and writes the
// processed flag and ingest state back into their metadata.
type ItemRepository struct {
	db dbtx
}

func NewItemRepository(pool *pgxpool.Pool) *ItemRepository {
	return &ItemRepository{db: pool}
}

func NewItemRepositoryWithTx(tx pgx.Tx) *ItemRepository {
	return &ItemRepository{db: tx}
}

func (r *ItemRepository) Create(ctx context.Context, item *domain.KnowledgeItem) error {
	metadata := item.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_items (id, client_id, raw_text, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		item.ID, item.ClientID, item.RawText, metadata, item.CreatedAt,
	)
	return err
}

func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeItem, error) {
	var item domain.KnowledgeItem
	err := r.db.QueryRow(ctx,
		`SELECT id, client_id, raw_text, metadata, created_at
		 FROM knowledge_items WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.ClientID, &item.RawText, &item.Metadata, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ListUnprocessed selects items whose processed flag is false or absent,
// oldest first. Failed items reappear here on the next poll because the
// flag was never set.
func (r *ItemRepository) ListUnprocessed(ctx context.Context, limit int) ([]*domain.KnowledgeItem, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, client_id, raw_text, metadata, created_at
		 FROM knowledge_items
		 WHERE COALESCE(metadata->>'processed', 'false') <> 'true'
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.KnowledgeItem
	for rows.Next() {
		var item domain.KnowledgeItem
		if err := rows.Scan(&item.ID, &item.ClientID, &item.RawText, &item.Metadata, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// SetState records the current pipeline state in the item's metadata so a
// partially processed item is distinguishable from a never-attempted one.
func (r *ItemRepository) SetState(ctx context.Context, id string, state domain.ItemState) error {
	if !state.IsValid() {
		return domain.ErrInvalidItemState
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_items
		 SET metadata = jsonb_set(COALESCE(metadata, '{}'::jsonb), '{ingest_state}', to_jsonb($1::text), true)
		 WHERE id = $2`,
		string(state), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// MarkProcessed flips the processed flag to true. The rest of the
// metadata map is preserved.
func (r *ItemRepository) MarkProcessed(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_items
		 SET metadata = COALESCE(metadata, '{}'::jsonb)
		     || jsonb_build_object('processed', true, 'ingest_state', $1::text)
		 WHERE id = $2`,
		string(domain.ItemStateProcessed), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

// CountUnprocessed reports how many items are waiting for the pipeline.
func (r *ItemRepository) CountUnprocessed(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_items
		 WHERE COALESCE(metadata->>'processed', 'false') <> 'true'`,
	).Scan(&count)
	return count, err
}
