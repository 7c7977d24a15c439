package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dotlink-ops/nexus-ingest/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SummaryRepository persists the single current summary per client and
// its append-only version history.
type SummaryRepository struct {
	db dbtx
}

func NewSummaryRepository(pool *pgxpool.Pool) *SummaryRepository {
	return &SummaryRepository{db: pool}
}

func NewSummaryRepositoryWithTx(tx pgx.Tx) *SummaryRepository {
	return &SummaryRepository{db: tx}
}

// Upsert replaces the client's summary row wholesale. All fields are
// written together; there is no per-field update path.
func (r *SummaryRepository) Upsert(ctx context.Context, s *domain.ClientSummary) error {
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO client_summaries
			(client_id, short_summary, long_summary, key_insights, next_actions, risks, opportunities, sentiment, priority_score, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (client_id)
		 DO UPDATE SET
			short_summary = EXCLUDED.short_summary,
			long_summary = EXCLUDED.long_summary,
			key_insights = EXCLUDED.key_insights,
			next_actions = EXCLUDED.next_actions,
			risks = EXCLUDED.risks,
			opportunities = EXCLUDED.opportunities,
			sentiment = EXCLUDED.sentiment,
			priority_score = EXCLUDED.priority_score,
			updated_at = EXCLUDED.updated_at`,
		s.ClientID,
		s.ShortSummary,
		s.LongSummary,
		s.KeyInsights,
		s.NextActions,
		s.Risks,
		s.Opportunities,
		nullableString(string(s.Sentiment)),
		nullableInt(s.PriorityScore),
		updatedAt,
	)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreWriteFailed, "failed to upsert client summary", err)
	}
	return nil
}

func (r *SummaryRepository) GetByClient(ctx context.Context, clientID string) (*domain.ClientSummary, error) {
	var s domain.ClientSummary
	var sentiment *string
	var priority *int
	err := r.db.QueryRow(ctx,
		`SELECT client_id, short_summary, long_summary, key_insights, next_actions, risks, opportunities, sentiment, priority_score, updated_at
		 FROM client_summaries WHERE client_id = $1`,
		clientID,
	).Scan(&s.ClientID, &s.ShortSummary, &s.LongSummary, &s.KeyInsights, &s.NextActions, &s.Risks, &s.Opportunities, &sentiment, &priority, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSummaryNotFound
		}
		return nil, err
	}
	if sentiment != nil {
		s.Sentiment = domain.Sentiment(*sentiment)
	}
	if priority != nil {
		s.PriorityScore = *priority
	}
	return &s, nil
}

// AppendVersion always inserts a new history row; versions are never
// updated or deleted.
func (r *SummaryRepository) AppendVersion(ctx context.Context, v *domain.SummaryVersion) error {
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO summary_versions (id, client_id, summary_snapshot, created_at)
		 VALUES ($1, $2, $3, $4)`,
		v.ID, v.ClientID, v.Snapshot, createdAt,
	)
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeStoreWriteFailed, "failed to append summary version", err)
	}
	return nil
}

// ListVersions returns a client's summary history, newest first.
func (r *SummaryRepository) ListVersions(ctx context.Context, clientID string) ([]*domain.SummaryVersion, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, client_id, summary_snapshot, created_at
		 FROM summary_versions
		 WHERE client_id = $1
		 ORDER BY created_at DESC`,
		clientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*domain.SummaryVersion
	for rows.Next() {
		var v domain.SummaryVersion
		if err := rows.Scan(&v.ID, &v.ClientID, &v.Snapshot, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

// CountSummaries reports how many clients have a current summary.
func (r *SummaryRepository) CountSummaries(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM client_summaries`).Scan(&count)
	return count, err
}
