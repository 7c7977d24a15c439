package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dotlink-ops/nexus-ingest/internal/domain"
	"github.com/dotlink-ops/nexus-ingest/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// SummaryStore persists client summaries and their version history.
type SummaryStore interface {
	Upsert(ctx context.Context, s *domain.ClientSummary) error
	AppendVersion(ctx context.Context, v *domain.SummaryVersion) error
}

// TxRepositories exposes repositories bound to one transaction.
type TxRepositories interface {
	Summaries() SummaryStore
	Chunks() ChunkStore
	Items() ItemStore
}

// TxRunner runs a function against transactional repositories.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// SummaryModelClient requests a JSON-shaped structured summary from the
// generative model.
type SummaryModelClient interface {
	GenerateStructuredSummary(ctx context.Context, system, user string) (string, error)
}

// UUIDGenerator produces identifiers for new rows.
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator generates random UUIDs.
type DefaultUUIDGenerator struct{}

func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

const summarySystemPrompt = "You are the Nexus Intelligence Engine. Summarize all information about this client."

// SummarizerService re-derives the structured summary for a client from
// its full chunk corpus. Concurrent calls for the same client collapse
// into a single flight so the summary upsert never interleaves.
type SummarizerService struct {
	chunks   ChunkStore
	model    SummaryModelClient
	txRunner TxRunner
	uuidGen  UUIDGenerator
	timeout  time.Duration
	group    singleflight.Group
}

// NewSummarizerService creates a new SummarizerService instance.
func NewSummarizerService(chunks ChunkStore, model SummaryModelClient, txRunner TxRunner, timeout time.Duration) *SummarizerService {
	return &SummarizerService{
		chunks:   chunks,
		model:    model,
		txRunner: txRunner,
		uuidGen:  &DefaultUUIDGenerator{},
		timeout:  timeout,
	}
}

// Summarize regenerates the client's summary from all chunks ever
// recorded for it. The current summary row is replaced wholesale and a
// version snapshot is appended in the same transaction.
func (s *SummarizerService) Summarize(ctx context.Context, clientID string) error {
	_, err, _ := s.group.Do(clientID, func() (interface{}, error) {
		return nil, s.summarize(ctx, clientID)
	})
	return err
}

func (s *SummarizerService) summarize(ctx context.Context, clientID string) error {
	ctx, span := telemetry.StartSpan(ctx, "SummarizerService.Summarize", telemetry.SpanAttributes{
		ClientID:  clientID,
		Operation: "summarize",
	})
	defer span.End()

	listCtx, cancel := s.callContext(ctx)
	contents, err := s.chunks.ListContentByClient(listCtx, clientID)
	cancel()
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeSummarizationFailed, "failed to load client corpus", err)
	}
	if len(contents) == 0 {
		return domain.ErrEmptySummaryCorpus
	}

	corpus := strings.Join(contents, "\n\n")

	modelCtx, cancelModel := s.callContext(ctx)
	defer cancelModel()

	raw, err := s.model.GenerateStructuredSummary(modelCtx, summarySystemPrompt, buildSummaryPrompt(corpus))
	if err != nil {
		span.SetError(err)
		return err
	}

	summary, err := domain.ParseSummaryPayload(clientID, []byte(raw))
	if err != nil {
		return err
	}
	summary.UpdatedAt = time.Now().UTC()

	snapshot, err := summary.Snapshot()
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeSummarizationFailed, "failed to serialize summary snapshot", err)
	}

	version := &domain.SummaryVersion{
		ID:        s.uuidGen.NewString(),
		ClientID:  clientID,
		Snapshot:  snapshot,
		CreatedAt: summary.UpdatedAt,
	}

	txCtx, cancelTx := s.callContext(ctx)
	defer cancelTx()

	return s.txRunner.WithTx(txCtx, func(repos TxRepositories) error {
		if err := repos.Summaries().Upsert(txCtx, summary); err != nil {
			return err
		}
		return repos.Summaries().AppendVersion(txCtx, version)
	})
}

func (s *SummarizerService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func buildSummaryPrompt(corpus string) string {
	return fmt.Sprintf(`### RAW KNOWLEDGE:
%s

### TASK:
Produce a structured summary with the following fields:
- Short Summary (3 sentences)
- Long Summary (5-8 sentences)
- Key Insights (bulleted list)
- Next Actions (bulleted list, actionable)
- Risks (bulleted list)
- Opportunities (bulleted list)
- Sentiment (1 word: positive, neutral, or negative)
- Priority Score (1-10 based on urgency)

Output in JSON format.`, corpus)
}
