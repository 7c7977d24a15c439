package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dotlink-ops/nexus-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockItemStore mocks the item feed
type MockItemStore struct {
	mock.Mock
}

func (m *MockItemStore) ListUnprocessed(ctx context.Context, limit int) ([]*domain.KnowledgeItem, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeItem), args.Error(1)
}

func (m *MockItemStore) SetState(ctx context.Context, id string, state domain.ItemState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *MockItemStore) MarkProcessed(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// FakeChunkStore records chunk and embedding writes in memory.
type FakeChunkStore struct {
	mu         sync.Mutex
	chunks     []*domain.KnowledgeChunk
	embeddings []*domain.KnowledgeEmbedding
	chunkErr   error
	embedErr   error
}

func (f *FakeChunkStore) UpsertChunk(ctx context.Context, c *domain.KnowledgeChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chunkErr != nil {
		return f.chunkErr
	}
	copied := *c
	f.chunks = append(f.chunks, &copied)
	return nil
}

func (f *FakeChunkStore) UpsertEmbedding(ctx context.Context, e *domain.KnowledgeEmbedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return f.embedErr
	}
	copied := *e
	f.embeddings = append(f.embeddings, &copied)
	return nil
}

func (f *FakeChunkStore) ListContentByClient(ctx context.Context, clientID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var contents []string
	for _, c := range f.chunks {
		if c.ClientID == clientID {
			contents = append(contents, c.Content)
		}
	}
	return contents, nil
}

func (f *FakeChunkStore) CountMissingEmbeddings(ctx context.Context, itemID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	embedded := make(map[string]bool, len(f.embeddings))
	for _, e := range f.embeddings {
		embedded[e.ChunkID] = true
	}
	missing := 0
	for _, c := range f.chunks {
		if c.ItemID == itemID && !embedded[c.ID] {
			missing++
		}
	}
	return missing, nil
}

// FakeEmbedder returns fixed-dimension vectors and can fail on a chosen call.
type FakeEmbedder struct {
	mu      sync.Mutex
	calls   int
	failOn  int // 1-based call number to fail on; 0 never fails
	failErr error
}

func (f *FakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn > 0 && f.calls == f.failOn {
		if f.failErr != nil {
			return nil, f.failErr
		}
		return nil, errors.New("embedding timeout")
	}
	return make([]float32, 1536), nil
}

// FakeCounter counts whitespace words as tokens.
type FakeCounter struct{}

func (FakeCounter) CountTokens(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// MockSummarizer mocks the client summarizer
type MockSummarizer struct {
	mock.Mock
}

func (m *MockSummarizer) Summarize(ctx context.Context, clientID string) error {
	args := m.Called(ctx, clientID)
	return args.Error(0)
}

func newTestIngest(t *testing.T, items ItemStore, chunks ChunkStore, embedder EmbeddingClient, summarizer ClientSummarizer, maxWords int) *IngestService {
	t.Helper()
	svc, err := NewIngestService(items, chunks, embedder, FakeCounter{}, summarizer, IngestConfig{
		ChunkConfig: ChunkConfig{MaxWords: maxWords},
		PoolSize:    2,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func testItem(id, clientID, text string) *domain.KnowledgeItem {
	return &domain.KnowledgeItem{
		ID:       id,
		ClientID: clientID,
		RawText:  text,
		Metadata: map[string]interface{}{},
	}
}

func TestIngestService_ProcessItem_Success(t *testing.T) {
	items := new(MockItemStore)
	chunks := &FakeChunkStore{}
	embedder := &FakeEmbedder{}
	summarizer := new(MockSummarizer)
	svc := newTestIngest(t, items, chunks, embedder, summarizer, 350)

	ctx := context.Background()
	item := testItem("item-1", "client-1", wordsOfCount(400))

	items.On("SetState", mock.Anything, "item-1", domain.ItemStateChunked).Return(nil)
	items.On("SetState", mock.Anything, "item-1", domain.ItemStateEmbedded).Return(nil)
	items.On("MarkProcessed", mock.Anything, "item-1").Return(nil)

	err := svc.ProcessItem(ctx, item)

	require.NoError(t, err)
	require.Len(t, chunks.chunks, 2)
	assert.Equal(t, 0, chunks.chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks.chunks[1].ChunkIndex)
	assert.Equal(t, 350, chunks.chunks[0].TokenCount)
	assert.Equal(t, 50, chunks.chunks[1].TokenCount)
	require.Len(t, chunks.embeddings, 2)
	assert.Equal(t, chunks.chunks[0].ID, chunks.embeddings[0].ChunkID)
	assert.Equal(t, chunks.chunks[1].ID, chunks.embeddings[1].ChunkID)
	items.AssertExpectations(t)
}

func TestIngestService_ProcessItem_ChunkIndicesContiguous(t *testing.T) {
	items := new(MockItemStore)
	chunks := &FakeChunkStore{}
	svc := newTestIngest(t, items, chunks, &FakeEmbedder{}, new(MockSummarizer), 10)

	ctx := context.Background()
	item := testItem("item-1", "client-1", wordsOfCount(95))

	items.On("SetState", mock.Anything, "item-1", mock.Anything).Return(nil)
	items.On("MarkProcessed", mock.Anything, "item-1").Return(nil)

	require.NoError(t, svc.ProcessItem(ctx, item))

	require.Len(t, chunks.chunks, 10)
	for i, c := range chunks.chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}
}

func TestIngestService_ProcessItem_EmptyText(t *testing.T) {
	items := new(MockItemStore)
	chunks := &FakeChunkStore{}
	embedder := &FakeEmbedder{}
	svc := newTestIngest(t, items, chunks, embedder, new(MockSummarizer), 350)

	ctx := context.Background()
	item := testItem("item-empty", "client-1", "")

	items.On("SetState", mock.Anything, "item-empty", domain.ItemStateChunked).Return(nil)
	items.On("MarkProcessed", mock.Anything, "item-empty").Return(nil)

	err := svc.ProcessItem(ctx, item)

	// Zero chunks is a valid outcome: nothing to embed, item is done.
	require.NoError(t, err)
	assert.Empty(t, chunks.chunks)
	assert.Empty(t, chunks.embeddings)
	assert.Equal(t, 0, embedder.calls)
	items.AssertExpectations(t)
	items.AssertNotCalled(t, "SetState", mock.Anything, "item-empty", domain.ItemStateEmbedded)
}

func TestIngestService_ProcessItem_AlreadyProcessedSkipped(t *testing.T) {
	items := new(MockItemStore)
	chunks := &FakeChunkStore{}
	embedder := &FakeEmbedder{}
	svc := newTestIngest(t, items, chunks, embedder, new(MockSummarizer), 350)

	item := testItem("item-done", "client-1", wordsOfCount(10))
	item.Metadata[domain.MetadataKeyProcessed] = true

	err := svc.ProcessItem(context.Background(), item)

	require.NoError(t, err)
	assert.Empty(t, chunks.chunks)
	assert.Equal(t, 0, embedder.calls)
	items.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestIngestService_ProcessItem_EmbeddingFailureLeavesItemUnprocessed(t *testing.T) {
	items := new(MockItemStore)
	chunks := &FakeChunkStore{}
	// Fail on the second of three embedding calls.
	embedder := &FakeEmbedder{failOn: 2}
	svc := newTestIngest(t, items, chunks, embedder, new(MockSummarizer), 10)

	ctx := context.Background()
	item := testItem("item-1", "client-1", wordsOfCount(30))

	items.On("SetState", mock.Anything, "item-1", domain.ItemStateChunked).Return(nil)
	items.On("SetState", mock.Anything, "item-1", domain.ItemStateFailed).Return(nil)

	err := svc.ProcessItem(ctx, item)

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeEmbeddingFailed))
	// Chunk rows written before the failure stay; the flag is never set.
	assert.Len(t, chunks.chunks, 2)
	assert.Len(t, chunks.embeddings, 1)
	items.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
	items.AssertExpectations(t)
}

func TestIngestService_ProcessItem_ChunkWriteFailure(t *testing.T) {
	items := new(MockItemStore)
	chunks := &FakeChunkStore{chunkErr: domain.NewDomainError(domain.ErrCodeStoreWriteFailed, "connection reset")}
	svc := newTestIngest(t, items, chunks, &FakeEmbedder{}, new(MockSummarizer), 10)

	ctx := context.Background()
	item := testItem("item-1", "client-1", wordsOfCount(5))

	items.On("SetState", mock.Anything, "item-1", domain.ItemStateChunked).Return(nil)
	items.On("SetState", mock.Anything, "item-1", domain.ItemStateFailed).Return(nil)

	err := svc.ProcessItem(ctx, item)

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeStoreWriteFailed))
	items.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
}

func TestIngestService_ProcessPending_SummarizesOncePerItem(t *testing.T) {
	items := new(MockItemStore)
	chunks := &FakeChunkStore{}
	summarizer := new(MockSummarizer)
	svc := newTestIngest(t, items, chunks, &FakeEmbedder{}, summarizer, 350)

	ctx := context.Background()
	pending := []*domain.KnowledgeItem{
		testItem("item-1", "client-a", wordsOfCount(10)),
		testItem("item-2", "client-b", wordsOfCount(10)),
	}

	items.On("ListUnprocessed", ctx, mock.Anything).Return(pending, nil)
	items.On("SetState", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	items.On("MarkProcessed", mock.Anything, "item-1").Return(nil)
	items.On("MarkProcessed", mock.Anything, "item-2").Return(nil)
	summarizer.On("Summarize", ctx, "client-a").Return(nil).Once()
	summarizer.On("Summarize", ctx, "client-b").Return(nil).Once()

	err := svc.ProcessPending(ctx)

	require.NoError(t, err)
	items.AssertExpectations(t)
	summarizer.AssertExpectations(t)
}

func TestIngestService_ProcessPending_SummarizationFailureIsNonFatal(t *testing.T) {
	items := new(MockItemStore)
	chunks := &FakeChunkStore{}
	summarizer := new(MockSummarizer)
	svc := newTestIngest(t, items, chunks, &FakeEmbedder{}, summarizer, 350)

	ctx := context.Background()
	pending := []*domain.KnowledgeItem{testItem("item-1", "client-a", wordsOfCount(10))}

	items.On("ListUnprocessed", ctx, mock.Anything).Return(pending, nil)
	items.On("SetState", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	items.On("MarkProcessed", mock.Anything, "item-1").Return(nil)
	summarizer.On("Summarize", ctx, "client-a").
		Return(domain.NewDomainError(domain.ErrCodeSummarizationFailed, "model error"))

	err := svc.ProcessPending(ctx)

	// The item stays processed even though its client summary failed.
	require.NoError(t, err)
	items.AssertExpectations(t)
}

func TestIngestService_ProcessPending_BadItemDoesNotAbortSweep(t *testing.T) {
	items := new(MockItemStore)
	chunks := &FakeChunkStore{}
	// First embedding call (item-1, single chunk) fails; item-2 embeds fine.
	summarizer := new(MockSummarizer)

	ctx := context.Background()
	pending := []*domain.KnowledgeItem{
		testItem("item-1", "client-a", wordsOfCount(10)),
		testItem("item-2", "client-a", wordsOfCount(10)),
	}

	failing := &FakeEmbedder{failOn: 1}
	svc := newTestIngest(t, items, chunks, failing, summarizer, 350)

	items.On("ListUnprocessed", ctx, mock.Anything).Return(pending, nil)
	items.On("SetState", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	items.On("MarkProcessed", mock.Anything, "item-2").Return(nil)
	summarizer.On("Summarize", ctx, "client-a").Return(nil).Once()

	err := svc.ProcessPending(ctx)

	require.NoError(t, err)
	items.AssertNotCalled(t, "MarkProcessed", mock.Anything, "item-1")
	items.AssertExpectations(t)
	summarizer.AssertExpectations(t)
}

func TestIngestService_ProcessPending_StoreCallsCarryDeadline(t *testing.T) {
	items := new(MockItemStore)
	chunks := &FakeChunkStore{}
	summarizer := new(MockSummarizer)
	svc, err := NewIngestService(items, chunks, &FakeEmbedder{}, FakeCounter{}, summarizer, IngestConfig{
		ChunkConfig: ChunkConfig{MaxWords: 350},
		Timeout:     time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	hasDeadline := mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	})

	pending := []*domain.KnowledgeItem{testItem("item-1", "client-a", wordsOfCount(10))}

	// Every database touch in the sweep runs under the per-call timeout,
	// so a stalled connection cannot hang the worker.
	items.On("ListUnprocessed", hasDeadline, mock.Anything).Return(pending, nil)
	items.On("SetState", hasDeadline, "item-1", mock.Anything).Return(nil)
	items.On("MarkProcessed", hasDeadline, "item-1").Return(nil)
	summarizer.On("Summarize", mock.Anything, "client-a").Return(nil)

	require.NoError(t, svc.ProcessPending(context.Background()))
	items.AssertExpectations(t)
}

func TestIngestService_ProcessPending_EmptyFeed(t *testing.T) {
	items := new(MockItemStore)
	summarizer := new(MockSummarizer)
	svc := newTestIngest(t, items, &FakeChunkStore{}, &FakeEmbedder{}, summarizer, 350)

	ctx := context.Background()
	items.On("ListUnprocessed", ctx, mock.Anything).Return([]*domain.KnowledgeItem{}, nil)

	require.NoError(t, svc.ProcessPending(ctx))
	summarizer.AssertNotCalled(t, "Summarize", mock.Anything, mock.Anything)
}

func TestIngestService_ProcessPending_ListFailure(t *testing.T) {
	items := new(MockItemStore)
	svc := newTestIngest(t, items, &FakeChunkStore{}, &FakeEmbedder{}, new(MockSummarizer), 350)

	ctx := context.Background()
	items.On("ListUnprocessed", ctx, mock.Anything).Return(nil, fmt.Errorf("connection refused"))

	err := svc.ProcessPending(ctx)

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeStoreWriteFailed))
}
