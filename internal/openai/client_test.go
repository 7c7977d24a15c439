package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/dotlink-ops/nexus-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// MockEmbeddingAPI is a mock implementation of EmbeddingAPI
type MockEmbeddingAPI struct {
	mock.Mock
}

func (m *MockEmbeddingAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockCompletionAPI is a mock implementation of CompletionAPI
type MockCompletionAPI struct {
	mock.Mock
}

func (m *MockCompletionAPI) CreateJSONCompletion(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

func newTestClient(embeddings EmbeddingAPI, completions CompletionAPI, dimensions int) *Client {
	return &Client{
		embeddings:  embeddings,
		completions: completions,
		dimensions:  dimensions,
		limiter:     rate.NewLimiter(rate.Inf, 1),
	}
}

func vectorOfDim(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = 0.1
	}
	return v
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	mockAPI.On("CreateEmbeddings", mock.Anything, "some text").Return(vectorOfDim(1536), nil)

	client := newTestClient(mockAPI, nil, 1536)
	embedding, err := client.GenerateEmbedding(context.Background(), "some text")

	require.NoError(t, err)
	assert.Len(t, embedding, 1536)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)

	client := newTestClient(mockAPI, nil, 1536)
	_, err := client.GenerateEmbedding(context.Background(), "")

	assert.ErrorIs(t, err, domain.ErrEmptyEmbeddingInput)
	mockAPI.AssertNotCalled(t, "CreateEmbeddings", mock.Anything, mock.Anything)
}

func TestClient_GenerateEmbedding_DimensionMismatch(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	mockAPI.On("CreateEmbeddings", mock.Anything, "some text").Return(vectorOfDim(768), nil)

	client := newTestClient(mockAPI, nil, 1536)
	_, err := client.GenerateEmbedding(context.Background(), "some text")

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestClient_GenerateEmbedding_APIError(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)
	mockAPI.On("CreateEmbeddings", mock.Anything, "some text").Return(nil, errors.New("429 too many requests"))

	client := newTestClient(mockAPI, nil, 1536)
	_, err := client.GenerateEmbedding(context.Background(), "some text")

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeEmbeddingFailed))
}

func TestClient_GenerateEmbedding_CancelledContext(t *testing.T) {
	mockAPI := new(MockEmbeddingAPI)

	client := newTestClient(mockAPI, nil, 1536)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GenerateEmbedding(ctx, "some text")

	require.Error(t, err)
	mockAPI.AssertNotCalled(t, "CreateEmbeddings", mock.Anything, mock.Anything)
}

func TestClient_GenerateStructuredSummary_Success(t *testing.T) {
	mockAPI := new(MockCompletionAPI)
	mockAPI.On("CreateJSONCompletion", mock.Anything, "system prompt", "user prompt").
		Return(`{"Short Summary": "ok"}`, nil)

	client := newTestClient(nil, mockAPI, 1536)
	content, err := client.GenerateStructuredSummary(context.Background(), "system prompt", "user prompt")

	require.NoError(t, err)
	assert.Equal(t, `{"Short Summary": "ok"}`, content)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateStructuredSummary_EmptyContent(t *testing.T) {
	mockAPI := new(MockCompletionAPI)
	mockAPI.On("CreateJSONCompletion", mock.Anything, mock.Anything, mock.Anything).Return("", nil)

	client := newTestClient(nil, mockAPI, 1536)
	_, err := client.GenerateStructuredSummary(context.Background(), "s", "u")

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeSummarizationFailed))
}

func TestClient_GenerateStructuredSummary_APIError(t *testing.T) {
	mockAPI := new(MockCompletionAPI)
	mockAPI.On("CreateJSONCompletion", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("model overloaded"))

	client := newTestClient(nil, mockAPI, 1536)
	_, err := client.GenerateStructuredSummary(context.Background(), "s", "u")

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeSummarizationFailed))
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	client := NewClientWithConfig(Config{APIKey: "test-key"})

	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())
}
