package openai

import (
	"context"
	"errors"

	"github.com/dotlink-ops/nexus-ingest/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultEmbeddingDimensions = 1536
	// DefaultSummaryModel is the chat model used for structured summaries
	DefaultSummaryModel = openai.GPT4oMini
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, text string) ([]float32, error)
}

// CompletionAPI defines the interface for JSON-mode chat completions
type CompletionAPI interface {
	CreateJSONCompletion(ctx context.Context, system, user string) (string, error)
}

// Client wraps the OpenAI API for the ingest pipeline. A single rate
// limiter covers both embedding and summarization calls.
type Client struct {
	embeddings  EmbeddingAPI
	completions CompletionAPI
	dimensions  int
	limiter     *rate.Limiter
}

// OpenAIAdapter adapts the go-openai client to the pipeline interfaces.
type OpenAIAdapter struct {
	client         *openai.Client
	embeddingModel openai.EmbeddingModel
	summaryModel   string
}

func NewOpenAIAdapter(apiKey string, embeddingModel openai.EmbeddingModel, summaryModel string) *OpenAIAdapter {
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	if summaryModel == "" {
		summaryModel = DefaultSummaryModel
	}
	return &OpenAIAdapter{
		client:         openai.NewClient(apiKey),
		embeddingModel: embeddingModel,
		summaryModel:   summaryModel,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: a.embeddingModel,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned")
	}

	return resp.Data[0].Embedding, nil
}

// CreateJSONCompletion calls the OpenAI chat API with a JSON object
// response format and returns the raw message content.
func (a *OpenAIAdapter) CreateJSONCompletion(ctx context.Context, system, user string) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.summaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	SummaryModel        string
	// RequestsPerSecond throttles all OpenAI calls. Zero disables throttling.
	RequestsPerSecond float64
}

// NewClientWithConfig creates a new OpenAI client. Credentials and model
// choices come from the caller; a missing API key is caught by config
// validation at startup.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	adapter := NewOpenAIAdapter(cfg.APIKey, cfg.EmbeddingModel, cfg.SummaryModel)
	return &Client{
		embeddings:  adapter,
		completions: adapter,
		dimensions:  dimensions,
		limiter:     rate.NewLimiter(limit, 1),
	}
}

// GenerateEmbedding generates an embedding for the given text. A vector
// of the wrong dimension is a configuration error, not a retry case.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, domain.ErrEmptyEmbeddingInput
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	embedding, err := c.embeddings.CreateEmbeddings(ctx, text)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingFailed, "failed to create embedding", err)
	}

	if len(embedding) != c.dimensions {
		return nil, domain.ErrDimensionMismatch
	}

	return embedding, nil
}

// GenerateStructuredSummary asks the chat model for a JSON summary of the
// given corpus and returns the raw JSON text.
func (c *Client) GenerateStructuredSummary(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	content, err := c.completions.CreateJSONCompletion(ctx, system, user)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeSummarizationFailed, "failed to create summary completion", err)
	}
	if content == "" {
		return "", domain.NewDomainError(domain.ErrCodeSummarizationFailed, "summary completion was empty")
	}
	return content, nil
}

// Dimensions returns the configured embedding dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}
