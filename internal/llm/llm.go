// Package llm provides the language-model capability the rest of the engine
// depends on: text generation and batch embeddings. The pipeline only ever
// sees the two small interfaces below; the OpenAI-backed client is injected
// once per run.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/viper"
)

const (
	// DefaultModel is the default chat model for ranking and labeling.
	DefaultModel = "gpt-4o-mini"
	// DefaultEmbeddingModel is the default model for article embeddings.
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimensions is the embedding output dimension.
	DefaultEmbeddingDimensions = 256
	// DefaultRequestTimeout bounds a single API call.
	DefaultRequestTimeout = 30 * time.Second
)

// ErrUnavailable is returned when no embedding or generation backend is
// configured. Callers may degrade (keyword-only clustering, first-k ranking).
var ErrUnavailable = errors.New("llm: no backend configured")

// Generator produces free-form text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder produces one embedding vector per input text, preserving order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimension() int
}

// Client is the OpenAI-backed implementation of Generator and Embedder.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
	dimensions     int
	timeout        time.Duration
}

// NewClient creates a client from the environment and viper configuration.
// The API key is taken from OPENAI_API_KEY, then ai.openai.api_key.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = viper.GetString("ai.openai.api_key")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set OPENAI_API_KEY or ai.openai.api_key", ErrUnavailable)
	}

	model := viper.GetString("ai.openai.model")
	if model == "" {
		model = DefaultModel
	}
	embeddingModel := viper.GetString("ai.openai.embedding_model")
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	dimensions := viper.GetInt("ai.openai.embedding_dimensions")
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := viper.GetString("ai.openai.base_url"); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &Client{
		api:            openai.NewClientWithConfig(cfg),
		model:          model,
		embeddingModel: embeddingModel,
		dimensions:     dimensions,
		timeout:        DefaultRequestTimeout,
	}, nil
}

// Generate sends a single-user-message chat completion and returns the text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from model %s", c.model)
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.embeddingModel),
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float64, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vec := make([]float64, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float64(v)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}

// Dimension returns the configured embedding dimension.
func (c *Client) Dimension() int {
	return c.dimensions
}
