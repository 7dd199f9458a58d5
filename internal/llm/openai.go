package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIClient talks to the OpenAI API or any OpenAI-compatible endpoint
// (set BaseURL for Groq, OpenRouter or a local gateway). Calls go through
// a circuit breaker and a shared rate limiter, like the Ollama client.
type OpenAIClient struct {
	client         *openai.Client
	circuitBreaker *CircuitBreaker
	limiter        *rate.Limiter
	model          string
	embedModel     string
	timeout        time.Duration
}

// OpenAIConfig holds OpenAI client configuration.
type OpenAIConfig struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible providers.
	BaseURL string

	// Model is the chat model for completions (default: gpt-4o-mini)
	Model string

	// EmbedModel is the embedding model (default: text-embedding-3-small)
	EmbedModel string

	// Timeout is the per-request timeout (default: 30s)
	Timeout time.Duration

	// RequestsPerSecond limits outgoing calls (default: 5)
	RequestsPerSecond float64
}

// NewOpenAIClient creates a client for OpenAI or a compatible provider.
func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-3-small"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = 5
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(cfg),
		circuitBreaker: NewCircuitBreaker("openai"),
		limiter:        rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		model:          config.Model,
		embedModel:     config.EmbedModel,
		timeout:        config.Timeout,
	}, nil
}

// Complete sends a single-turn chat completion and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return "", err
	}

	return result.(string), nil
}

func (c *OpenAIClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// Embed generates an embedding for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return nil, err
	}

	return result.([]float32), nil
}

func (c *OpenAIClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("openai returned empty embedding vector")
	}

	return resp.Data[0].Embedding, nil
}

// GetModel returns the configured chat model name.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

var (
	_ TextGenerator      = (*OpenAIClient)(nil)
	_ EmbeddingGenerator = (*OpenAIClient)(nil)
)
