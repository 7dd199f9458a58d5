package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// OllamaClient handles communication with the Ollama API for local LLM
// inference. All HTTP calls go through a circuit breaker and a shared
// rate limiter.
type OllamaClient struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
	limiter        *rate.Limiter
	model          string
	embedModel     string
	timeout        time.Duration
}

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434)
	BaseURL string

	// Model is the model name for completions (default: qwen2.5:7b)
	Model string

	// EmbedModel is the model name for embeddings (default: nomic-embed-text)
	EmbedModel string

	// Timeout is the per-request timeout (default: 30s)
	Timeout time.Duration

	// RequestsPerSecond limits outgoing calls (default: 5)
	RequestsPerSecond float64
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// The embeddings field is a 2D array; we always use the first embedding.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaClient creates a new Ollama client with the given configuration.
func NewOllamaClient(config OllamaConfig) *OllamaClient {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.Model == "" {
		config.Model = "qwen2.5:7b"
	}
	if config.EmbedModel == "" {
		config.EmbedModel = "nomic-embed-text"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = 5
	}

	return &OllamaClient{
		baseURL:        config.BaseURL,
		client:         &http.Client{Timeout: config.Timeout},
		circuitBreaker: NewCircuitBreaker("ollama"),
		limiter:        rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		model:          config.Model,
		embedModel:     config.EmbedModel,
		timeout:        config.Timeout,
	}
}

// Complete sends a completion request to Ollama and returns the response text.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return "", err
	}

	return result.(string), nil
}

func (c *OllamaClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return respData.Response, nil
}

// Embed generates an embedding for the given text with the embedding model.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama circuit breaker open: %w", err)
		}
		return nil, err
	}

	return result.([]float32), nil
}

func (c *OllamaClient) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := embedRequest{
		Model: c.embedModel,
		Input: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding vector")
	}

	return respData.Embeddings[0], nil
}

// HealthCheck verifies that Ollama is reachable via /api/version.
// It bypasses the circuit breaker since it is a health check itself.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// GetModel returns the configured completion model name.
func (c *OllamaClient) GetModel() string {
	return c.model
}

var (
	_ TextGenerator      = (*OllamaClient)(nil)
	_ EmbeddingGenerator = (*OllamaClient)(nil)
)
