package modelbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/localregistry/proxy/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ModelBackend = (*Client)(nil)

// Client implements driven.ModelBackend against a generic
// OpenAI-compatible embeddings/chat-completions HTTP contract, so either
// a hosted provider or a self-hosted backend can be configured purely by
// base URL and model identifiers (§4.2). It performs no retries.
type Client struct {
	apiKey          string
	embeddingModel  string
	generationModel string
	baseURL         string
	dimensions      int
	httpClient      *http.Client
}

// Config configures the model backend client.
type Config struct {
	APIKey          string
	BaseURL         string
	EmbeddingModel  string
	GenerationModel string
	Dimensions      int
	Timeout         time.Duration
}

// DefaultConfig returns sensible defaults; nominal 30s timeout per §4.2.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         baseURL,
		EmbeddingModel:  "text-embedding-3-small",
		GenerationModel: "gpt-4o-mini",
		Dimensions:      768,
		Timeout:         30 * time.Second,
	}
}

// NewClient constructs a model backend client.
func NewClient(cfg Config) *Client {
	return &Client{
		apiKey:          cfg.APIKey,
		embeddingModel:  cfg.EmbeddingModel,
		generationModel: cfg.GenerationModel,
		baseURL:         cfg.BaseURL,
		dimensions:      cfg.Dimensions,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type embeddingRequest struct {
	Input          any    `json:"input"`
	Model          string `json:"model"`
	EncodingFormat string `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

func (r *embeddingResponse) apiErr() *apiError { return r.Error }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

func (r *chatResponse) apiErr() *apiError { return r.Error }

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorer interface {
	apiErr() *apiError
}

// Embed generates one embedding vector per input text, in order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embeddingRequest{
		Input:          texts,
		Model:          c.embeddingModel,
		EncodingFormat: "float",
	}

	var resp embeddingResponse
	if err := c.doRequest(ctx, "/embeddings", reqBody, &resp); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	return embeddings, nil
}

// EmbedQuery is a convenience wrapper over Embed for a single text.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 || embeddings[0] == nil {
		return nil, fmt.Errorf("modelbackend: no embedding returned for query")
	}
	return embeddings[0], nil
}

// Generate produces a free-form completion for a prompt using a single
// user message. Errors here are meant to be translated by callers into
// a canned error answer, never an HTTP failure (§7).
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.generationModel,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
	}

	var resp chatResponse
	if err := c.doRequest(ctx, "/chat/completions", reqBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("modelbackend: no completion returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Dimensions returns the configured embedding model's vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// HealthCheck verifies the backend is reachable by attempting a tiny
// embedding call.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.EmbedQuery(ctx, "health check")
	return err
}

func (c *Client) doRequest(ctx context.Context, path string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("modelbackend: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("modelbackend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("modelbackend: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("modelbackend: read response: %w", err)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("modelbackend: parse response: %w", err)
	}

	if e, ok := out.(errorer); ok {
		if apiErr := e.apiErr(); apiErr != nil {
			return fmt.Errorf("modelbackend: api error: %s (%s)", apiErr.Message, apiErr.Type)
		}
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modelbackend: status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
