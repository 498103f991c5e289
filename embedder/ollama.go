package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaEndpoint = "http://localhost:11434"
	defaultOllamaModel    = "qwen3-embedding:8b"
	defaultOllamaTimeout  = 30 * time.Second
	ollamaPingTimeout     = 3 * time.Second
)

type OllamaEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
}

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type OllamaOption func(*OllamaEmbedder)

func WithOllamaEndpoint(endpoint string) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.endpoint = strings.TrimRight(endpoint, "/")
	}
}

func WithOllamaModel(model string) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.model = model
	}
}

func WithOllamaTimeout(timeout time.Duration) OllamaOption {
	return func(e *OllamaEmbedder) {
		e.client.Timeout = timeout
	}
}

func NewOllamaEmbedder(opts ...OllamaOption) *OllamaEmbedder {
	e := &OllamaEmbedder{
		endpoint: defaultOllamaEndpoint,
		model:    defaultOllamaModel,
		client: &http.Client{
			Timeout: defaultOllamaTimeout,
		},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var result ollamaEmbedResponse
	err := postJSON(ctx, e.client, "ollama", e.endpoint+"/api/embed", nil,
		ollamaEmbedRequest{Model: e.model, Input: text}, &result, ollamaMessage)
	if err != nil {
		return nil, err
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned no embeddings for model %s", e.model)
	}
	return result.Embeddings[0], nil
}

// ollamaMessage reads the {"error": "..."} body Ollama sends on failure.
func ollamaMessage(body []byte) string {
	var resp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &resp) != nil {
		return ""
	}
	return resp.Error
}

func (e *OllamaEmbedder) Model() string {
	return e.model
}

func (e *OllamaEmbedder) Close() error {
	return nil
}

// Ping checks that the Ollama server answers on /api/tags.
func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ollamaPingTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/tags", e.endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("not reachable at %s: %w", e.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("returned status %d", resp.StatusCode)
	}

	return nil
}
