package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	defaultOpenRouterEndpoint = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel    = "openai/text-embedding-3-small"
	defaultOpenRouterTimeout  = 60 * time.Second
)

// OpenRouterEmbedder calls the OpenAI-compatible embeddings endpoint of OpenRouter.
type OpenRouterEmbedder struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

type openRouterEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openRouterEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type OpenRouterOption func(*OpenRouterEmbedder)

func WithOpenRouterEndpoint(endpoint string) OpenRouterOption {
	return func(e *OpenRouterEmbedder) {
		if endpoint != "" {
			e.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

func WithOpenRouterModel(model string) OpenRouterOption {
	return func(e *OpenRouterEmbedder) {
		if model != "" {
			e.model = model
		}
	}
}

func WithOpenRouterKey(key string) OpenRouterOption {
	return func(e *OpenRouterEmbedder) {
		e.apiKey = strings.TrimSpace(key)
	}
}

func WithOpenRouterTimeout(timeout time.Duration) OpenRouterOption {
	return func(e *OpenRouterEmbedder) {
		e.client.Timeout = timeout
	}
}

// NewOpenRouterEmbedder fails without an API key. The key comes from the
// options, then BURROW_OPENROUTER_API_KEY, then OPENROUTER_API_KEY.
func NewOpenRouterEmbedder(opts ...OpenRouterOption) (*OpenRouterEmbedder, error) {
	e := &OpenRouterEmbedder{
		endpoint: defaultOpenRouterEndpoint,
		model:    defaultOpenRouterModel,
		client:   &http.Client{Timeout: defaultOpenRouterTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, name := range []string{"BURROW_OPENROUTER_API_KEY", "OPENROUTER_API_KEY"} {
		if e.apiKey != "" {
			break
		}
		e.apiKey = strings.TrimSpace(os.Getenv(name))
	}
	if e.apiKey == "" {
		return nil, errors.New("openrouter API key not set (use OPENROUTER_API_KEY or openrouter.api_key in config.yaml)")
	}
	return e, nil
}

func (e *OpenRouterEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+e.apiKey)
	header.Set("X-Title", "burrow")

	var result openRouterEmbedResponse
	err := postJSON(ctx, e.client, "openrouter", e.endpoint+"/embeddings", header,
		openRouterEmbedRequest{Model: e.model, Input: []string{text}}, &result, openRouterMessage)
	if err != nil {
		return nil, err
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, errors.New("openrouter returned no embeddings")
	}
	return result.Data[0].Embedding, nil
}

// openRouterMessage pulls error.message out of an OpenAI-style error body.
func openRouterMessage(body []byte) string {
	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &resp) != nil {
		return ""
	}
	return resp.Error.Message
}

func (e *OpenRouterEmbedder) Model() string {
	return e.model
}

func (e *OpenRouterEmbedder) Close() error {
	return nil
}

// Ping embeds a one-word input, which checks both reachability and the key.
func (e *OpenRouterEmbedder) Ping(ctx context.Context) error {
	_, err := e.Embed(ctx, "ping")
	return err
}
