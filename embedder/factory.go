package embedder

import (
	"fmt"
	"time"

	"github.com/burrowapp/burrow/config"
)

// NewFromConfig creates the Embedder selected by models.embedding.provider.
func NewFromConfig(cfg *config.Config) (Embedder, error) {
	timeout := time.Duration(cfg.Ollama.TimeoutSecs) * time.Second

	switch cfg.Models.Embedding.Provider {
	case "ollama", "":
		return NewOllamaEmbedder(
			WithOllamaEndpoint(cfg.Ollama.URL),
			WithOllamaModel(cfg.Models.Embedding.Name),
			WithOllamaTimeout(timeout),
		), nil

	case "openrouter":
		return NewOpenRouterEmbedder(
			WithOpenRouterModel(cfg.Models.Embedding.Name),
			WithOpenRouterKey(cfg.OpenRouter.APIKey),
			WithOpenRouterTimeout(timeout),
		)

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Models.Embedding.Provider)
	}
}
