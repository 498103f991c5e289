package embedder

import "context"

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	// Embed returns the embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the model name recorded alongside stored vectors.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Pinger is implemented by embedders that can check provider reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
