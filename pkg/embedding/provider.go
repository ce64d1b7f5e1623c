package embedding

import "context"

// EmbeddingProvider defines the interface for generating text embeddings
type EmbeddingProvider interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// PullProgress reports one step of a model download.
type PullProgress struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
}

// ModelHost is implemented by providers whose model must be acquired locally
// before Generate can serve requests.
type ModelHost interface {
	EmbeddingProvider

	// Probe checks reachability of the provider's distribution endpoint.
	Probe(ctx context.Context) error

	// Initialize loads the inference library surface. Failures here mean the
	// provider binary exists but cannot serve.
	Initialize(ctx context.Context) error

	// Pull downloads the model weights and tokenizer, reporting progress.
	Pull(ctx context.Context, onProgress func(PullProgress)) error
}
