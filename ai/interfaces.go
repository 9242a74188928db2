package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Every returned vector has the same dimensionality.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Answerer sends a prompt pair to a language model and returns its reply.
// Implementations must be thread-safe for concurrent use.
type Answerer interface {
	// Complete returns the model's answer to userPrompt under systemPrompt.
	// Retryable provider failures wrap core.ErrTransient; authentication and
	// quota failures do not.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and Answerer instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Answerer returns the answer generation service.
	Answerer() Answerer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
