package mock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/poiesic/pdfrag/core"
)

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Dims is the length of generated vectors.
	Dims int

	mu        sync.Mutex
	callCount int
	texts     []string
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions via GetMockEmbedder().
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dims: core.DefaultDims}
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	fn := m.record(text)

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	if fn != nil {
		vectors, err := fn(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vectors[0], nil
	}

	return generateDeterministicVector(text, m.Dims), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	fn := m.record(texts...)

	if fn != nil {
		return fn(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = generateDeterministicVector(text, m.Dims)
	}
	return embeddings, nil
}

func (m *MockEmbedder) record(texts ...string) func(context.Context, []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.texts = append(m.texts, texts...)
	return m.EmbedTextsFunc
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Texts returns every text passed to the embedder, in call order.
func (m *MockEmbedder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Reset clears the call count and recorded texts.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.texts = nil
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

// generateDeterministicVector creates a deterministic unit vector from text.
// It uses FNV hash to ensure the same text always produces the same vector.
func generateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000) / 1000.0
	}

	return core.NormalizeVector(vector)
}
