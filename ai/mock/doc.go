// Package mock provides test doubles for the ai package interfaces.
//
// The mocks are safe for concurrent use, so they can stand in for real
// services behind the orchestrator's worker pool.
//
// # Usage
//
//	embedder := mock.NewMockEmbedder()
//	embedder.Dims = 3
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return fixedVectors(texts), nil
//	}
//
//	answerer := mock.NewMockAnswerer()
//	provider := mock.NewMockProviderWithServices(embedder, answerer)
//
//	// later
//	assert.Equal(t, 1, answerer.CallCount())
//
// # Default Behavior
//
//   - MockEmbedder: deterministic unit vectors derived from an FNV hash of the text
//   - MockAnswerer: "answer from N contexts", where N counts "- " lines in the user prompt
//   - MockProvider: aggregates a mock embedder and answerer
package mock
