// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/pdfrag/ai"
	"github.com/poiesic/pdfrag/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder embeddings.Embedder
	dims     int
	logger   *slog.Logger
}

// newEmbedder builds the embedder from an already validated config.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	client, err := newClient(config.EmbeddingHost, config.EmbeddingAPIKey,
		openai.WithEmbeddingModel(config.EmbeddingModel))
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		dims:     config.EmbeddingDims,
		logger:   slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a standalone embedder from config.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
// Every vector is checked against the configured dimensionality.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, classifyError(ctx, err)
	}

	if len(vectors) != len(texts) {
		return nil, core.Transient(fmt.Errorf("%w: sent %d texts, got %d vectors",
			ai.ErrEmbeddingCount, len(texts), len(vectors)))
	}
	for i, v := range vectors {
		if len(v) != e.dims {
			return nil, fmt.Errorf("%w: embedding %d has %d dims, expected %d",
				core.ErrDimensionMismatch, i, len(v), e.dims)
		}
	}

	return vectors, nil
}
