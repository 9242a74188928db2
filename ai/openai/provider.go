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
	"log/slog"

	"github.com/poiesic/pdfrag/ai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider bundles the embedder and answerer built from one ai.Config.
// The two services may live on different hosts with different keys.
type Provider struct {
	embedder *Embedder
	answerer *Answerer
	logger   *slog.Logger
}

// NewProvider validates config and builds both services from it.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}
	answerer, err := newAnswerer(config)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-provider")
	logger.Info("AI provider ready",
		"embedding_host", config.EmbeddingHost,
		"embedding_model", config.EmbeddingModel,
		"embedding_dims", config.EmbeddingDims,
		"embedding_key", config.EmbeddingAPIKey != "",
		"answer_host", config.AnswerHost,
		"answer_model", config.AnswerModel,
		"answer_key", config.AnswerAPIKey != "")

	return &Provider{
		embedder: embedder,
		answerer: answerer,
		logger:   logger,
	}, nil
}

func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

func (p *Provider) Answerer() ai.Answerer {
	return p.answerer
}

// Close is a no-op; the HTTP clients hold no resources of their own.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}

// newClient builds a langchaingo client against host. Local servers such as
// Ollama ignore the key, but the client refuses to start without one.
func newClient(host, apiKey string, opts ...openai.Option) (*openai.LLM, error) {
	if apiKey == "" {
		apiKey = "none"
	}
	base := []openai.Option{openai.WithBaseURL(host), openai.WithToken(apiKey)}
	return openai.New(append(base, opts...)...)
}
