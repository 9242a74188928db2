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
	"log/slog"
	"strings"

	"github.com/poiesic/pdfrag/ai"
	"github.com/poiesic/pdfrag/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Answerer implements ai.Answerer using OpenAI-compatible chat APIs.
type Answerer struct {
	client llms.Model
	logger *slog.Logger
}

// newAnswerer builds the answerer from an already validated config.
func newAnswerer(config *ai.Config) (*Answerer, error) {
	client, err := newClient(config.AnswerHost, config.AnswerAPIKey,
		openai.WithModel(config.AnswerModel))
	if err != nil {
		return nil, err
	}

	return &Answerer{
		client: client,
		logger: slog.Default().With("component", "openai-answerer"),
	}, nil
}

// NewAnswerer creates a standalone answerer from config.
func NewAnswerer(config *ai.Config) (ai.Answerer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newAnswerer(config)
}

// Complete sends the prompt pair as a system and a human message and returns
// the first choice.
func (a *Answerer) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(systemPrompt),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(userPrompt),
			},
		},
	}

	response, err := a.client.GenerateContent(ctx, content)
	if err != nil {
		a.logger.Error("failed to generate content", "err", err)
		return "", classifyError(ctx, err)
	}

	if len(response.Choices) < 1 {
		return "", core.Transient(ai.ErrNoChoices)
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}
