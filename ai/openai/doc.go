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

// Package openai provides AI service implementations using OpenAI-compatible APIs.
//
// Both services go through langchaingo's openai client, so any server that
// speaks the OpenAI wire format works: Ollama or LocalAI for embeddings,
// Gemini's compatibility endpoint for answers.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithEmbeddingHost("http://localhost:11434"), // /v1 added automatically
//	    ai.WithAnswerAPIKey(os.Getenv("GEMINI_API_KEY")),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, chunks)
//	answer, err := provider.Answerer().Complete(ctx, system, user)
//
// # Errors
//
// Rate limits, timeouts, 5xx responses and network failures wrap
// core.ErrTransient. Authentication and quota failures are returned
// unmarked and are not retried.
package openai
