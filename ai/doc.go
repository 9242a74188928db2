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

// Package ai provides abstractions for the AI services pdfrag depends on.
//
// Two collaborators are modelled:
//
//   - Embedder: turns text into fixed-length vectors
//   - Answerer: sends a system and user prompt to a chat model
//
// AIProvider bundles both so they share configuration and lifecycle.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (Ollama for embeddings, Gemini for answers by default)
//   - ai/mock: deterministic test doubles
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behaviour and assert call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithAnswerAPIKey(os.Getenv("GEMINI_API_KEY")))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"Hello world"})
//	answer, err := provider.Answerer().Complete(ctx, system, user)
package ai
