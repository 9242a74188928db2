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

package ai

import (
	"errors"
	"net/url"
	"strings"
)

const (
	// DefaultEmbeddingHost is a local Ollama server.
	DefaultEmbeddingHost = "http://localhost:11434/v1"

	// DefaultAnswerHost is Gemini's OpenAI-compatible endpoint.
	DefaultAnswerHost = "https://generativelanguage.googleapis.com/v1beta/openai"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string `yaml:"embedding_host"`

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "all-minilm", "text-embedding-3-small"
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingDims is the length of every vector the embedding model returns.
	// It must match the dims of the collection the vectors are stored in.
	// Default: 384
	EmbeddingDims int `yaml:"embedding_dims"`

	// EmbeddingAPIKey authenticates against the embedding host. Local servers
	// usually ignore it.
	EmbeddingAPIKey string `yaml:"-"`

	// AnswerHost is the base URL for the chat completion API.
	AnswerHost string `yaml:"answer_host"`

	// AnswerModel is the model identifier used to answer questions.
	// Example: "gemini-2.0-flash", "gpt-4o-mini"
	AnswerModel string `yaml:"answer_model"`

	// AnswerAPIKey authenticates against the answer host.
	AnswerAPIKey string `yaml:"-"`
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithAnswerHost sets the answer service host URL.
func WithAnswerHost(host string) ConfigOption {
	return func(c *Config) {
		c.AnswerHost = host
	}
}

// WithHost sets both embedding and answer hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.AnswerHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEmbeddingDims sets the expected embedding dimensionality.
func WithEmbeddingDims(dims int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingDims = dims
	}
}

// WithAnswerModel sets the answer model identifier.
func WithAnswerModel(model string) ConfigOption {
	return func(c *Config) {
		c.AnswerModel = model
	}
}

// WithEmbeddingAPIKey sets the embedding service API key.
func WithEmbeddingAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingAPIKey = key
	}
}

// WithAnswerAPIKey sets the answer service API key.
func WithAnswerAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.AnswerAPIKey = key
	}
}

// WithAPIKey sets both API keys to the same value.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingAPIKey = key
		c.AnswerAPIKey = key
	}
}

// DefaultConfig returns a Config that embeds locally with all-minilm and
// answers with Gemini 2.0 Flash.
func DefaultConfig() *Config {
	return &Config{
		EmbeddingHost:  DefaultEmbeddingHost,
		EmbeddingModel: "all-minilm",
		EmbeddingDims:  384,
		AnswerHost:     DefaultAnswerHost,
		AnswerModel:    "gemini-2.0-flash",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://localhost:11434"),
//	    WithAnswerAPIKey(os.Getenv("GEMINI_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// Trailing slashes are removed, and a host given without any path gets the
// /v1 suffix most OpenAI-compatible servers (Ollama, LocalAI, vLLM) expect.
// Hosts that already carry a path are left alone.
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.AnswerHost = normalizeHost(c.AnswerHost)
}

func normalizeHost(host string) string {
	if host == "" {
		return host
	}
	host = strings.TrimRight(host, "/")
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return host
	}
	if u.Path == "" {
		return host + "/v1"
	}
	return host
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.AnswerHost == "" {
		return errors.New("ai config: AnswerHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.AnswerModel == "" {
		return errors.New("ai config: AnswerModel is required")
	}
	if c.EmbeddingDims <= 0 {
		return errors.New("ai config: EmbeddingDims must be positive")
	}
	return nil
}
