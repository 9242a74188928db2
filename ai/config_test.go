package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "all-minilm", cfg.EmbeddingModel)
	assert.Equal(t, 384, cfg.EmbeddingDims)
	assert.Equal(t, DefaultAnswerHost, cfg.AnswerHost)
	assert.Equal(t, "gemini-2.0-flash", cfg.AnswerModel)
	assert.Empty(t, cfg.AnswerAPIKey)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.AnswerHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithAnswerHost("http://answer:9090/v1"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://answer:9090/v1", cfg.AnswerHost)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingModel("text-embedding-3-small"),
			WithEmbeddingDims(1536),
			WithAnswerModel("gpt-4o-mini"),
			WithAPIKey("sk-test"),
		)

		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, 1536, cfg.EmbeddingDims)
		assert.Equal(t, "gpt-4o-mini", cfg.AnswerModel)
		assert.Equal(t, "sk-test", cfg.EmbeddingAPIKey)
		assert.Equal(t, "sk-test", cfg.AnswerAPIKey)
	})

	t.Run("separate keys", func(t *testing.T) {
		cfg := NewConfig(WithEmbeddingAPIKey("e"), WithAnswerAPIKey("a"))

		assert.Equal(t, "e", cfg.EmbeddingAPIKey)
		assert.Equal(t, "a", cfg.AnswerAPIKey)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{"already has /v1", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"missing /v1", "http://localhost:11434", "http://localhost:11434/v1"},
		{"has trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"v1 with trailing slash", "http://localhost:11434/v1/", "http://localhost:11434/v1"},
		{"gemini path kept", "https://generativelanguage.googleapis.com/v1beta/openai/", "https://generativelanguage.googleapis.com/v1beta/openai"},
		{"custom path kept", "http://proxy:8080/openai", "http://proxy:8080/openai"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host, AnswerHost: tt.host}

			cfg.Normalize()

			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
			assert.Equal(t, tt.expected, cfg.AnswerHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			EmbeddingHost:  "http://localhost:11434",
			EmbeddingModel: "all-minilm",
			EmbeddingDims:  384,
			AnswerHost:     "http://localhost:11434",
			AnswerModel:    "qwen2.5:3b",
		}
	}

	t.Run("valid config", func(t *testing.T) {
		cfg := valid()

		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://localhost:11434/v1", cfg.AnswerHost)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost"},
		{"missing answer host", func(c *Config) { c.AnswerHost = "" }, "AnswerHost"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel"},
		{"missing answer model", func(c *Config) { c.AnswerModel = "" }, "AnswerModel"},
		{"zero dims", func(c *Config) { c.EmbeddingDims = 0 }, "EmbeddingDims"},
		{"negative dims", func(c *Config) { c.EmbeddingDims = -1 }, "EmbeddingDims"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfigValidate_Integration(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	require.NoError(t, cfg.Validate())
}
