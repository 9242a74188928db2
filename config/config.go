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

// Package config loads the pdfrag configuration file.
//
// The file is YAML. Keys that are absent keep their defaults, so an empty
// file is a valid configuration. API keys are never read from or written to
// the file; they come from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/pdfrag/ai"
	"github.com/poiesic/pdfrag/chunker"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/orchestrator"
	"github.com/poiesic/pdfrag/ratelimit"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "pdfrag.yaml"

// ChunkerConfig selects how documents are split.
type ChunkerConfig struct {
	Kind    string `yaml:"kind"` // "sentence" or "window"
	Size    int    `yaml:"size"`
	Overlap int    `yaml:"overlap"`
}

// Config is the root configuration.
type Config struct {
	DataDir      string              `yaml:"data_dir"`
	Collection   string              `yaml:"collection"`
	Listen       string              `yaml:"listen"`
	CORSOrigins  []string            `yaml:"cors_origins,omitempty"`
	TopK         int                 `yaml:"top_k"`
	Chunker      ChunkerConfig       `yaml:"chunker"`
	AI           ai.Config           `yaml:"ai"`
	RateLimit    ratelimit.Config    `yaml:"rate_limit"`
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:    "pdfrag-data",
		Collection: "docs",
		Listen:     "127.0.0.1:8288",
		TopK:       core.DefaultTopK,
		Chunker: ChunkerConfig{
			Kind:    chunker.KindSentence,
			Size:    core.DefaultChunkSize,
			Overlap: core.DefaultOverlap,
		},
		AI:           *ai.DefaultConfig(),
		RateLimit:    ratelimit.DefaultConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
	}
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrInput, path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./pdfrag.yaml first, then ~/.config/pdfrag/config.yaml.
// If neither exists it returns the defaults and an empty path.
func LoadDefault() (*Config, string, error) {
	if _, err := os.Stat(FileName); err == nil {
		cfg, err := Load(FileName)
		return cfg, FileName, err
	}

	userPath, err := UserPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	return Default(), "", nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// UserPath returns the per-user config location.
func UserPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfrag", "config.yaml"), nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", core.ErrInput)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection is required", core.ErrInput)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", core.ErrInput, c.TopK)
	}
	if _, err := chunker.New(c.Chunker.Kind, c.Chunker.Size, c.Chunker.Overlap); err != nil {
		return fmt.Errorf("chunker: %w", err)
	}
	if err := c.AI.Validate(); err != nil {
		return fmt.Errorf("ai: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	if err := c.Orchestrator.Validate(); err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	return nil
}
