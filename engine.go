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

package pdfrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/pdfrag/ai"
	"github.com/poiesic/pdfrag/ai/openai"
	"github.com/poiesic/pdfrag/chunker"
	"github.com/poiesic/pdfrag/config"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/orchestrator"
	"github.com/poiesic/pdfrag/rag"
	"github.com/poiesic/pdfrag/ratelimit"
	"github.com/poiesic/pdfrag/server"
	"github.com/poiesic/pdfrag/storage"
	"github.com/poiesic/pdfrag/storage/badger"
)

// Engine owns every long-lived component of a pdfrag process. It is built
// once at startup and passed by handle; nothing here is global.
type Engine struct {
	config    *config.Config
	backend   *badger.Backend
	store     *badger.CollectionStore
	runs      *badger.RunRepository
	provider  ai.AIProvider
	gate      *ratelimit.Gate
	pipelines *rag.Pipelines
	orch      *orchestrator.Orchestrator
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	provider ai.AIProvider
	inMemory bool
	logger   *slog.Logger
}

// WithAIProvider replaces the OpenAI-compatible provider built from the config.
func WithAIProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithInMemoryStorage keeps all data in memory. DataDir is ignored.
func WithInMemoryStorage() EngineOption {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewEngine opens storage and wires the pipelines described by cfg.
func NewEngine(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := options.logger

	backend, err := badger.OpenBackend(cfg.DataDir, options.inMemory)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		config:  cfg,
		backend: backend,
		runs:    badger.NewRunRepository(backend),
		logger:  logger.With("component", "engine"),
	}

	e.store, err = badger.NewCollectionStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	e.provider = options.provider
	if e.provider == nil {
		e.provider, err = openai.NewProvider(&cfg.AI)
		if err != nil {
			e.closeStorage()
			return nil, err
		}
	}

	if err := e.wire(logger); err != nil {
		e.provider.Close()
		e.closeStorage()
		return nil, err
	}

	e.ensureCollection(context.Background())
	return e, nil
}

func (e *Engine) wire(logger *slog.Logger) error {
	cfg := e.config

	gate, err := ratelimit.NewGate(cfg.RateLimit, ratelimit.WithLogger(logger))
	if err != nil {
		return err
	}
	e.gate = gate

	splitter, err := chunker.New(cfg.Chunker.Kind, cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		return err
	}

	e.pipelines, err = rag.New(e.store, e.provider,
		rag.WithCollection(cfg.Collection),
		rag.WithDims(cfg.AI.EmbeddingDims),
		rag.WithTopK(cfg.TopK),
		rag.WithSplitter(splitter),
		rag.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	e.orch, err = orchestrator.New(e.runs,
		orchestrator.WithConfig(cfg.Orchestrator),
		orchestrator.WithGate(gate),
		orchestrator.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if err := e.pipelines.Register(e.orch); err != nil {
		e.orch.Close()
		return err
	}
	return nil
}

// ensureCollection creates the collection up front. A dimension mismatch is
// reported here and again by every ingest until the collection is reset.
func (e *Engine) ensureCollection(ctx context.Context) {
	_, err := e.store.EnsureCollection(ctx, e.config.Collection, e.config.AI.EmbeddingDims, core.MetricCosine)
	if errors.Is(err, storage.ErrDimensionMismatch) {
		e.logger.Error("collection dimensions differ from the embedding model; run reset-collection",
			"collection", e.config.Collection, "dims", e.config.AI.EmbeddingDims, "err", err)
		return
	}
	if err != nil {
		e.logger.Error("failed to create collection", "collection", e.config.Collection, "err", err)
	}
}

// Close stops the orchestrator, waits for in-flight steps and closes storage.
func (e *Engine) Close() error {
	if err := e.orch.Close(); err != nil {
		e.logger.Error("error closing orchestrator", "err", err)
	}
	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing AI provider", "err", err)
	}
	return e.closeStorage()
}

func (e *Engine) closeStorage() error {
	if err := e.runs.Close(); err != nil {
		e.logger.Error("error closing run repository", "err", err)
		return err
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing collection store", "err", err)
		return err
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (e *Engine) Config() *config.Config {
	return e.config
}

func (e *Engine) Orchestrator() *orchestrator.Orchestrator {
	return e.orch
}

func (e *Engine) VectorStore() storage.VectorStore {
	return e.store
}

func (e *Engine) RunRepository() storage.RunRepository {
	return e.runs
}

// Resume re-schedules runs left Pending or Running by a previous process.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	return e.orch.Resume(ctx)
}

// NewServer creates the HTTP API over the engine's orchestrator.
func (e *Engine) NewServer(opts ...server.Option) (*server.Server, error) {
	base := []server.Option{server.WithLogger(e.logger)}
	for name, decode := range rag.EventDecoders() {
		base = append(base, server.WithEvent(name, decode))
	}
	if len(e.config.CORSOrigins) > 0 {
		base = append(base, server.WithCORS(e.config.CORSOrigins...))
	}
	return server.New(e.orch, append(base, opts...)...)
}

// CollectionInfo describes the configured collection.
type CollectionInfo struct {
	Collection *core.Collection
	Points     int
}

// Collection reports the configured collection and its point count.
func (e *Engine) Collection(ctx context.Context) (*CollectionInfo, error) {
	collection, err := e.store.GetCollection(ctx, e.config.Collection)
	if err != nil {
		return nil, err
	}
	count, err := e.store.Count(ctx, e.config.Collection, nil)
	if err != nil {
		return nil, err
	}
	return &CollectionInfo{Collection: collection, Points: count}, nil
}

// ResetCollection drops the configured collection with every point in it and
// recreates it empty with the configured dimensions.
func (e *Engine) ResetCollection(ctx context.Context) (*core.Collection, error) {
	name := e.config.Collection
	if old, err := e.store.GetCollection(ctx, name); err == nil {
		e.logger.Info("dropping collection", "collection", name, "dims", old.Dims)
	}
	if err := e.store.DropCollection(ctx, name); err != nil {
		return nil, err
	}
	collection, err := e.store.EnsureCollection(ctx, name, e.config.AI.EmbeddingDims, core.MetricCosine)
	if err != nil {
		return nil, err
	}
	e.logger.Info("collection recreated", "collection", name, "dims", collection.Dims, "metric", collection.Metric)
	return collection, nil
}
