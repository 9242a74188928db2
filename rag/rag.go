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

package rag

import (
	"fmt"
	"log/slog"

	"github.com/poiesic/pdfrag/ai"
	"github.com/poiesic/pdfrag/chunker"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/loader"
	"github.com/poiesic/pdfrag/orchestrator"
	"github.com/poiesic/pdfrag/storage"
)

// Pipeline names, matching the event names that trigger them.
const (
	IngestPipeline = "rag/ingest_pdf"
	QueryPipeline  = "rag/query_pdf_ai"
)

// Step names.
const (
	StepLoad           = "load-and-chunk"
	StepEmbedAndUpsert = "embed-and-upsert"
	StepEmbedAndSearch = "embed-and-search"
	StepAnswer         = "answer"
)

const (
	// DefaultCollection is the collection both pipelines use.
	DefaultCollection = "docs"

	// DefaultBatchSize is how many chunks are embedded per request.
	DefaultBatchSize = 64
)

// Pipelines holds the collaborators shared by the ingest and query pipelines.
type Pipelines struct {
	store      storage.VectorStore
	embedder   ai.Embedder
	answerer   ai.Answerer
	loader     loader.Loader
	splitter   chunker.Splitter
	collection string
	dims       int
	topK       int
	batchSize  int
	logger     *slog.Logger
}

// Option configures Pipelines.
type Option func(*Pipelines) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipelines) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithCollection sets the collection name.
// Default is DefaultCollection.
func WithCollection(name string) Option {
	return func(p *Pipelines) error {
		if name == "" {
			return storage.ErrInvalidCollectionName
		}
		p.collection = name
		return nil
	}
}

// WithDims sets the dimensionality of the collection.
// Default is core.DefaultDims.
func WithDims(dims int) Option {
	return func(p *Pipelines) error {
		if dims <= 0 {
			return fmt.Errorf("%w: dims must be positive, got %d", core.ErrInput, dims)
		}
		p.dims = dims
		return nil
	}
}

// WithTopK sets the number of contexts retrieved when a query omits top_k.
// Default is core.DefaultTopK.
func WithTopK(k int) Option {
	return func(p *Pipelines) error {
		if k <= 0 {
			return fmt.Errorf("%w: got %d", storage.ErrInvalidTopK, k)
		}
		p.topK = k
		return nil
	}
}

// WithBatchSize sets how many chunks are sent to the embedder at once.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipelines) error {
		if size < 1 {
			size = 1
		}
		p.batchSize = size
		return nil
	}
}

// WithLoader replaces the document loader.
// Default is a loader.FileLoader.
func WithLoader(l loader.Loader) Option {
	return func(p *Pipelines) error {
		if l != nil {
			p.loader = l
		}
		return nil
	}
}

// WithSplitter replaces the chunk splitter.
// Default is a sentence splitter with core.DefaultChunkSize and core.DefaultOverlap.
func WithSplitter(s chunker.Splitter) Option {
	return func(p *Pipelines) error {
		if s != nil {
			p.splitter = s
		}
		return nil
	}
}

// New creates the pipelines over store and provider.
func New(store storage.VectorStore, provider ai.AIProvider, opts ...Option) (*Pipelines, error) {
	if store == nil {
		return nil, ErrVectorStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	p := &Pipelines{
		store:      store,
		embedder:   provider.Embedder(),
		answerer:   provider.Answerer(),
		collection: DefaultCollection,
		dims:       core.DefaultDims,
		topK:       core.DefaultTopK,
		batchSize:  DefaultBatchSize,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "rag")

	if p.loader == nil {
		p.loader = loader.NewFileLoader(loader.WithLogger(p.logger))
	}
	if p.splitter == nil {
		splitter, err := chunker.NewSentence(core.DefaultChunkSize, core.DefaultOverlap)
		if err != nil {
			return nil, err
		}
		p.splitter = splitter
	}

	return p, nil
}

// Collection returns the name of the collection the pipelines read and write.
func (p *Pipelines) Collection() string {
	return p.collection
}

// Ingest returns the ingestion pipeline.
func (p *Pipelines) Ingest() *orchestrator.Pipeline {
	return &orchestrator.Pipeline{
		Name: IngestPipeline,
		Steps: []orchestrator.Step{
			orchestrator.NewStep(StepLoad, core.IngestRequestMUS, core.LoadedDocumentMUS, p.load),
			orchestrator.NewStep(StepEmbedAndUpsert, core.LoadedDocumentMUS, core.IngestResultMUS, p.embedAndUpsert),
		},
		GateKey: ingestKey,
	}
}

// Query returns the question answering pipeline.
func (p *Pipelines) Query() *orchestrator.Pipeline {
	return &orchestrator.Pipeline{
		Name: QueryPipeline,
		Steps: []orchestrator.Step{
			orchestrator.NewStep(StepEmbedAndSearch, core.QueryRequestMUS, core.RetrievedContextMUS, p.embedAndSearch),
			orchestrator.NewStep(StepAnswer, core.RetrievedContextMUS, core.QueryResultMUS, p.answer),
		},
	}
}

// Register adds both pipelines to o.
func (p *Pipelines) Register(o *orchestrator.Orchestrator) error {
	if err := o.Register(p.Ingest()); err != nil {
		return err
	}
	return o.Register(p.Query())
}
