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
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/pdfrag/chunker"
	"github.com/poiesic/pdfrag/core"
)

// sourceID returns the caller's source ID, defaulting to the document path.
func sourceID(req *core.IngestRequest) string {
	if id := strings.TrimSpace(req.SourceID); id != "" {
		return id
	}
	return req.PDFPath
}

// ingestKey rate limits ingestion per source ID.
func ingestKey(input []byte) (string, error) {
	req, err := core.Decode(core.IngestRequestMUS, input)
	if err != nil {
		return "", err
	}
	return sourceID(&req), nil
}

// load reads and chunks the requested document.
func (p *Pipelines) load(ctx context.Context, req core.IngestRequest) (core.LoadedDocument, error) {
	if err := core.ValidateIngestRequest(&req); err != nil {
		return core.LoadedDocument{}, err
	}
	id := sourceID(&req)
	p.logger.Info("loading document", "path", req.PDFPath, "source_id", id)

	pages, err := p.loader.Load(ctx, req.PDFPath)
	if err != nil {
		return core.LoadedDocument{}, err
	}

	chunks, err := chunker.Chunks(id, pages, p.splitter)
	if err != nil {
		return core.LoadedDocument{}, err
	}

	doc := core.LoadedDocument{
		Source:      req.PDFPath,
		SourceID:    id,
		Fingerprint: core.Fingerprint([]byte(strings.Join(pages, "\f"))),
		Chunks:      chunks,
	}
	p.logger.Info("document chunked",
		"source_id", id, "pages", len(pages), "chunks", len(chunks), "fingerprint", doc.Fingerprint[:12])
	return doc, nil
}

// embedAndUpsert embeds every chunk and writes the points in one upsert.
func (p *Pipelines) embedAndUpsert(ctx context.Context, doc core.LoadedDocument) (core.IngestResult, error) {
	if len(doc.Chunks) == 0 {
		p.logger.Warn("document produced no chunks", "source_id", doc.SourceID)
		return core.IngestResult{Ingested: 0}, nil
	}

	if _, err := p.store.EnsureCollection(ctx, p.collection, p.dims, core.MetricCosine); err != nil {
		return core.IngestResult{}, err
	}

	points := make([]*core.Point, 0, len(doc.Chunks))
	for start := 0; start < len(doc.Chunks); start += p.batchSize {
		batch := doc.Chunks[start:min(start+p.batchSize, len(doc.Chunks))]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := p.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return core.IngestResult{}, fmt.Errorf("embed chunks %d-%d: %w", start, start+len(batch)-1, err)
		}
		if len(vectors) != len(batch) {
			return core.IngestResult{}, core.Transient(fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch)))
		}

		for i, c := range batch {
			points = append(points, &core.Point{
				ID:     core.PointID(doc.SourceID, c.Index),
				Vector: vectors[i],
				Payload: core.Payload{
					Source:   doc.Source,
					Text:     c.Text,
					SourceID: doc.SourceID,
				},
			})
		}
	}

	if err := p.store.Upsert(ctx, p.collection, points...); err != nil {
		return core.IngestResult{}, err
	}

	p.logger.Info("document ingested", "source_id", doc.SourceID, "points", len(points), "collection", p.collection)
	return core.IngestResult{Ingested: len(points)}, nil
}
