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
	"errors"

	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/storage"
)

// embedAndSearch embeds the question and retrieves the closest chunks.
// A collection that does not exist yet yields no contexts.
func (p *Pipelines) embedAndSearch(ctx context.Context, req core.QueryRequest) (core.RetrievedContext, error) {
	if err := core.ValidateQueryRequest(&req); err != nil {
		return core.RetrievedContext{}, err
	}
	topK := req.TopK
	if topK == 0 {
		topK = p.topK
	}

	vector, err := p.embedder.EmbedText(ctx, req.Question)
	if err != nil {
		return core.RetrievedContext{}, err
	}

	var filter *storage.Filter
	if req.SourceID != "" {
		filter = &storage.Filter{SourceID: req.SourceID}
	}

	rc := core.RetrievedContext{Question: req.Question, Contexts: []string{}, Sources: []string{}}
	result, err := p.store.Search(ctx, p.collection, vector, topK, filter)
	switch {
	case errors.Is(err, storage.ErrCollectionNotFound):
		p.logger.Warn("collection does not exist, nothing to search", "collection", p.collection)
		return rc, nil
	case err != nil:
		return core.RetrievedContext{}, err
	}

	rc.Contexts = append(rc.Contexts, result.Contexts...)
	rc.Sources = append(rc.Sources, result.Sources...)
	p.logger.Debug("contexts retrieved", "top_k", topK, "found", len(rc.Contexts), "source_id", req.SourceID)
	return rc, nil
}

// answer asks the answerer to respond from the retrieved contexts.
func (p *Pipelines) answer(ctx context.Context, rc core.RetrievedContext) (core.QueryResult, error) {
	reply, err := p.answerer.Complete(ctx, SystemPrompt, UserPrompt(rc.Question, rc.Contexts))
	if err != nil {
		return core.QueryResult{}, err
	}

	sources := rc.Sources
	if sources == nil {
		sources = []string{}
	}
	return core.QueryResult{
		Answer:      reply,
		Sources:     sources,
		NumContexts: len(rc.Contexts),
	}, nil
}
