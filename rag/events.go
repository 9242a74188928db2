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
	"encoding/json"
	"fmt"

	"github.com/poiesic/pdfrag/core"
)

// EventDecoder converts the JSON data of an event into encoded run input.
type EventDecoder func(data []byte) ([]byte, error)

// EventDecoders returns the decoder for every event both pipelines accept,
// keyed by pipeline name.
func EventDecoders() map[string]EventDecoder {
	return map[string]EventDecoder{
		IngestPipeline: DecodeIngestEvent,
		QueryPipeline:  DecodeQueryEvent,
	}
}

// DecodeIngestEvent parses {"pdf_path", "source_id"?}.
func DecodeIngestEvent(data []byte) ([]byte, error) {
	var req core.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: ingest event: %w", core.ErrInput, err)
	}
	if err := core.ValidateIngestRequest(&req); err != nil {
		return nil, err
	}
	return core.Encode(core.IngestRequestMUS, req), nil
}

// queryEvent is the wire form of a query event. TopK is a pointer so an
// explicit zero can be told apart from an absent field.
type queryEvent struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k"`
	SourceID string `json:"source_id"`
}

// DecodeQueryEvent parses {"question", "top_k"?, "source_id"?}.
// An absent top_k selects the default; an explicit top_k must be positive.
func DecodeQueryEvent(data []byte) ([]byte, error) {
	var event queryEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("%w: query event: %w", core.ErrInput, err)
	}
	req := core.QueryRequest{Question: event.Question, SourceID: event.SourceID}
	if event.TopK != nil {
		if *event.TopK <= 0 {
			return nil, fmt.Errorf("%w: top_k must be positive, got %d", core.ErrInput, *event.TopK)
		}
		req.TopK = *event.TopK
	}
	if err := core.ValidateQueryRequest(&req); err != nil {
		return nil, err
	}
	return core.Encode(core.QueryRequestMUS, req), nil
}
