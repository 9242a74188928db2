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

package core

import (
	"fmt"
	"strings"
)

func ValidatePayload(payload *Payload) error {
	if payload == nil {
		return fmt.Errorf("%w: payload is nil", ErrInvalidPayload)
	}

	if payload.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, ErrEmptySource)
	}

	if payload.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, ErrEmptyText)
	}

	return nil
}

// ValidatePoint checks a point against the dimensionality of its collection.
func ValidatePoint(point *Point, dims int) error {
	if point == nil {
		return fmt.Errorf("%w: point is nil", ErrInvalidPoint)
	}

	if len(point.Vector) != dims {
		return fmt.Errorf("%w: %w: vector has %d dims, collection has %d",
			ErrInvalidPoint, ErrDimensionMismatch, len(point.Vector), dims)
	}

	if err := ValidatePayload(&point.Payload); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPoint, err)
	}

	return nil
}

func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.Index)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyText)
	}

	return nil
}

// ValidateIngestRequest rejects ingest events that can never succeed.
func ValidateIngestRequest(req *IngestRequest) error {
	if req == nil || strings.TrimSpace(req.PDFPath) == "" {
		return fmt.Errorf("%w: %w", ErrInput, ErrEmptyPath)
	}
	return nil
}

// ValidateQueryRequest rejects query events that can never succeed.
func ValidateQueryRequest(req *QueryRequest) error {
	if req == nil || strings.TrimSpace(req.Question) == "" {
		return fmt.Errorf("%w: %w", ErrInput, ErrEmptyQuestion)
	}
	if req.TopK < 0 {
		return fmt.Errorf("%w: top_k must not be negative, got %d", ErrInput, req.TopK)
	}
	return nil
}
