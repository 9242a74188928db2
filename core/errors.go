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
	"context"
	"errors"
	"fmt"
)

// Failure classes. Every error that ends a run wraps exactly one of these.
var (
	// ErrInput indicates a missing file, invalid parameters or malformed event data.
	// Fatal for the run, never retried.
	ErrInput = errors.New("invalid input")

	// ErrTransient indicates a network, rate-limit or timeout failure from a
	// collaborator. Retried with backoff.
	ErrTransient = errors.New("transient failure")

	// ErrCapacity indicates the deferred-run queue is full.
	ErrCapacity = errors.New("capacity exceeded")

	// ErrConsistency indicates stored state disagrees with the request,
	// such as a dimension mismatch.
	ErrConsistency = errors.New("consistency violation")

	// ErrCancelled indicates the run was cancelled by its caller.
	ErrCancelled = errors.New("run cancelled")
)

// Validation errors.
var (
	// ErrInvalidPoint indicates a Point failed validation.
	ErrInvalidPoint = errors.New("invalid point")

	// ErrInvalidPayload indicates a Payload failed validation.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyText indicates the Text field is empty.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrEmptySource indicates the Source field is empty.
	ErrEmptySource = errors.New("source cannot be empty")

	// ErrDimensionMismatch indicates a vector length differs from the collection dims.
	ErrDimensionMismatch = fmt.Errorf("%w: dimension mismatch", ErrConsistency)

	// ErrEmptyQuestion indicates a query event without a question.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrEmptyPath indicates an ingest event without a document path.
	ErrEmptyPath = errors.New("pdf path cannot be empty")
)

// ErrorKind is the failure class of an error.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInput
	KindTransient
	KindCapacity
	KindConsistency
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindTransient:
		return "transient"
	case KindCapacity:
		return "capacity"
	case KindConsistency:
		return "consistency"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Classify maps err onto its failure class.
// Deadline errors are transient; context cancellation is a cancellation.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrInput):
		return KindInput
	case errors.Is(err, ErrCapacity):
		return KindCapacity
	case errors.Is(err, ErrConsistency):
		return KindConsistency
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindUnknown
	}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return Classify(err) == KindTransient
}

// Transient marks err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Input marks err as a fatal input error. A nil err stays nil.
func Input(err error) error {
	if err == nil || errors.Is(err, ErrInput) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInput, err)
}
