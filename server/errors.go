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

package server

import (
	"errors"
	"net/http"

	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/orchestrator"
	"github.com/poiesic/pdfrag/storage"
)

var (
	// ErrOrchestratorRequired indicates that an orchestrator was not provided.
	ErrOrchestratorRequired = errors.New("orchestrator is required")

	// ErrUnknownEvent indicates an event name with no registered decoder.
	ErrUnknownEvent = errors.New("unknown event")
)

// statusFor maps an error onto the HTTP status reported to callers.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ErrUnknownEvent):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrRunTerminal), errors.Is(err, orchestrator.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, core.ErrCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, orchestrator.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// APIError is a non-2xx response received by Client.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return http.StatusText(e.Status) + ": " + e.Message
}

// Unwrap maps the status back onto the sentinel the server started from.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return storage.ErrNotFound
	case http.StatusBadRequest:
		return core.ErrInput
	case http.StatusTooManyRequests:
		return core.ErrCapacity
	case http.StatusConflict:
		return orchestrator.ErrRunTerminal
	case http.StatusServiceUnavailable:
		return orchestrator.ErrClosed
	default:
		return nil
	}
}
