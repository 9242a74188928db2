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
	"encoding/json"
	"time"

	"github.com/poiesic/pdfrag/core"
)

// EventRequest is the body of POST /v1/events.
type EventRequest struct {
	Name string          `json:"name" binding:"required"`
	Data json.RawMessage `json:"data"`
}

// RunView is the polled representation of a run.
type RunView struct {
	RunID     string           `json:"run_id"`
	EventID   string           `json:"event_id"`
	Pipeline  string           `json:"pipeline"`
	Status    core.RunStatus   `json:"status"`
	Output    any              `json:"output"`
	Reason    string           `json:"reason,omitempty"`
	Failure   core.FailureKind `json:"failure,omitempty"`
	Deferrals int              `json:"deferrals,omitempty"`
	NotBefore *time.Time       `json:"not_before,omitempty"`
	Steps     []StepView       `json:"steps"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// StepView summarizes a memoized step. Step outputs are not exposed.
type StepView struct {
	Name        string    `json:"name"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}
