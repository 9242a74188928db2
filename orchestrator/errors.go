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

package orchestrator

import (
	"errors"
	"fmt"

	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/storage"
)

var (
	// ErrRunRepositoryRequired indicates that a run repository must be provided.
	ErrRunRepositoryRequired = errors.New("run repository is required")

	// ErrUnknownPipeline indicates an event names a pipeline that was never registered.
	ErrUnknownPipeline = fmt.Errorf("%w: unknown pipeline", core.ErrInput)

	// ErrDuplicatePipeline indicates a pipeline name was registered twice.
	ErrDuplicatePipeline = errors.New("pipeline already registered")

	// ErrEmptyPipeline indicates a pipeline without steps or with unnamed or repeated steps.
	ErrEmptyPipeline = errors.New("pipeline needs uniquely named steps")

	// ErrClosed indicates the orchestrator no longer accepts work.
	ErrClosed = errors.New("orchestrator closed")

	// ErrQueueFull indicates the deferred-run queue is at capacity.
	ErrQueueFull = fmt.Errorf("%w: deferred run queue full", core.ErrCapacity)

	// ErrRunTerminal indicates an operation that needs a live run found a finished one.
	ErrRunTerminal = errors.New("run already finished")

	// ErrNotRetryable indicates Retry was called on a run that has not failed.
	ErrNotRetryable = errors.New("only failed runs can be retried")

	// ErrRunNotFound indicates no run has the given ID.
	ErrRunNotFound = storage.ErrNotFound

	// ErrStepTimeout indicates a step ran past its wall-clock budget.
	ErrStepTimeout = fmt.Errorf("%w: step timed out", core.ErrTransient)

	// ErrStepPanic indicates a step body panicked.
	ErrStepPanic = errors.New("step panicked")

	// ErrCorruptState indicates memoized step data could not be decoded.
	ErrCorruptState = fmt.Errorf("%w: corrupt step state", core.ErrConsistency)

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)
