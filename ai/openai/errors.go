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

package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/pdfrag/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// The openai client flattens transport failures into plain strings.
var transientMarkers = []string{
	"request timeout",
	"network error",
	"status code: 5",
}

// classifyError maps a client error onto the pdfrag failure classes.
// Rate limits, timeouts and unavailable providers are transient.
// Authentication, quota and request errors pass through unmarked so the
// run fails instead of retrying.
func classifyError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return core.Transient(fmt.Errorf("%w: %w", ctxErr, err))
		}
		return fmt.Errorf("%w: %w", ctxErr, err)
	}

	msg := strings.ToLower(err.Error())
	mapped := openai.MapError(err)
	switch {
	case llms.IsAuthenticationError(mapped), llms.IsQuotaExceededError(mapped):
		return fmt.Errorf("%w: %s", mapped, err)
	case llms.IsRateLimitError(mapped),
		llms.IsTimeoutError(mapped),
		llms.IsProviderUnavailableError(mapped):
		return core.Transient(fmt.Errorf("%w: %s", mapped, err))
	}

	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return core.Transient(err)
		}
	}
	return err
}
