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
	"context"
	"log/slog"
	"time"
)

// RetryWithBackoff retries an operation with exponential backoff for as long
// as retryable reports true for its error.
// maxAttempts: maximum number of attempts (must be > 0)
// baseDelay: delay before the second attempt (doubles on each retry)
// maxDelay: upper bound on any single delay; zero means unbounded
// Returns the number of attempts made and the error from the last attempt.
func RetryWithBackoff(
	ctx context.Context,
	operation func(attempt int) error,
	retryable func(error) bool,
	maxAttempts int,
	baseDelay, maxDelay time.Duration,
) (int, error) {
	if maxAttempts <= 0 {
		return 0, ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = operation(attempt)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return attempt, nil
		}

		if !retryable(lastErr) || attempt == maxAttempts {
			return attempt, lastErr
		}

		delay := backoff(attempt, baseDelay, maxDelay)
		slog.Debug("operation failed, will retry",
			"attempt", attempt, "maxAttempts", maxAttempts, "delay", delay, "error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return maxAttempts, lastErr
}

// backoff returns the delay after the given failed attempt:
// base * 2^(attempt-1), capped at limit.
func backoff(attempt int, base, limit time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if limit > 0 && delay >= limit {
			return limit
		}
	}
	if limit > 0 && delay > limit {
		return limit
	}
	return delay
}
