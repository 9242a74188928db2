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

package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// Deferral reasons reported in Decision.Reason.
const (
	ReasonThrottled   = "throttled"
	ReasonRateLimited = "rate_limited"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Admitted   bool
	RetryAfter time.Duration
	Reason     string
}

// Gate combines the global throttle and the per-key limiter. Both are checked
// under one lock and slots are consumed only when both pass, so two
// concurrent callers can never share the last slot.
type Gate struct {
	mu       sync.Mutex
	throttle *Throttle
	keys     *KeyedLimiter
	logger   *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate creates a gate from cfg.
func NewGate(cfg Config, opts ...Option) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Gate{
		throttle: NewThrottle(cfg.ThrottleLimit, cfg.ThrottleWindow),
		keys:     NewKeyedLimiter(cfg.KeyWindow),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "ratelimit")
	return g, nil
}

// Admit decides whether an event for key may start at now. A deferred event
// should be re-submitted after RetryAfter; it is never rejected outright.
// An empty key is subject to the throttle only.
func (g *Gate) Admit(key string, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.keys.Sweep(now)

	if key != "" {
		if wait := g.keys.Wait(key, now); wait > 0 {
			g.logger.Debug("deferring key", "key", key, "retry_after", wait)
			return Decision{RetryAfter: wait, Reason: ReasonRateLimited}
		}
	}
	if wait := g.throttle.Wait(now); wait > 0 {
		g.logger.Debug("throttling", "key", key, "retry_after", wait)
		return Decision{RetryAfter: wait, Reason: ReasonThrottled}
	}

	g.throttle.Take(now)
	if key != "" {
		g.keys.Take(key, now)
	}
	return Decision{Admitted: true}
}

// TrackedKeys returns the number of keys with a live per-key limiter.
func (g *Gate) TrackedKeys() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keys.Len()
}
