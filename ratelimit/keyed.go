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
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter admits one event per key per window. Each key gets its own
// token bucket with a burst of one that refills over the window.
//
// KeyedLimiter is not safe for concurrent use; Gate serializes access.
type KeyedLimiter struct {
	window    time.Duration
	limiters  map[string]*rate.Limiter
	lastSweep time.Time
}

// NewKeyedLimiter creates a per-key limiter. A window of zero admits everything.
func NewKeyedLimiter(window time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		window:   window,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait returns how long key must wait at now. Zero means it may be admitted.
func (k *KeyedLimiter) Wait(key string, now time.Time) time.Duration {
	if k.window <= 0 {
		return 0
	}
	lim, ok := k.limiters[key]
	if !ok {
		return 0
	}
	tokens := lim.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	wait := time.Duration((1 - tokens) * float64(k.window))
	if wait <= 0 {
		// Float rounding left the bucket a hair short of a token.
		wait = time.Millisecond
	}
	return wait
}

// Take consumes key's token at now.
func (k *KeyedLimiter) Take(key string, now time.Time) {
	if k.window <= 0 {
		return
	}
	lim, ok := k.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(k.window), 1)
		k.limiters[key] = lim
	}
	lim.AllowN(now, 1)
}

// Sweep drops limiters whose bucket has refilled, at most once per window.
// A refilled bucket behaves exactly like a missing one.
func (k *KeyedLimiter) Sweep(now time.Time) {
	if k.window <= 0 || now.Sub(k.lastSweep) < k.window {
		return
	}
	k.lastSweep = now
	for key, lim := range k.limiters {
		if lim.TokensAt(now) >= 1 {
			delete(k.limiters, key)
		}
	}
}

// Len returns the number of keys currently tracked.
func (k *KeyedLimiter) Len() int {
	return len(k.limiters)
}
