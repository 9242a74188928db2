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

import "time"

// Throttle admits at most limit events per rolling window. It keeps a log of
// admission times and forgets entries once they leave the window.
//
// Throttle is not safe for concurrent use; Gate serializes access.
type Throttle struct {
	limit    int
	window   time.Duration
	admitted []time.Time
}

// NewThrottle creates a throttle. A limit of zero or less admits everything.
func NewThrottle(limit int, window time.Duration) *Throttle {
	return &Throttle{limit: limit, window: window}
}

// Wait returns how long until a slot frees up at now. Zero means a slot is free.
func (t *Throttle) Wait(now time.Time) time.Duration {
	if t.limit <= 0 {
		return 0
	}
	t.prune(now)
	if len(t.admitted) < t.limit {
		return 0
	}
	return t.admitted[0].Add(t.window).Sub(now)
}

// Take records an admission at now.
func (t *Throttle) Take(now time.Time) {
	if t.limit <= 0 {
		return
	}
	t.admitted = append(t.admitted, now)
}

// InWindow returns the number of admissions still counted at now.
func (t *Throttle) InWindow(now time.Time) int {
	t.prune(now)
	return len(t.admitted)
}

func (t *Throttle) prune(now time.Time) {
	cutoff := now.Add(-t.window)
	i := 0
	for i < len(t.admitted) && !t.admitted[i].After(cutoff) {
		i++
	}
	if i > 0 {
		t.admitted = append(t.admitted[:0], t.admitted[i:]...)
	}
}
