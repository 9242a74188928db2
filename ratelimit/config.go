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
	"fmt"
	"time"

	"github.com/poiesic/pdfrag/core"
)

// ErrInvalidConfig indicates a negative limit or window.
var ErrInvalidConfig = fmt.Errorf("%w: invalid rate limit config", core.ErrInput)

// Config holds the admission limits applied to gated pipelines.
type Config struct {
	// ThrottleLimit is the number of admissions allowed per ThrottleWindow
	// across all keys. Zero disables the throttle.
	ThrottleLimit int `yaml:"throttle_limit"`

	// ThrottleWindow is the rolling window for ThrottleLimit.
	ThrottleWindow time.Duration `yaml:"throttle_window"`

	// KeyWindow is the minimum spacing between admissions for one key.
	// Zero disables the per-key limit.
	KeyWindow time.Duration `yaml:"key_window"`
}

// DefaultConfig allows two ingestions a minute, and one per source every two hours.
func DefaultConfig() Config {
	return Config{
		ThrottleLimit:  2,
		ThrottleWindow: time.Minute,
		KeyWindow:      2 * time.Hour,
	}
}

// Validate rejects negative values and a throttle without a window.
func (c Config) Validate() error {
	if c.ThrottleLimit < 0 {
		return fmt.Errorf("%w: throttle limit %d", ErrInvalidConfig, c.ThrottleLimit)
	}
	if c.ThrottleLimit > 0 && c.ThrottleWindow <= 0 {
		return fmt.Errorf("%w: throttle window must be positive", ErrInvalidConfig)
	}
	if c.KeyWindow < 0 {
		return fmt.Errorf("%w: key window %s", ErrInvalidConfig, c.KeyWindow)
	}
	return nil
}
