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
	"fmt"
	"runtime"
	"time"

	"github.com/poiesic/pdfrag/core"
)

// Config controls retries, timeouts and queue bounds.
type Config struct {
	// MaxAttempts bounds how many times a step runs when it keeps failing
	// transiently. Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// BaseBackoff is the delay before the second attempt. It doubles on each
	// further attempt up to MaxBackoff.
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`

	// StepTimeout is the wall-clock budget of a single step attempt.
	// Exceeding it counts as a transient failure.
	StepTimeout time.Duration `yaml:"step_timeout"`

	// PoolSize is the number of runs executing at once.
	// Default is runtime.NumCPU() / 2, with a minimum of 1.
	PoolSize int `yaml:"pool_size"`

	// MaxDeferred bounds how many runs may wait on the rate limiter.
	MaxDeferred int `yaml:"max_deferred"`
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
		StepTimeout: 5 * time.Minute,
		PoolSize:    defaultPoolSize(),
		MaxDeferred: 1000,
	}
}

func defaultPoolSize() int {
	return max(runtime.NumCPU()/2, 1)
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts == 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.StepTimeout == 0 {
		c.StepTimeout = d.StepTimeout
	}
	if c.PoolSize == 0 {
		c.PoolSize = d.PoolSize
	}
	if c.MaxDeferred == 0 {
		c.MaxDeferred = d.MaxDeferred
	}
	return c
}

// Validate rejects negative settings. Zero fields take their defaults.
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 0:
		return fmt.Errorf("%w: %w", core.ErrInput, ErrInvalidMaxAttempts)
	case c.BaseBackoff < 0, c.MaxBackoff < 0:
		return fmt.Errorf("%w: backoff must not be negative", core.ErrInput)
	case c.StepTimeout < 0:
		return fmt.Errorf("%w: step timeout must not be negative", core.ErrInput)
	case c.PoolSize < 0:
		return fmt.Errorf("%w: pool size must not be negative", core.ErrInput)
	case c.MaxDeferred < 0:
		return fmt.Errorf("%w: max deferred must not be negative", core.ErrInput)
	}
	return nil
}
