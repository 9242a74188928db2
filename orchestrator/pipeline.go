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

import "fmt"

// Pipeline is a named, ordered chain of steps. Each step receives the
// previous step's output; the first receives the run input and the last
// produces the run output.
type Pipeline struct {
	Name  string
	Steps []Step

	// GateKey derives the rate limit key from the encoded run input.
	// Pipelines without one are never gated.
	GateKey func(input []byte) (string, error)
}

func (p *Pipeline) validate() error {
	if p == nil || p.Name == "" || len(p.Steps) == 0 {
		return ErrEmptyPipeline
	}
	seen := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.name == "" || s.exec == nil || seen[s.name] {
			return fmt.Errorf("%w: %s", ErrEmptyPipeline, p.Name)
		}
		seen[s.name] = true
	}
	return nil
}

// DecodeInput decodes a run input with the first step's serializer.
func (p *Pipeline) DecodeInput(data []byte) (any, error) {
	return p.Steps[0].decodeIn(data)
}

// DecodeOutput decodes a run output with the last step's serializer.
func (p *Pipeline) DecodeOutput(data []byte) (any, error) {
	return p.Steps[len(p.Steps)-1].decodeOut(data)
}
