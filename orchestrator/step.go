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
	"fmt"

	"github.com/mus-format/mus-go"
	"github.com/poiesic/pdfrag/core"
)

// Step is one named, memoized unit of a pipeline. Its input and output
// cross the step boundary as MUS-encoded bytes so they can be persisted in
// the run record.
type Step struct {
	name      string
	exec      func(ctx context.Context, input []byte) ([]byte, error)
	decodeIn  func(data []byte) (any, error)
	decodeOut func(data []byte) (any, error)
}

// NewStep binds fn to a name and the serializers of its input and output.
// The output serializer of one step must match the input serializer of the next.
func NewStep[In, Out any](
	name string,
	in mus.Serializer[In],
	out mus.Serializer[Out],
	fn func(ctx context.Context, input In) (Out, error),
) Step {
	return Step{
		name: name,
		exec: func(ctx context.Context, data []byte) ([]byte, error) {
			v, err := core.Decode(in, data)
			if err != nil {
				return nil, fmt.Errorf("%w: step %s input: %w", ErrCorruptState, name, err)
			}
			result, err := fn(ctx, v)
			if err != nil {
				return nil, err
			}
			return core.Encode(out, result), nil
		},
		decodeIn: func(data []byte) (any, error) {
			v, err := core.Decode(in, data)
			return v, err
		},
		decodeOut: func(data []byte) (any, error) {
			v, err := core.Decode(out, data)
			return v, err
		},
	}
}

// Name returns the step name used as its memoization key.
func (s Step) Name() string {
	return s.name
}

// call runs the step body in its own goroutine so a body that ignores ctx
// still cannot hold the run past its deadline. Panics become errors.
func (s Step) call(ctx context.Context, input []byte) ([]byte, error) {
	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: %s: %v", ErrStepPanic, s.name, r)}
			}
		}()
		out, err := s.exec(ctx, input)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
