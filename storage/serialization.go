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

package storage

import (
	"fmt"

	"github.com/poiesic/pdfrag/core"
)

// MarshalPoint serializes a Point to bytes.
func MarshalPoint(point *core.Point) []byte {
	return core.Encode(core.PointMUS, *point)
}

// UnmarshalPoint deserializes a Point from bytes.
func UnmarshalPoint(data []byte) (*core.Point, error) {
	point, _, err := core.PointMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: point: %w", ErrSerializationFailed, err)
	}
	return &point, nil
}

// MarshalCollection serializes a Collection to bytes.
func MarshalCollection(collection *core.Collection) []byte {
	return core.Encode(core.CollectionMUS, *collection)
}

// UnmarshalCollection deserializes a Collection from bytes.
func UnmarshalCollection(data []byte) (*core.Collection, error) {
	collection, _, err := core.CollectionMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: collection: %w", ErrSerializationFailed, err)
	}
	return &collection, nil
}

// MarshalRun serializes a Run to bytes.
func MarshalRun(run *core.Run) []byte {
	return core.Encode(core.RunMUS, *run)
}

// UnmarshalRun deserializes a Run from bytes.
func UnmarshalRun(data []byte) (*core.Run, error) {
	run, _, err := core.RunMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: run: %w", ErrSerializationFailed, err)
	}
	return &run, nil
}
