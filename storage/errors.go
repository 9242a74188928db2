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
	"errors"
	"fmt"

	"github.com/poiesic/pdfrag/core"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrCollectionNotFound indicates that the named collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDimensionMismatch indicates a collection exists with different dimensions.
	// Resolving it requires dropping and recreating the collection.
	ErrDimensionMismatch = core.ErrDimensionMismatch

	// ErrUnsupportedMetric indicates a collection metric other than cosine.
	ErrUnsupportedMetric = fmt.Errorf("%w: unsupported metric", core.ErrInput)

	// ErrInvalidTopK indicates a search limit below one.
	ErrInvalidTopK = fmt.Errorf("%w: top_k must be positive", core.ErrInput)

	// ErrInvalidCollectionName indicates an empty collection name.
	ErrInvalidCollectionName = fmt.Errorf("%w: collection name cannot be empty", core.ErrInput)

	// ErrTransactionFailed indicates that a transaction failed.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")
)
