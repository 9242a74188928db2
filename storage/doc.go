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

// Package storage provides the storage abstraction layer for pdfrag.
//
// This package defines the VectorStore and RunRepository interfaces that
// decouple the pipelines from the storage implementation.
//
// # Implementations
//
// Package storage/badger provides the only implementation. Its constructors
// return concrete types so callers can reach the close and maintenance
// methods; compile-time assertions keep them in step with these interfaces.
//
// # Architecture
//
//   - VectorStore: named collections of points, upsert and similarity search
//   - RunRepository: durable pipeline runs and their memoized step results
//   - Filter: payload restriction applied to search and count
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	store, _ := badger.NewCollectionStore(backend)
//	_, err = store.EnsureCollection(ctx, "docs", 384, core.MetricCosine)
//
// Use in tests with in-memory storage:
//
//	store, runs, backend, err := badger.NewMemoryStores()
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
//
// # Errors
//
// Storage errors wrap the failure classes in package core:
//
//   - invalid requests wrap core.ErrInput
//   - dimension conflicts wrap core.ErrConsistency
//   - I/O failures from the underlying engine wrap core.ErrTransient
package storage
