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

package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/storage"
)

// CollectionStore implements storage.VectorStore for BadgerDB.
//
// Vectors are normalized on upsert, so a cosine score is the dot product of
// the stored vector and the normalized query.
type CollectionStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.VectorStore = (*CollectionStore)(nil)

// NewCollectionStore creates a new CollectionStore.
func NewCollectionStore(backend *Backend) (*CollectionStore, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &CollectionStore{
		backend: backend,
		logger:  backend.logger.With("component", "collection-store"),
	}, nil
}

// Close releases resources. CollectionStore has no resources to release.
func (s *CollectionStore) Close() error {
	return nil
}

func validateCollectionName(name string) error {
	if name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("%w: %q", storage.ErrInvalidCollectionName, name)
	}
	return nil
}

// EnsureCollection creates the collection if absent.
func (s *CollectionStore) EnsureCollection(ctx context.Context, name string, dims int, metric core.Metric) (*core.Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}
	if metric != core.MetricCosine {
		return nil, fmt.Errorf("%w: %q", storage.ErrUnsupportedMetric, metric)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dims must be positive, got %d", core.ErrInput, dims)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var collection *core.Collection
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readCollection(tx, name)
		if err != nil && !errors.Is(err, storage.ErrCollectionNotFound) {
			return err
		}
		if existing != nil {
			if existing.Dims != dims {
				return fmt.Errorf("%w: collection %q has %d dims, requested %d",
					storage.ErrDimensionMismatch, name, existing.Dims, dims)
			}
			collection = existing
			return nil
		}

		collection = &core.Collection{
			Name:      name,
			Dims:      dims,
			Metric:    metric,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Set(makeCollectionKey(name), storage.MarshalCollection(collection)); err != nil {
			return err
		}
		s.logger.Info("created collection", "name", name, "dims", dims, "metric", metric)
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return collection, nil
}

// GetCollection returns collection metadata.
func (s *CollectionStore) GetCollection(ctx context.Context, name string) (*core.Collection, error) {
	var collection *core.Collection
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		collection, err = readCollection(tx, name)
		return err
	}, false)
	return collection, err
}

// DropCollection removes a collection and all of its points.
func (s *CollectionStore) DropCollection(ctx context.Context, name string) error {
	if err := validateCollectionName(name); err != nil {
		return err
	}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeCollectionKey(name)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}
	if err := s.backend.DropPrefix(makePointPrefix(name)); err != nil {
		return err
	}
	s.logger.Info("dropped collection", "name", name)
	return nil
}

// Upsert inserts or replaces points by ID in a single transaction.
func (s *CollectionStore) Upsert(ctx context.Context, name string, points ...*core.Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.backend.WithTx(func(tx *badger.Txn) error {
		collection, err := readCollection(tx, name)
		if err != nil {
			return err
		}

		for _, point := range points {
			if err := core.ValidatePoint(point, collection.Dims); err != nil {
				if errors.Is(err, core.ErrDimensionMismatch) {
					return err
				}
				return fmt.Errorf("%w: %w", core.ErrInput, err)
			}
			stored := &core.Point{
				ID:      point.ID,
				Vector:  core.NormalizeVector(point.Vector),
				Payload: point.Payload,
			}
			if err := tx.Set(makePointKey(name, point.ID), storage.MarshalPoint(stored)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Search returns the topK points most similar to query.
// Points are scanned in ID order and sorted stably, so equal scores keep ID order.
func (s *CollectionStore) Search(ctx context.Context, name string, query []float32, topK int, filter *storage.Filter) (*core.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", storage.ErrInvalidTopK, topK)
	}

	var hits []core.Hit
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		collection, err := readCollection(tx, name)
		if err != nil {
			return err
		}
		if len(query) != collection.Dims {
			return fmt.Errorf("%w: query has %d dims, collection has %d",
				storage.ErrDimensionMismatch, len(query), collection.Dims)
		}
		normalized := core.NormalizeVector(query)

		return scanPoints(ctx, tx, name, func(point *core.Point) {
			if !filter.Matches(&point.Payload) {
				return
			}
			hits = append(hits, core.Hit{
				ID:      point.ID,
				Score:   core.DotProduct(normalized, point.Vector),
				Payload: point.Payload,
			})
		})
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortStableFunc(hits, func(a, b core.Hit) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}

	result := &core.SearchResult{
		Contexts: make([]string, 0, len(hits)),
		Sources:  make([]string, 0, len(hits)),
		Hits:     hits,
	}
	seen := make(map[string]bool, len(hits))
	for _, hit := range hits {
		result.Contexts = append(result.Contexts, hit.Payload.Text)
		if !seen[hit.Payload.Source] {
			seen[hit.Payload.Source] = true
			result.Sources = append(result.Sources, hit.Payload.Source)
		}
	}
	return result, nil
}

// Count returns the number of points matching filter.
func (s *CollectionStore) Count(ctx context.Context, name string, filter *storage.Filter) (int, error) {
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := readCollection(tx, name); err != nil {
			return err
		}
		return scanPoints(ctx, tx, name, func(point *core.Point) {
			if filter.Matches(&point.Payload) {
				count++
			}
		})
	}, false)
	return count, err
}

// GetPoint retrieves a single point by ID.
func (s *CollectionStore) GetPoint(ctx context.Context, name string, id uuid.UUID) (*core.Point, error) {
	var point *core.Point
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := readCollection(tx, name); err != nil {
			return err
		}
		item, err := tx.Get(makePointKey(name, id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			point, err = storage.UnmarshalPoint(val)
			return err
		})
	}, false)
	return point, err
}

// scanPoints calls fn for every point of a collection in key order.
// Context cancellation is checked between points.
func scanPoints(ctx context.Context, tx *badger.Txn, name string, fn func(*core.Point)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePointPrefix(name)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var point *core.Point
		err := iter.Item().Value(func(val []byte) error {
			var err error
			point, err = storage.UnmarshalPoint(val)
			return err
		})
		if err != nil {
			return err
		}
		fn(point)
	}
	return nil
}

// readCollection reads collection metadata within a transaction.
func readCollection(tx *badger.Txn, name string) (*core.Collection, error) {
	item, err := tx.Get(makeCollectionKey(name))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
		}
		return nil, err
	}
	var collection *core.Collection
	err = item.Value(func(val []byte) error {
		var err error
		collection, err = storage.UnmarshalCollection(val)
		return err
	})
	return collection, err
}
