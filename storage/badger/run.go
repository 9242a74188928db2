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
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/storage"
)

// RunRepository implements storage.RunRepository for BadgerDB.
type RunRepository struct {
	backend *Backend
}

var _ storage.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository.
func NewRunRepository(backend *Backend) *RunRepository {
	return &RunRepository{
		backend: backend,
	}
}

// Close releases resources. RunRepository has no resources to release.
func (r *RunRepository) Close() error {
	return nil
}

// SaveRun persists a run and its event index entry.
func (r *RunRepository) SaveRun(ctx context.Context, run *core.Run) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		if run.CreatedAt.IsZero() {
			run.CreatedAt = now
		}
		run.UpdatedAt = now

		if err := tx.Set(makeRunKey(run.ID), storage.MarshalRun(run)); err != nil {
			return err
		}
		if run.EventID != "" {
			if err := tx.Set(makeRunEventKey(run.EventID, run.ID), nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetRun retrieves a run by ID.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*core.Run, error) {
	var run *core.Run
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		run, err = readRun(tx, id)
		if err != nil {
			return err
		}
		if run == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return run, err
}

// GetRunsByEvent returns every run triggered by the event, oldest first.
func (r *RunRepository) GetRunsByEvent(ctx context.Context, eventID string) ([]*core.Run, error) {
	var runs []*core.Run
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialRunEventKey(eventID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			runID := string(bytes.TrimPrefix(iter.Item().Key(), prefix))
			run, err := readRun(tx, runID)
			if err != nil {
				return err
			}
			// Skip dangling index entries
			if run != nil {
				runs = append(runs, run)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

// GetRunsByStatus returns runs in any of the given states, oldest first.
func (r *RunRepository) GetRunsByStatus(ctx context.Context, statuses ...core.RunStatus) ([]*core.Run, error) {
	var runs []*core.Run
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runRecordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var run *core.Run
			err := iter.Item().Value(func(val []byte) error {
				var err error
				run, err = storage.UnmarshalRun(val)
				return err
			})
			if err != nil {
				return err
			}
			if slices.Contains(statuses, run.Status) {
				runs = append(runs, run)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

// DeleteRun removes a run and its event index entry.
func (r *RunRepository) DeleteRun(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		run, err := readRun(tx, id)
		if err != nil {
			return err
		}
		if run == nil {
			return storage.ErrNotFound
		}
		if run.EventID != "" {
			if err := tx.Delete(makeRunEventKey(run.EventID, run.ID)); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeRunKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// readRun reads a run within a transaction. Returns nil, nil if absent.
func readRun(tx *badger.Txn, id string) (*core.Run, error) {
	item, err := tx.Get(makeRunKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var run *core.Run
	err = item.Value(func(val []byte) error {
		var err error
		run, err = storage.UnmarshalRun(val)
		return err
	})
	return run, err
}

func sortRuns(runs []*core.Run) {
	slices.SortFunc(runs, func(a, b *core.Run) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare([]byte(a.ID), []byte(b.ID))
	})
}
