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
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/pdfrag/core"
	"github.com/poiesic/pdfrag/storage"
)

// Backend wraps a BadgerDB instance and provides low-level operations.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist. An empty path with inMemory
// set opens a throwaway database.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Backend{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction; fn must commit it.
// The transaction is automatically discarded when fn returns.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return mapError(fn(tx))
}

// WithTransaction executes fn within a read-write transaction that is
// committed when fn succeeds.
func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return b.WithTx(func(tx *badger.Txn) error {
		if err := fn(ctx); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DropPrefix deletes every key that starts with one of the prefixes.
func (b *Backend) DropPrefix(prefixes ...[]byte) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return mapError(b.db.DropPrefix(prefixes...))
}

// mapError translates badger errors into the storage and core error classes.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrDBClosed):
		return fmt.Errorf("%w: %w", storage.ErrStorageClosed, err)
	case errors.Is(err, badger.ErrConflict):
		return core.Transient(err)
	case errors.Is(err, badger.ErrTxnTooBig):
		return fmt.Errorf("%w: %w: %w", storage.ErrTransactionFailed, core.ErrCapacity, err)
	default:
		return err
	}
}
