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
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	// maxConflictRetries bounds how often a write transaction is replayed
	// after losing a conflict to a concurrent writer.
	maxConflictRetries = 5
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
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens an in-memory BadgerDB. Nothing touches disk; the
// data lives until Close. Badger's own logging goes to logger at debug and
// above, or to slog.Default() when logger is nil.
func OpenBackend(logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger")

	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(&badgerLoggerAdapter{logger: logger}).
		WithCompression(options.None).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return &Backend{db: db, logger: logger}, nil
}

// Close releases the database and everything stored in it.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// View runs fn in a read-only transaction.
func (b *Backend) View(fn func(tx *badger.Txn) error) error {
	return b.db.View(fn)
}

// Update runs fn in a read-write transaction and commits it.
// A commit that loses a conflict with a concurrent writer is replayed
// from scratch, so fn must not keep state between attempts.
func (b *Backend) Update(fn func(tx *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		b.logger.Debug("transaction conflict, retrying", "attempt", attempt)
	}
	return err
}

// countPrefix counts keys under prefix without reading values.
func (b *Backend) countPrefix(prefix []byte) (int, error) {
	count := 0
	err := b.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}
