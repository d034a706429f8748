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
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsearch/storage"
)

// Store implements storage.Store on BadgerDB.
type Store struct {
	backend     *Backend
	ownsBackend bool
	schemaReady atomic.Bool
	logger      *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store) error

// WithLogger sets the logger.
// If logger is nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithOwnedBackend makes Close also close the backend.
func WithOwnedBackend() StoreOption {
	return func(s *Store) error {
		s.ownsBackend = true
		return nil
	}
}

// NewStore creates a Store on an open backend.
func NewStore(backend *Backend, opts ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	s := &Store{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "page-store")
	return s, nil
}

// EnsureSchema records the schema version on first use and verifies it afterwards.
// It is idempotent: a second call returns nil without writing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if s.schemaReady.Load() {
		return nil
	}

	err := s.backend.Update(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(schemaVersionKey))
		if err != nil {
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return tx.Set([]byte(schemaVersionKey), []byte(SchemaVersion))
		}
		return item.Value(func(val []byte) error {
			if string(val) != SchemaVersion {
				return fmt.Errorf("%w: stored %q, want %q", storage.ErrSchemaMismatch, val, SchemaVersion)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}

	s.schemaReady.Store(true)
	s.logger.Debug("schema ready", "version", SchemaVersion)
	return nil
}

// ready reports whether the store may be used.
func (s *Store) ready() error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if !s.schemaReady.Load() {
		return storage.ErrSchemaMissing
	}
	return nil
}

// Close releases the store. The backend is closed only when the store owns it.
func (s *Store) Close() error {
	if s.ownsBackend && !s.backend.IsClosed() {
		return s.backend.Close()
	}
	return nil
}
