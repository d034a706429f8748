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

	"github.com/poiesic/docsearch/storage"
)

// NewMemoryStore creates an in-memory store with its schema in place.
// Closing the store closes its backend.
func NewMemoryStore() (storage.Store, error) {
	store, err := OpenMemoryStore()
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// OpenMemoryStore creates an in-memory store without preparing its schema.
// The search worker uses it so that schema creation happens on INIT.
func OpenMemoryStore() (*Store, error) {
	backend, err := OpenBackend(nil)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(backend, WithOwnedBackend())
	if err != nil {
		backend.Close()
		return nil, err
	}
	return store, nil
}
