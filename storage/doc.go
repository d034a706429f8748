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

// Package storage provides the storage abstraction layer for docsearch.
//
// This package defines the repository interfaces of the local page store and
// the value encoding shared by its implementations. The store mirrors two
// remote tables: pages and the page sections that carry embeddings.
//
// # Architecture
//
//   - PageRepository: pages keyed by their remote ID
//   - SectionRepository: sections keyed by ID, each bound to a stored page
//   - VectorSearcher: inner-product similarity over section embeddings
//   - Store: all of the above plus schema setup and Close
//
// # Usage
//
// The search worker builds a fresh in-memory store for every session:
//
//	store, err := badger.OpenMemoryStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.EnsureSchema(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Tests use badger.NewMemoryStore, which also prepares the schema.
//
// # Invariants
//
// A section whose page is absent is never stored: UpsertSection rejects it
// with ErrOrphanSection and DeletePage removes a page's sections with it.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use. Writers that collide
// are retried by the implementation.
package storage
