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
	"context"

	"github.com/poiesic/docsearch/core"
)

// PageRepository stores pages mirrored from the remote page table.
type PageRepository interface {
	// UpsertPage inserts or replaces a page keyed by its ID.
	// Returns false when an identical page was already stored (no write).
	UpsertPage(ctx context.Context, page *core.Page) (bool, error)

	// GetPage retrieves a page by ID.
	// Returns ErrNotFound if the page doesn't exist.
	GetPage(ctx context.Context, id core.ID) (*core.Page, error)

	// DeletePage removes a page and every section that belongs to it.
	// Returns ErrNotFound if the page doesn't exist.
	DeletePage(ctx context.Context, id core.ID) error

	// CountPages returns the number of stored pages.
	CountPages(ctx context.Context) (int, error)
}

// SectionRepository stores page sections and their embeddings.
type SectionRepository interface {
	// UpsertSection inserts or replaces a section keyed by its ID.
	// Returns ErrOrphanSection if the section's page is not stored.
	// Returns false when an identical section was already stored (no write).
	UpsertSection(ctx context.Context, section *core.PageSection) (bool, error)

	// GetSection retrieves a section by ID.
	// Returns ErrNotFound if the section doesn't exist.
	GetSection(ctx context.Context, id core.ID) (*core.PageSection, error)

	// GetSectionsByPage returns the sections of a page ordered by section ID.
	GetSectionsByPage(ctx context.Context, pageID core.ID) ([]*core.PageSection, error)

	// CountSections returns the number of stored sections.
	CountSections(ctx context.Context) (int, error)
}

// VectorSearcher runs similarity queries over section embeddings.
type VectorSearcher interface {
	// SearchEmbeddings scores every searchable section against vector by
	// inner product and keeps those scoring strictly above threshold. The
	// best limit sections are grouped by page; pages are ordered by their
	// best section score. Sections flagged RagIgnore or lacking an embedding
	// never match.
	SearchEmbeddings(ctx context.Context, vector []float32, threshold float32, limit int) ([]*core.MatchRow, error)
}

// Store is the complete local store used by the search worker.
type Store interface {
	PageRepository
	SectionRepository
	VectorSearcher

	// EnsureSchema prepares the store for use. Calling it again is a no-op.
	// Every other operation fails with ErrSchemaMissing until it has run.
	EnsureSchema(ctx context.Context) error

	// Close closes the storage backend and releases resources.
	Close() error
}
