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
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

// UpsertSection inserts or replaces a section. The parent page must be stored.
func (s *Store) UpsertSection(ctx context.Context, section *core.PageSection) (bool, error) {
	if err := core.ValidateSection(section); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}

	value, err := storage.MarshalSection(section)
	if err != nil {
		return false, err
	}

	var changed bool
	err = s.backend.Update(func(tx *badger.Txn) error {
		changed = false
		if _, err := tx.Get(makePageKey(section.PageId)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: section %d, page %d", storage.ErrOrphanSection, section.Id, section.PageId)
			}
			return err
		}

		key := makeSectionKey(section.Id)
		old, err := readSection(tx, key)
		if err != nil {
			return err
		}
		if old != nil && sectionsEqual(old, section) {
			return nil
		}
		if old != nil && old.PageId != section.PageId {
			if err := tx.Delete(makePageSectionKey(old.PageId, old.Id)); err != nil {
				return err
			}
		}

		changed = true
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Set(makePageSectionKey(section.PageId, section.Id), nil)
	})
	return changed, err
}

// GetSection retrieves a section by ID.
func (s *Store) GetSection(ctx context.Context, id core.ID) (*core.PageSection, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var result *core.PageSection
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = readSection(tx, makeSectionKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// GetSectionsByPage returns a page's sections ordered by section ID.
func (s *Store) GetSectionsByPage(ctx context.Context, pageID core.ID) ([]*core.PageSection, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var results []*core.PageSection
	err := s.backend.View(func(tx *badger.Txn) error {
		for _, indexKey := range collectKeys(tx, makePartialPageSectionKey(pageID)) {
			section, err := readSection(tx, makeSectionKey(sectionIDFromIndexKey(indexKey)))
			if err != nil {
				return err
			}
			if section != nil {
				results = append(results, section)
			}
		}
		return nil
	})
	return results, err
}

// CountSections returns the number of stored sections.
func (s *Store) CountSections(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.backend.countPrefix([]byte(sectionPrefix))
}

// readSection returns nil, nil when the key is absent.
func readSection(tx *badger.Txn, key []byte) (*core.PageSection, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var section *core.PageSection
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		section, unmarshalErr = storage.UnmarshalSection(val)
		return unmarshalErr
	})
	return section, err
}

func sectionsEqual(a, b *core.PageSection) bool {
	return a.Id == b.Id &&
		a.PageId == b.PageId &&
		a.Slug == b.Slug &&
		a.Heading == b.Heading &&
		a.RagIgnore == b.RagIgnore &&
		slices.Equal(a.Embedding, b.Embedding)
}
