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

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

// UpsertPage inserts or replaces a page. The stored checksum is computed
// from Source; an unchanged page is not rewritten.
func (s *Store) UpsertPage(ctx context.Context, page *core.Page) (bool, error) {
	if err := core.ValidatePage(page); err != nil {
		return false, err
	}
	if err := s.ready(); err != nil {
		return false, err
	}

	stored := *page
	stored.Checksum = core.ChecksumFromContent(page.Source)
	value, err := storage.MarshalPage(&stored)
	if err != nil {
		return false, err
	}

	var changed bool
	err = s.backend.Update(func(tx *badger.Txn) error {
		changed = false
		key := makePageKey(stored.Id)
		old, err := readPage(tx, key)
		if err != nil {
			return err
		}
		if old != nil && pagesEqual(old, &stored) {
			return nil
		}
		changed = true
		return tx.Set(key, value)
	})
	if err != nil {
		return false, err
	}

	page.Checksum = stored.Checksum
	return changed, nil
}

// GetPage retrieves a page by ID.
func (s *Store) GetPage(ctx context.Context, id core.ID) (*core.Page, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var result *core.Page
	err := s.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = readPage(tx, makePageKey(id))
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

// DeletePage removes a page together with its sections.
func (s *Store) DeletePage(ctx context.Context, id core.ID) error {
	if err := s.ready(); err != nil {
		return err
	}

	return s.backend.Update(func(tx *badger.Txn) error {
		key := makePageKey(id)
		page, err := readPage(tx, key)
		if err != nil {
			return err
		}
		if page == nil {
			return storage.ErrNotFound
		}

		indexKeys := collectKeys(tx, makePartialPageSectionKey(id))
		for _, indexKey := range indexKeys {
			if err := tx.Delete(makeSectionKey(sectionIDFromIndexKey(indexKey))); err != nil {
				return err
			}
			if err := tx.Delete(indexKey); err != nil {
				return err
			}
		}
		s.logger.Debug("deleted page", "id", id, "sections", len(indexKeys))
		return tx.Delete(key)
	})
}

// CountPages returns the number of stored pages.
func (s *Store) CountPages(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.backend.countPrefix([]byte(pagePrefix))
}

// readPage returns nil, nil when the key is absent.
func readPage(tx *badger.Txn, key []byte) (*core.Page, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var page *core.Page
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		page, unmarshalErr = storage.UnmarshalPage(val)
		return unmarshalErr
	})
	return page, err
}

// collectKeys copies every key under prefix.
func collectKeys(tx *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys
}

func pagesEqual(a, b *core.Page) bool {
	return a.Id == b.Id &&
		a.Path == b.Path &&
		a.Type == b.Type &&
		a.Meta == b.Meta &&
		a.Checksum == b.Checksum &&
		a.Source == b.Source
}
