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
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

// ctxCheckInterval is how many sections are scored between context checks.
const ctxCheckInterval = 256

type scoredSection struct {
	section *core.PageSection
	score   float32
}

// SearchEmbeddings finds the pages whose sections are most similar to vector.
//
// Every section with an embedding and without RagIgnore is scored by inner
// product. Sections scoring strictly above threshold are ranked, the top
// limit are kept and then grouped under their page. Pages come back in order
// of their best section; headings and slugs keep section rank order, and a
// section lacking either is left out of both arrays.
func (s *Store) SearchEmbeddings(ctx context.Context, vector []float32, threshold float32, limit int) ([]*core.MatchRow, error) {
	if len(vector) == 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: vector length %d, limit %d", storage.ErrInvalidQuery, len(vector), limit)
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	var rows []*core.MatchRow
	err := s.backend.View(func(tx *badger.Txn) error {
		candidates, err := s.scoreSections(ctx, tx, vector, threshold)
		if err != nil {
			return err
		}

		slices.SortFunc(candidates, func(a, b scoredSection) int {
			if a.score > b.score {
				return -1
			}
			if a.score < b.score {
				return 1
			}
			return cmp.Compare(a.section.Id, b.section.Id)
		})
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}

		rows, err = groupByPage(tx, candidates)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("similarity search complete", "threshold", threshold, "pages", len(rows))
	return rows, nil
}

func (s *Store) scoreSections(ctx context.Context, tx *badger.Txn, vector []float32, threshold float32) ([]scoredSection, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(sectionPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var candidates []scoredSection
	scanned := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		scanned++
		if scanned%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		var section *core.PageSection
		err := iter.Item().Value(func(val []byte) error {
			var err error
			section, err = storage.UnmarshalSection(val)
			return err
		})
		if err != nil {
			return nil, err
		}

		if section.RagIgnore || len(section.Embedding) == 0 {
			continue
		}
		if len(section.Embedding) != len(vector) {
			s.logger.Debug("skipping section with mismatched embedding", "id", section.Id, "dimension", len(section.Embedding))
			continue
		}

		score := ai.DotProduct(vector, section.Embedding)
		if score > threshold {
			candidates = append(candidates, scoredSection{section: section, score: score})
		}
	}
	return candidates, ctx.Err()
}

func groupByPage(tx *badger.Txn, ranked []scoredSection) ([]*core.MatchRow, error) {
	var rows []*core.MatchRow
	byPage := make(map[core.ID]*core.MatchRow)

	for _, candidate := range ranked {
		section := candidate.section
		row, ok := byPage[section.PageId]
		if !ok {
			page, err := readPage(tx, makePageKey(section.PageId))
			if err != nil {
				return nil, err
			}
			if page == nil {
				continue
			}
			row = &core.MatchRow{
				Id:          page.Id,
				Path:        page.Path,
				Type:        page.Type,
				Title:       page.Meta.Title,
				Subtitle:    page.Meta.Subtitle,
				Description: page.Meta.Description,
				Headings:    []string{},
				Slugs:       []string{},
				Score:       candidate.score,
			}
			byPage[section.PageId] = row
			rows = append(rows, row)
		}

		if section.Heading == "" || section.Slug == "" {
			continue
		}
		row.Headings = append(row.Headings, section.Heading)
		row.Slugs = append(row.Slugs, section.Slug)
	}
	return rows, nil
}
