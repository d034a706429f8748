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

package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
)

const (
	// DefaultThreshold is the minimum section similarity, exclusive.
	DefaultThreshold float32 = 0.8

	// DefaultLimit is the number of best sections considered per query.
	DefaultLimit = 10
)

// QueryEmbedder turns a query into a normalized vector. *ai.Extractor
// implements it.
type QueryEmbedder interface {
	Extract(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs semantic search over the local store.
type Searcher struct {
	store     storage.VectorSearcher
	extractor QueryEmbedder
	threshold float32
	limit     int
	logger    *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithThreshold sets the similarity a section must exceed to match.
// Default is DefaultThreshold.
func WithThreshold(threshold float32) Option {
	return func(s *Searcher) error {
		if threshold < -1 || threshold > 1 {
			return ErrInvalidThreshold
		}
		s.threshold = threshold
		return nil
	}
}

// WithLimit sets how many sections may match a query.
// Default is DefaultLimit.
func WithLimit(limit int) Option {
	return func(s *Searcher) error {
		if limit <= 0 {
			return ErrInvalidLimit
		}
		s.limit = limit
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(store storage.VectorSearcher, extractor QueryEmbedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}

	s := &Searcher{
		store:     store,
		extractor: extractor,
		threshold: DefaultThreshold,
		limit:     DefaultLimit,
		logger:    slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Search embeds query and returns the matching pages, best first.
func (s *Searcher) Search(ctx context.Context, query string) ([]*core.MatchRow, error) {
	return s.SearchWithMonitor(ctx, query, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, monitor SearchMonitor) (rows []*core.MatchRow, err error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(query)
	defer func() { monitor.Finish(rows, err) }()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	vector, err := s.extractor.Extract(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(vector, time.Since(start))

	start = time.Now()
	rows, err = s.store.SearchEmbeddings(ctx, vector, s.threshold, s.limit)
	if err != nil {
		s.logger.Error("error querying for similar sections", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(rows, time.Since(start))

	s.logger.Debug("search complete", "query", query, "pages", len(rows))
	return rows, nil
}
