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

package replication

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/remote"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize is the number of rows requested per fetch.
	DefaultBatchSize = 1000

	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
)

// Source is the remote side of replication. Both fetches return rows with
// id > afterID in ascending id order, at most limit of them.
type Source interface {
	FetchPages(ctx context.Context, afterID core.ID, limit int) (*remote.Batch[*core.Page], error)
	FetchSections(ctx context.Context, afterID core.ID, limit int) (*remote.Batch[*core.PageSection], error)
}

// Target is the local side of replication.
type Target interface {
	UpsertPage(ctx context.Context, page *core.Page) (bool, error)
	UpsertSection(ctx context.Context, section *core.PageSection) (bool, error)
}

// Replicator copies the page and page_section tables from a Source into a Target.
type Replicator struct {
	source      Source
	target      Target
	pool        *ants.Pool
	batchSize   int
	maxAttempts int
	retryDelay  time.Duration
	progress    *ProgressTracker
	logger      *slog.Logger
}

// Option configures a Replicator.
type Option func(*Replicator) error

// WithBatchSize sets the number of rows fetched per request.
func WithBatchSize(size int) Option {
	return func(r *Replicator) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		r.batchSize = size
		return nil
	}
}

// WithPoolSize sets how many rows are upserted concurrently.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(r *Replicator) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if r.pool != nil {
			r.pool.Release()
		}
		r.pool = pool
		return nil
	}
}

// WithRetry sets fetch retry behavior.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(r *Replicator) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		r.maxAttempts = maxAttempts
		r.retryDelay = baseDelay
		return nil
	}
}

// WithProgress reports progress to w every interval rows.
func WithProgress(w io.Writer, interval int) Option {
	return func(r *Replicator) error {
		if w != nil {
			r.progress = NewProgressTracker(w, interval)
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Replicator) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// New creates a Replicator. Call Release when done with it.
func New(source Source, target Target, opts ...Option) (*Replicator, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if target == nil {
		return nil, ErrTargetRequired
	}

	r := &Replicator{
		source:      source,
		target:      target,
		batchSize:   DefaultBatchSize,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			r.Release()
			return nil, err
		}
	}

	if r.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU(), 1))
		if err != nil {
			return nil, err
		}
		r.pool = pool
	}
	r.logger = r.logger.With("component", "replicator")
	return r, nil
}

// Release releases the worker pool.
func (r *Replicator) Release() {
	if r.pool != nil {
		r.pool.Release()
	}
}

// Run replicates both tables.
//
// Pages and sections are fetched concurrently, but no section is written
// until every page has been, so a section never precedes its page. Rows that
// fail are collected in the report and replication continues; the returned
// error then joins them. A fetch that still fails after retries stops both
// tables and is returned as a *FetchError.
func (r *Replicator) Run(ctx context.Context) (*Report, error) {
	report := &Report{}
	start := time.Now()
	if r.progress != nil {
		r.progress.Start()
	}

	pagesDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(pagesDone)
		return replicateTable(gctx, r, report, TablePages, r.source.FetchPages, nil, r.target.UpsertPage,
			func(p *core.Page) core.ID { return p.Id })
	})

	g.Go(func() error {
		waitForPages := func(ctx context.Context) error {
			select {
			case <-pagesDone:
				return ctx.Err()
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return replicateTable(gctx, r, report, TableSections, r.source.FetchSections, waitForPages, r.target.UpsertSection,
			func(s *core.PageSection) core.ID { return s.Id })
	})

	err := g.Wait()
	report.Duration = time.Since(start)
	RunDuration.Observe(report.Duration.Seconds())
	if r.progress != nil {
		r.progress.Finish()
	}

	if err != nil {
		r.logger.Error("replication aborted", "err", err)
		return report, err
	}

	r.logger.Info("replication complete",
		"pages", report.Pages.Upserted+report.Pages.Unchanged,
		"sections", report.Sections.Upserted+report.Sections.Unchanged,
		"failed", report.Failed(),
		"duration", report.Duration)
	return report, report.Err()
}

// replicateTable pages through one table with keyset pagination. gate, when
// set, runs once after the first fetch and before the first write.
func replicateTable[T any](
	ctx context.Context,
	r *Replicator,
	report *Report,
	table string,
	fetch func(ctx context.Context, afterID core.ID, limit int) (*remote.Batch[T], error),
	gate func(context.Context) error,
	upsert func(context.Context, T) (bool, error),
	idOf func(T) core.ID,
) error {
	var cursor core.ID
	for {
		policy := backoff{attempts: r.maxAttempts, base: r.retryDelay, logger: r.logger.With("table", table)}
		batch, err := retry(ctx, policy, func(ctx context.Context) (*remote.Batch[T], error) {
			return fetch(ctx, cursor, r.batchSize)
		})
		if err != nil {
			FetchesTotal.WithLabelValues(table, "error").Inc()
			return &FetchError{Table: table, After: cursor, Err: err}
		}
		FetchesTotal.WithLabelValues(table, "success").Inc()
		report.addFetch(table, batch.Count)

		if gate != nil {
			if err := gate(ctx); err != nil {
				return err
			}
			gate = nil
		}

		for _, invalid := range batch.Invalid {
			r.recordFailure(report, &RowError{Table: table, ID: invalid.ID, Err: invalid.Err})
		}
		if err := applyBatch(ctx, r, report, table, batch.Rows, upsert, idOf); err != nil {
			return err
		}

		if batch.Count < r.batchSize {
			return nil
		}
		if batch.LastID <= cursor {
			return fmt.Errorf("%s: %w at id %d", table, ErrCursorStalled, cursor)
		}
		cursor = batch.LastID
	}
}

// applyBatch upserts every row on the pool and waits for all of them.
func applyBatch[T any](
	ctx context.Context,
	r *Replicator,
	report *Report,
	table string,
	rows []T,
	upsert func(context.Context, T) (bool, error),
	idOf func(T) core.ID,
) error {
	var wg sync.WaitGroup
	for _, row := range rows {
		wg.Add(1)
		err := r.pool.Submit(func() {
			defer wg.Done()
			changed, err := upsert(ctx, row)
			if err != nil {
				r.recordFailure(report, &RowError{Table: table, ID: idOf(row), Err: err})
				return
			}
			report.addResult(table, changed)
			if changed {
				RowsTotal.WithLabelValues(table, "upserted").Inc()
			} else {
				RowsTotal.WithLabelValues(table, "unchanged").Inc()
			}
			if r.progress != nil {
				r.progress.Add(table, 1)
			}
		})
		if err != nil {
			wg.Done()
			r.recordFailure(report, &RowError{Table: table, ID: idOf(row), Err: err})
		}
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Replicator) recordFailure(report *Report, rowErr *RowError) {
	r.logger.Warn("row failed", "table", rowErr.Table, "id", rowErr.ID, "err", rowErr.Err)
	RowsTotal.WithLabelValues(rowErr.Table, "failed").Inc()
	report.addError(rowErr)
}
