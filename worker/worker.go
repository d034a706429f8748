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

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/protocol"
	"github.com/poiesic/docsearch/remote"
	"github.com/poiesic/docsearch/replication"
	"github.com/poiesic/docsearch/search"
	"github.com/poiesic/docsearch/storage"
	"github.com/poiesic/docsearch/storage/badger"
	"golang.org/x/sync/errgroup"
)

// Error kinds sent in the "kind" param of ERROR messages.
const (
	KindExtractorInitFailed  = "extractor-init-failed"
	KindReplicationRowFailed = "replication-row-failed"
	KindReplicationFailed    = "replication-failed"
	KindInvalidRemote        = "invalid-remote"
)

// SourceFactory opens the remote named in an INIT message.
type SourceFactory func(remoteURL, remoteKey string) (replication.Source, error)

// Worker owns the local store and embedding extractor and serves the
// worker end of a protocol port. It is an actor: every piece of state is
// touched only by the goroutine running Run.
type Worker struct {
	id              uuid.UUID
	port            protocol.Port
	loader          ai.Loader
	store           storage.Store
	newSource       SourceFactory
	extractorOpts   []ai.ExtractorOption
	replicationOpts []replication.Option
	searchOpts      []search.Option
	logger          *slog.Logger
	running         atomic.Bool
}

// Option configures a Worker.
type Option func(*Worker) error

// WithStore sets the store to populate. The caller keeps ownership.
// Default is a fresh in-memory badger store, closed when Run returns.
func WithStore(store storage.Store) Option {
	return func(w *Worker) error {
		w.store = store
		return nil
	}
}

// WithSourceFactory sets how INIT messages are turned into a replication source.
// Default opens a remote.Client.
func WithSourceFactory(factory SourceFactory) Option {
	return func(w *Worker) error {
		if factory == nil {
			return errors.New("source factory cannot be nil")
		}
		w.newSource = factory
		return nil
	}
}

// WithExtractorOptions passes options to the embedding extractor.
func WithExtractorOptions(opts ...ai.ExtractorOption) Option {
	return func(w *Worker) error {
		w.extractorOpts = append(w.extractorOpts, opts...)
		return nil
	}
}

// WithReplicationOptions passes options to each replication run.
func WithReplicationOptions(opts ...replication.Option) Option {
	return func(w *Worker) error {
		w.replicationOpts = append(w.replicationOpts, opts...)
		return nil
	}
}

// WithSearchOptions passes options to the local searcher.
func WithSearchOptions(opts ...search.Option) Option {
	return func(w *Worker) error {
		w.searchOpts = append(w.searchOpts, opts...)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// New creates a worker serving port. The model is loaded by loader on INIT.
func New(port protocol.Port, loader ai.Loader, opts ...Option) (*Worker, error) {
	if port == nil {
		return nil, ErrPortRequired
	}
	if loader == nil {
		return nil, ErrLoaderRequired
	}

	w := &Worker{
		id:     uuid.New(),
		port:   port,
		loader: loader,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}

	w.logger = w.logger.With("component", "worker", "session", w.id)
	if w.newSource == nil {
		logger := w.logger
		w.newSource = func(remoteURL, remoteKey string) (replication.Source, error) {
			return remote.New(remoteURL, remoteKey, remote.WithLogger(logger))
		}
	}
	return w, nil
}

// ID identifies this worker session in logs.
func (w *Worker) ID() uuid.UUID {
	return w.id
}

// Run announces CONNECTED and serves messages until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	store := w.store
	if store == nil {
		memStore, err := badger.OpenMemoryStore()
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		defer memStore.Close()
		store = memStore
	}

	extractorOpts := append([]ai.ExtractorOption{ai.WithExtractorLogger(w.logger)}, w.extractorOpts...)
	extractor, err := ai.NewExtractor(w.loader, extractorOpts...)
	if err != nil {
		return err
	}
	defer extractor.Close()

	searchOpts := append([]search.Option{search.WithLogger(w.logger)}, w.searchOpts...)
	searcher, err := search.NewSearcher(store, extractor, searchOpts...)
	if err != nil {
		return err
	}

	a := &actor{
		w:         w,
		store:     store,
		extractor: extractor,
		searcher:  searcher,
		initDone:  make(chan initResult, 1),
		results:   make(chan searchResult),
		logger:    w.logger,
	}
	defer a.wg.Wait()

	inbox := make(chan protocol.Message)
	done := make(chan struct{})
	defer close(done)
	unsubscribe := w.port.Subscribe(func(msg protocol.Message) {
		select {
		case inbox <- msg:
		case <-done:
		}
	})
	defer unsubscribe()

	if err := protocol.PostCheckpoint(ctx, w.port, protocol.StatusConnected); err != nil {
		return fmt.Errorf("announce connected: %w", err)
	}
	w.logger.Info("worker connected")

	a.loop(ctx, inbox)
	return nil
}

type phase int

const (
	phaseConnected phase = iota
	phaseInitializing
	phaseReady
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseConnected:
		return "connected"
	case phaseInitializing:
		return "initializing"
	case phaseReady:
		return "ready"
	case phaseFailed:
		return "failed"
	}
	return "unknown"
}

type initResult struct {
	report     *replication.Report
	replErr    error
	extractErr error
}

type searchResult struct {
	seq       uint64
	requestID uuid.UUID
	rows      []*core.MatchRow
	err       error
}

type actor struct {
	w         *Worker
	store     storage.Store
	extractor *ai.Extractor
	searcher  *search.Searcher
	logger    *slog.Logger

	phase        phase
	initDone     chan initResult
	results      chan searchResult
	seq          uint64
	cancelSearch context.CancelFunc
	wg           sync.WaitGroup
}

func (a *actor) loop(ctx context.Context, inbox <-chan protocol.Message) {
	defer func() {
		a.abortSearch()
		Ready.DeleteLabelValues(a.w.id.String())
	}()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("worker stopping")
			return
		case msg := <-inbox:
			a.handle(ctx, msg)
		case res := <-a.initDone:
			a.finishInit(ctx, res)
		case res := <-a.results:
			a.finishSearch(ctx, res)
		}
	}
}

func (a *actor) handle(ctx context.Context, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.Init:
		MessagesTotal.WithLabelValues(string(protocol.TypeInit)).Inc()
		a.startInit(ctx, m)
	case protocol.Search:
		MessagesTotal.WithLabelValues(string(protocol.TypeSearch)).Inc()
		a.startSearch(ctx, m)
	case protocol.AbortSearch:
		MessagesTotal.WithLabelValues(string(protocol.TypeAbortSearch)).Inc()
		a.abortSearch()
	default:
		MessagesTotal.WithLabelValues("other").Inc()
		a.logger.Debug("ignoring message", "type", msg.Type())
	}
}

func (a *actor) post(ctx context.Context, msg protocol.Message) {
	if err := a.w.port.Post(ctx, msg); err != nil {
		a.logger.Warn("failed to post message", "type", msg.Type(), "err", err)
	}
}

func (a *actor) postSearchError(ctx context.Context, requestID uuid.UUID, searchErr error) {
	if err := protocol.PostSearchError(ctx, a.w.port, requestID, searchErr); err != nil {
		a.logger.Warn("failed to post search error", "request", requestID, "err", err)
	}
}

func (a *actor) postError(ctx context.Context, kind, message string, params map[string]any) {
	if params == nil {
		params = map[string]any{}
	}
	params["kind"] = kind
	if err := protocol.PostError(ctx, a.w.port, message, params); err != nil {
		a.logger.Warn("failed to post error", "kind", kind, "err", err)
	}
}

// startInit begins replication and model warm-up. INIT is accepted only
// while connected; a repeated INIT after READY is a no-op.
func (a *actor) startInit(ctx context.Context, msg protocol.Init) {
	if a.phase != phaseConnected {
		a.logger.Debug("ignoring INIT", "phase", a.phase)
		return
	}

	source, err := a.w.newSource(msg.RemoteURL, msg.RemoteKey)
	if err != nil {
		a.logger.Error("invalid remote", "url", msg.RemoteURL, "err", err)
		a.postError(ctx, KindInvalidRemote, err.Error(), nil)
		return
	}

	a.phase = phaseInitializing
	a.logger.Info("initializing", "url", msg.RemoteURL)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.initDone <- a.initialize(ctx, source)
	}()
}

// initialize prepares the schema, then replicates and warms the model
// concurrently. Both always run to completion.
func (a *actor) initialize(ctx context.Context, source replication.Source) initResult {
	var res initResult
	if err := a.store.EnsureSchema(ctx); err != nil {
		res.replErr = err
		return res
	}

	opts := append([]replication.Option{replication.WithLogger(a.logger)}, a.w.replicationOpts...)
	replicator, err := replication.New(source, a.store, opts...)
	if err != nil {
		res.replErr = err
		return res
	}
	defer replicator.Release()

	var g errgroup.Group
	g.Go(func() error {
		res.report, res.replErr = replicator.Run(ctx)
		return nil
	})
	g.Go(func() error {
		res.extractErr = a.extractor.Warm(ctx)
		return nil
	})
	g.Wait()
	return res
}

func (a *actor) finishInit(ctx context.Context, res initResult) {
	if ctx.Err() != nil {
		return
	}

	if res.report != nil && res.report.Failed() > 0 {
		a.postError(ctx, KindReplicationRowFailed,
			fmt.Sprintf("%d rows failed to replicate", res.report.Failed()),
			map[string]any{"failed": res.report.Failed(), "rows": rowErrorParams(res.report.Errors)})
	}

	if res.extractErr != nil {
		a.phase = phaseFailed
		a.logger.Error("local search disabled", "err", res.extractErr)
		a.postError(ctx, KindExtractorInitFailed, res.extractErr.Error(), nil)
		return
	}

	if res.replErr != nil && !errors.Is(res.replErr, replication.ErrRowFailed) {
		a.phase = phaseConnected
		a.logger.Error("replication failed", "err", res.replErr)
		a.postError(ctx, KindReplicationFailed, res.replErr.Error(), nil)
		return
	}

	a.phase = phaseReady
	Ready.WithLabelValues(a.w.id.String()).Set(1)
	a.logger.Info("worker ready")
	if err := protocol.PostCheckpoint(ctx, a.w.port, protocol.StatusReady); err != nil {
		a.logger.Warn("failed to announce ready", "err", err)
	}
}

func rowErrorParams(rowErrs []*replication.RowError) []map[string]any {
	rows := make([]map[string]any, 0, len(rowErrs))
	for _, rowErr := range rowErrs {
		rows = append(rows, map[string]any{
			"table": rowErr.Table,
			"id":    int64(rowErr.ID),
			"error": rowErr.Err.Error(),
		})
	}
	return rows
}

// startSearch cancels the current query, if any, and starts a new one.
// Searches before READY are refused rather than queued.
func (a *actor) startSearch(ctx context.Context, msg protocol.Search) {
	if a.phase != phaseReady {
		SearchesTotal.WithLabelValues("not_ready").Inc()
		a.post(ctx, protocol.NotReady{RequestID: msg.ID, Hint: protocol.FallbackHint})
		return
	}

	a.abortSearch()
	searchCtx, cancel := context.WithCancel(ctx)
	a.seq++
	a.cancelSearch = cancel
	seq := a.seq

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		rows, err := a.searcher.SearchWithMonitor(searchCtx, msg.Query, metricsMonitor{})
		select {
		case a.results <- searchResult{seq: seq, requestID: msg.ID, rows: rows, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (a *actor) abortSearch() {
	if a.cancelSearch != nil {
		a.cancelSearch()
		a.cancelSearch = nil
	}
}

// finishSearch replies to the current query. Results of superseded or
// aborted queries are dropped.
func (a *actor) finishSearch(ctx context.Context, res searchResult) {
	if res.seq != a.seq || a.cancelSearch == nil {
		SearchesTotal.WithLabelValues("superseded").Inc()
		a.logger.Debug("discarding superseded search", "request", res.requestID)
		return
	}
	a.abortSearch()

	if res.err != nil {
		SearchesTotal.WithLabelValues("error").Inc()
		a.logger.Warn("search failed", "request", res.requestID, "err", res.err)
		a.postSearchError(ctx, res.requestID, res.err)
		return
	}

	rows := res.rows
	if rows == nil {
		rows = []*core.MatchRow{}
	}
	matches, err := json.Marshal(rows)
	if err != nil {
		SearchesTotal.WithLabelValues("error").Inc()
		a.postSearchError(ctx, res.requestID, err)
		return
	}

	SearchesTotal.WithLabelValues("ok").Inc()
	a.post(ctx, protocol.SearchResults{RequestID: res.requestID, Matches: matches})
}
