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

package docsearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/client"
	"github.com/poiesic/docsearch/config"
	"github.com/poiesic/docsearch/protocol"
	"github.com/poiesic/docsearch/remote"
	"github.com/poiesic/docsearch/replication"
	"github.com/poiesic/docsearch/searchstate"
	"github.com/poiesic/docsearch/worker"
)

// fatalKinds are worker ERROR kinds after which READY will not follow
// without another INIT.
var fatalKinds = map[string]bool{
	worker.KindExtractorInitFailed: true,
	worker.KindReplicationFailed:   true,
	worker.KindInvalidRemote:       true,
}

// Engine owns a worker, a client and the channel between them.
type Engine struct {
	cfg     config.Config
	loader  ai.Loader
	remote  client.Remote
	sources worker.SourceFactory
	logger  *slog.Logger

	hub        *protocol.Hub
	hostPort   protocol.Port
	workerPort protocol.Port
	worker     *worker.Worker
	client     *client.Client

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan error
	settled  chan struct{}
	initErr  error
	unwatch  func()
	closeErr error
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLoader overrides the embedding loader chosen from the configuration.
func WithLoader(loader ai.Loader) Option {
	return func(e *Engine) error {
		if loader == nil {
			return errors.New("loader cannot be nil")
		}
		e.loader = loader
		return nil
	}
}

// WithRemote overrides the remote used for fallback searches.
func WithRemote(r client.Remote) Option {
	return func(e *Engine) error {
		if r == nil {
			return client.ErrRemoteRequired
		}
		e.remote = r
		return nil
	}
}

// WithSourceFactory overrides how the worker opens the replication source.
func WithSourceFactory(factory worker.SourceFactory) Option {
	return func(e *Engine) error {
		if factory == nil {
			return errors.New("source factory cannot be nil")
		}
		e.sources = factory
		return nil
	}
}

// WithPorts connects the client to host and, when workerSide is not nil,
// runs a local worker on workerSide. With a nil workerSide the engine
// expects a worker elsewhere on the same channel.
func WithPorts(host, workerSide protocol.Port) Option {
	return func(e *Engine) error {
		if host == nil {
			return errors.New("host port cannot be nil")
		}
		e.hostPort = host
		e.workerPort = workerSide
		return nil
	}
}

// WithLogger sets the logger for the engine and everything it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine builds an engine from cfg. A nil cfg means config.Default().
// Unless WithRemote and WithSourceFactory are both given, cfg must name a
// remote.
func NewEngine(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: *cfg, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if e.remote == nil || e.sources == nil {
		if err := cfg.RequireRemote(); err != nil {
			return nil, err
		}
	}
	if e.remote == nil {
		rc, err := e.openRemote(cfg.Remote.URL, cfg.Remote.Key)
		if err != nil {
			return nil, err
		}
		e.remote = rc
	}
	if e.sources == nil {
		e.sources = func(remoteURL, remoteKey string) (replication.Source, error) {
			rc, err := e.openRemote(remoteURL, remoteKey)
			if err != nil {
				return nil, err
			}
			return rc, nil
		}
	}
	if e.loader == nil {
		loader, err := NewLoader(cfg.AI(), cfg.Embedding.Token)
		if err != nil {
			return nil, err
		}
		e.loader = loader
	}

	if e.hostPort == nil {
		hub, err := protocol.NewHub(protocol.WithHubLogger(e.logger))
		if err != nil {
			return nil, err
		}
		e.hub = hub
		e.hostPort = hub.Host()
		e.workerPort = hub.Worker()
	}

	if e.workerPort != nil {
		w, err := worker.New(e.workerPort, e.loader,
			worker.WithSourceFactory(e.sources),
			worker.WithExtractorOptions(ai.WithExpectedDimension(cfg.Embedding.Dimension)),
			worker.WithReplicationOptions(cfg.ReplicationOptions(e.logger)...),
			worker.WithSearchOptions(cfg.SearchOptions()...),
			worker.WithLogger(e.logger),
		)
		if err != nil {
			e.closeHub()
			return nil, err
		}
		e.worker = w
	}

	skip := cfg.Search.SkipWorker
	c, err := client.New(e.remote,
		client.WithPort(e.hostPort),
		client.WithSkipWorker(func() bool { return skip }),
		client.WithLogger(e.logger),
	)
	if err != nil {
		e.closeHub()
		return nil, err
	}
	e.client = c
	return e, nil
}

func (e *Engine) openRemote(remoteURL, remoteKey string) (*remote.Client, error) {
	return remote.New(remoteURL, remoteKey, e.cfg.RemoteOptions(e.logger)...)
}

// Client returns the search client.
func (e *Engine) Client() *client.Client {
	return e.client
}

// Start runs the local worker, if any, waits for a worker to announce
// CONNECTED and sends it INIT. Readiness is reported by WaitReady; until
// then searches go to the remote.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return client.ErrClosed
	}
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.settled = make(chan struct{})
	e.mu.Unlock()

	unwatch := e.hostPort.Subscribe(e.watch)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		unwatch()
		return client.ErrClosed
	}
	e.unwatch = unwatch
	if e.worker != nil {
		runCtx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		e.done = make(chan error, 1)
		go func() {
			e.done <- e.worker.Run(runCtx)
		}()
	}
	e.mu.Unlock()

	if err := protocol.WaitForStatus(ctx, e.hostPort, protocol.StatusConnected); err != nil {
		return fmt.Errorf("waiting for worker: %w", err)
	}
	msg := protocol.Init{RemoteURL: e.cfg.Remote.URL, RemoteKey: e.cfg.Remote.Key}
	if err := e.hostPort.Post(ctx, msg); err != nil {
		return fmt.Errorf("sending init: %w", err)
	}
	e.logger.Info("worker initializing", "remote", e.cfg.Remote.URL)
	return nil
}

// watch settles readiness on READY or on a fatal worker ERROR.
func (e *Engine) watch(msg protocol.Message) {
	var err error
	switch m := msg.(type) {
	case protocol.Checkpoint:
		if m.Status != protocol.StatusReady {
			return
		}
	case protocol.Error:
		kind, _ := m.Params["kind"].(string)
		if !fatalKinds[kind] {
			return
		}
		err = fmt.Errorf("%w: %s", ErrInitFailed, m.Message)
	default:
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.settled:
	default:
		e.initErr = err
		close(e.settled)
	}
}

// WaitReady blocks until the worker is READY, it reports a fatal
// initialization error, or ctx is done.
func (e *Engine) WaitReady(ctx context.Context) error {
	e.mu.Lock()
	settled := e.settled
	e.mu.Unlock()
	if settled == nil {
		return ErrNotStarted
	}

	select {
	case <-settled:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

// Search starts a query; see client.Client.Search.
func (e *Engine) Search(query string) {
	e.client.Search(query)
}

// Query runs a query to completion; see client.Client.Query.
func (e *Engine) Query(ctx context.Context, query string) (searchstate.State, error) {
	return e.client.Query(ctx, query)
}

// Subscribe registers fn for search state changes.
func (e *Engine) Subscribe(fn client.Listener) (unsubscribe func()) {
	return e.client.Subscribe(fn)
}

// Close stops the client and the worker and releases the channel.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return e.closeErr
	}
	e.closed = true
	unwatch, cancel, done := e.unwatch, e.cancel, e.done
	e.mu.Unlock()

	var errs []error
	if err := e.client.Close(); err != nil {
		errs = append(errs, err)
	}
	if unwatch != nil {
		unwatch()
	}
	if cancel != nil {
		cancel()
		if err := <-done; err != nil {
			e.logger.Error("worker stopped with error", "err", err)
			errs = append(errs, err)
		}
	}
	if err := e.closeHub(); err != nil {
		errs = append(errs, err)
	}

	e.mu.Lock()
	e.closeErr = errors.Join(errs...)
	e.mu.Unlock()
	return e.closeErr
}

func (e *Engine) closeHub() error {
	if e.hub == nil {
		return nil
	}
	return e.hub.Close()
}
