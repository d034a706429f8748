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

package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/poiesic/docsearch/protocol"
	"github.com/poiesic/docsearch/searchstate"
	"golang.org/x/sync/errgroup"
)

// fallbackSources is the number of remote calls made per fallback search.
const fallbackSources = 2

// Remote is the fallback search backend. *remote.Client implements it.
type Remote interface {
	SearchFTS(ctx context.Context, query string) (json.RawMessage, error)
	SearchEmbeddings(ctx context.Context, query string) (json.RawMessage, error)
}

// Listener is notified of every state change.
type Listener func(searchstate.State)

// Client runs searches on the local worker when it is ready and on the
// remote otherwise, and folds the outcomes into a searchstate.State.
type Client struct {
	remote     Remote
	port       protocol.Port
	skipWorker func() bool
	logger     *slog.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// postMu is held from a key bump until its SEARCH or ABORT_SEARCH is
	// posted, so the worker sees requests in key order. Taken before mu.
	postMu sync.Mutex

	mu          sync.Mutex
	state       searchstate.State
	key         uint64
	cancel      context.CancelFunc // cancels the current key's remote calls
	loaded      int                // sources reported for the current key
	workerReady bool
	workerReq   uuid.UUID // outstanding worker request for the current key
	settled     chan struct{} // closed once the current key has every answer
	query       string
	listeners   map[int]Listener
	nextID      int
	closed      bool
	unsubscribe func()
	outbox      []searchstate.State
	wake        chan struct{}
}

// Option configures a Client.
type Option func(*Client) error

// WithPort attaches the host end of a worker channel. Without it every
// search uses the remote.
func WithPort(port protocol.Port) Option {
	return func(c *Client) error {
		c.port = port
		return nil
	}
}

// WithSkipWorker sets a predicate consulted on every search; when it
// returns true the worker is bypassed even if ready.
func WithSkipWorker(skip func() bool) Option {
	return func(c *Client) error {
		c.skipWorker = skip
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a client. Call Close to release it.
func New(remote Remote, opts ...Option) (*Client, error) {
	if remote == nil {
		return nil, ErrRemoteRequired
	}

	c := &Client{
		remote:    remote,
		logger:    slog.Default(),
		listeners: make(map[int]Listener),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "search-client")
	c.ctx, c.stop = context.WithCancel(context.Background())

	c.wg.Add(1)
	go c.notifyLoop()

	if c.port != nil {
		c.unsubscribe = c.port.Subscribe(c.onWorkerMessage)
	}
	return c, nil
}

// Close cancels pending searches and detaches from the worker channel.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.cancelPendingLocked()
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.stop()
	c.wg.Wait()
	return nil
}

// State returns the current state.
func (c *Client) State() searchstate.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WorkerReady reports whether the worker has announced READY.
func (c *Client) WorkerReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workerReady
}

// Subscribe registers fn for state changes. Listeners run on one goroutine,
// one at a time, in transition order.
func (c *Client) Subscribe(fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Search starts a query and supersedes any query in flight. Outcomes are
// delivered through state changes. A blank query resets instead.
func (c *Client) Search(query string) {
	c.search(query)
}

// Query runs query and waits until every source it was sent to has
// answered, then returns the resulting state. It fails with ErrSuperseded
// when another search or a reset replaced it first.
func (c *Client) Query(ctx context.Context, query string) (searchstate.State, error) {
	key, done := c.search(query)
	select {
	case <-done:
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return c.state, ErrClosed
	case c.key != key:
		return c.state, ErrSuperseded
	}
	return c.state, nil
}

func (c *Client) search(query string) (uint64, <-chan struct{}) {
	if strings.TrimSpace(query) == "" {
		c.Reset()
		return c.currentKey(), closedChan
	}

	c.postMu.Lock()
	defer c.postMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, closedChan
	}
	c.cancelPendingLocked()
	c.key++
	key := c.key
	c.settled = make(chan struct{})
	done := c.settled
	c.query = query
	useWorker := c.port != nil && c.workerReady && (c.skipWorker == nil || !c.skipWorker())
	var requestID uuid.UUID
	if useWorker {
		requestID = uuid.New()
		c.workerReq = requestID
	}
	ctx := c.newCallContextLocked()
	c.dispatchLocked(searchstate.TriggeredAction(key))

	if !useWorker {
		c.startFallbackLocked(ctx, key, query)
		c.mu.Unlock()
		return key, done
	}
	c.mu.Unlock()

	c.logger.Debug("searching on worker", "key", key, "request", requestID)
	if err := c.port.Post(ctx, protocol.Search{ID: requestID, Query: query}); err != nil {
		c.logger.Warn("worker unavailable, using remote", "err", err)
		c.mu.Lock()
		if c.key == key && c.workerReq == requestID {
			c.workerReq = uuid.Nil
			c.startFallbackLocked(ctx, key, query)
		}
		c.mu.Unlock()
	}
	return key, done
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (c *Client) currentKey() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

// Reset returns to the initial state and cancels any query in flight.
func (c *Client) Reset() {
	c.postMu.Lock()
	defer c.postMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	abortWorker := c.workerReq != uuid.Nil
	c.cancelPendingLocked()
	c.key++
	c.dispatchLocked(searchstate.ResetAction(c.key))
	c.mu.Unlock()

	if abortWorker {
		if err := c.port.Post(c.ctx, protocol.AbortSearch{}); err != nil {
			c.logger.Debug("abort not delivered", "err", err)
		}
	}
}

func (c *Client) cancelPendingLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.workerReq = uuid.Nil
	c.loaded = 0
	c.settleLocked()
}

func (c *Client) settleLocked() {
	if c.settled != nil {
		close(c.settled)
		c.settled = nil
	}
}

func (c *Client) newCallContextLocked() context.Context {
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel
	return ctx
}

// startFallbackLocked issues both remote calls concurrently. Each result
// is applied as soon as it arrives.
func (c *Client) startFallbackLocked(ctx context.Context, key uint64, query string) {
	c.logger.Debug("searching on remote", "key", key)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		var g errgroup.Group
		g.Go(func() error {
			raw, err := c.remote.SearchFTS(ctx, query)
			c.applyRemote(key, "fts", raw, err)
			return nil
		})
		g.Go(func() error {
			raw, err := c.remote.SearchEmbeddings(ctx, query)
			c.applyRemote(key, "embeddings", raw, err)
			return nil
		})
		g.Wait()
	}()
}

func (c *Client) applyRemote(key uint64, source string, raw json.RawMessage, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key != c.key || c.closed {
		c.logger.Debug("discarding stale result", "source", source, "key", key, "current", c.key)
		return
	}

	c.loaded++
	if err != nil {
		c.logger.Warn("remote search failed", "source", source, "err", err)
		c.dispatchLocked(searchstate.ErroredAction(key, err.Error(), c.loaded, fallbackSources))
	} else {
		c.dispatchLocked(searchstate.CompletedAction(key, raw, c.loaded, fallbackSources))
	}
	if c.loaded >= fallbackSources {
		c.settleLocked()
	}
}

func (c *Client) onWorkerMessage(msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case protocol.Checkpoint:
		c.workerReady = m.Status == protocol.StatusReady
		c.logger.Debug("worker checkpoint", "status", m.Status)
	case protocol.Error:
		c.logger.Warn("worker error", "message", m.Message, "params", m.Params)
	case protocol.SearchResults:
		if c.currentWorkerRequestLocked(m.RequestID) {
			c.workerReq = uuid.Nil
			c.dispatchLocked(searchstate.CompletedAction(c.key, m.Matches, 1, 1))
			c.settleLocked()
		}
	case protocol.SearchError:
		if c.currentWorkerRequestLocked(m.RequestID) {
			c.workerReq = uuid.Nil
			c.dispatchLocked(searchstate.ErroredAction(c.key, m.Message, 1, 1))
			c.settleLocked()
		}
	case protocol.NotReady:
		if c.currentWorkerRequestLocked(m.RequestID) {
			c.workerReady = false
			c.workerReq = uuid.Nil
			c.logger.Info("worker not ready, using remote", "hint", m.Hint)
			c.startFallbackLocked(c.newCallContextLocked(), c.key, c.query)
		}
	}
}

func (c *Client) currentWorkerRequestLocked(id uuid.UUID) bool {
	if c.closed || id == uuid.Nil || id != c.workerReq {
		c.logger.Debug("discarding stale worker reply", "request", id)
		return false
	}
	return true
}

// dispatchLocked applies action and queues the new state for listeners.
func (c *Client) dispatchLocked(action searchstate.Action) {
	next, err := searchstate.Step(c.state, action)
	if err != nil {
		c.logger.Error("programmer error: dispatch out of order", "state", c.state.Status, "action", action.Kind, "err", err)
		return
	}
	c.state = next
	c.outbox = append(c.outbox, next)

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) notifyLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			if len(c.outbox) == 0 {
				c.mu.Unlock()
				break
			}
			state := c.outbox[0]
			c.outbox = c.outbox[1:]
			listeners := make([]Listener, 0, len(c.listeners))
			for _, fn := range c.listeners {
				listeners = append(listeners, fn)
			}
			c.mu.Unlock()

			for _, fn := range listeners {
				fn(state)
			}
		}
	}
}
