package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/protocol"
	"github.com/poiesic/docsearch/searchstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultJSON(ids ...int) json.RawMessage {
	items := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, map[string]any{
			"id": id, "path": fmt.Sprintf("/docs/%d", id), "type": "markdown", "title": fmt.Sprintf("Page %d", id),
			"headings": []string{"Intro"}, "slugs": []string{"intro"},
		})
	}
	data, _ := json.Marshal(items)
	return data
}

func ids(state searchstate.State) []core.ID {
	var out []core.ID
	for _, r := range state.Results {
		out = append(out, r.Id)
	}
	return out
}

// fakeRemote answers with per-source funcs.
type fakeRemote struct {
	fts   func(ctx context.Context, query string) (json.RawMessage, error)
	emb   func(ctx context.Context, query string) (json.RawMessage, error)
	calls atomic.Int32
}

func (f *fakeRemote) SearchFTS(ctx context.Context, query string) (json.RawMessage, error) {
	f.calls.Add(1)
	return f.fts(ctx, query)
}

func (f *fakeRemote) SearchEmbeddings(ctx context.Context, query string) (json.RawMessage, error) {
	f.calls.Add(1)
	return f.emb(ctx, query)
}

func returns(raw json.RawMessage, err error) func(context.Context, string) (json.RawMessage, error) {
	return func(context.Context, string) (json.RawMessage, error) { return raw, err }
}

// history records every state a listener sees.
type history struct {
	mu     sync.Mutex
	states []searchstate.State
}

func (h *history) add(s searchstate.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, s)
}

func (h *history) all() []searchstate.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]searchstate.State(nil), h.states...)
}

func newClient(t *testing.T, remote Remote, opts ...Option) (*Client, *history) {
	t.Helper()
	c, err := New(remote, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	h := &history{}
	c.Subscribe(h.add)
	return c, h
}

func waitForState(t *testing.T, c *Client, match func(searchstate.State) bool) searchstate.State {
	t.Helper()
	require.Eventually(t, func() bool { return match(c.State()) }, 2*time.Second, 5*time.Millisecond,
		"last state: %+v", c.State())
	return c.State()
}

func status(s searchstate.Status) func(searchstate.State) bool {
	return func(state searchstate.State) bool { return state.Status == s }
}

func TestNew_RequiresRemote(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrRemoteRequired)
}

func TestSearch_FallbackMergesPartialResults(t *testing.T) {
	release := make(chan struct{})
	remote := &fakeRemote{
		fts: returns(resultJSON(1), nil),
		emb: func(ctx context.Context, query string) (json.RawMessage, error) {
			<-release
			return resultJSON(1, 2), nil
		},
	}
	c, h := newClient(t, remote)

	c.Search("auth")
	partial := waitForState(t, c, status(searchstate.Results))
	assert.True(t, partial.Partial)
	assert.Equal(t, []core.ID{1}, ids(partial))

	close(release)
	full := waitForState(t, c, func(s searchstate.State) bool { return s.Status == searchstate.Results && !s.Partial })
	assert.Equal(t, []core.ID{1, 2}, ids(full))

	require.Eventually(t, func() bool { return len(h.all()) == 3 }, time.Second, 5*time.Millisecond)
	states := h.all()
	assert.Equal(t, searchstate.Loading, states[0].Status)
	assert.True(t, states[1].Partial)
	assert.False(t, states[2].Partial)
}

func TestSearch_BothSourcesFail(t *testing.T) {
	remote := &fakeRemote{
		fts: returns(nil, errors.New("fts unavailable")),
		emb: returns(nil, errors.New("function crashed")),
	}
	c, _ := newClient(t, remote)

	c.Search("auth")
	state := waitForState(t, c, status(searchstate.Error))
	assert.NotEmpty(t, state.Message)
}

func TestSearch_OneSourceFailsOtherSucceeds(t *testing.T) {
	release := make(chan struct{})
	remote := &fakeRemote{
		fts: returns(nil, errors.New("fts unavailable")),
		emb: func(ctx context.Context, query string) (json.RawMessage, error) {
			<-release
			return resultJSON(3), nil
		},
	}
	c, _ := newClient(t, remote)

	c.Search("auth")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, searchstate.Loading, c.State().Status)

	close(release)
	state := waitForState(t, c, status(searchstate.Results))
	assert.Equal(t, []core.ID{3}, ids(state))
	assert.False(t, state.Partial)
}

func TestSearch_NoMatchesIsEmpty(t *testing.T) {
	remote := &fakeRemote{fts: returns(json.RawMessage(`[]`), nil), emb: returns(json.RawMessage(`[]`), nil)}
	c, _ := newClient(t, remote)

	c.Search("zzz")
	waitForState(t, c, status(searchstate.Empty))
}

func TestSearch_SupersededResultsDiscarded(t *testing.T) {
	releaseA := make(chan struct{})
	var cancelledA atomic.Bool

	slowA := func(ctx context.Context, query string) (json.RawMessage, error) {
		if query != "a" {
			return resultJSON(2), nil
		}
		<-releaseA
		cancelledA.Store(ctx.Err() != nil)
		// Answer as if the request could not be aborted.
		return resultJSON(1), nil
	}
	c, _ := newClient(t, &fakeRemote{fts: slowA, emb: slowA})

	c.Search("a")
	c.Search("b")
	waitForState(t, c, func(s searchstate.State) bool { return s.Status == searchstate.Results && !s.Partial })

	close(releaseA)
	time.Sleep(30 * time.Millisecond)

	state := c.State()
	assert.Equal(t, []core.ID{2}, ids(state))
	assert.Equal(t, uint64(2), state.Key)
	assert.True(t, cancelledA.Load(), "calls for the superseded query are cancelled")
}

func TestSearch_BlankQueryResets(t *testing.T) {
	remote := &fakeRemote{fts: returns(resultJSON(1), nil), emb: returns(resultJSON(1), nil)}
	c, _ := newClient(t, remote)

	c.Search("auth")
	waitForState(t, c, func(s searchstate.State) bool { return s.Status == searchstate.Results && !s.Partial })

	c.Search("   ")
	assert.Equal(t, searchstate.Initial, c.State().Status)
	assert.Equal(t, int32(2), remote.calls.Load())
}

func TestReset_CancelsPendingCalls(t *testing.T) {
	started := make(chan struct{}, 2)
	block := func(ctx context.Context, query string) (json.RawMessage, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c, _ := newClient(t, &fakeRemote{fts: block, emb: block})

	c.Search("auth")
	<-started
	<-started
	c.Reset()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, searchstate.Initial, c.State().Status, "cancelled calls do not surface as errors")
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	remote := &fakeRemote{fts: returns(resultJSON(1), nil), emb: returns(resultJSON(1), nil)}
	c, err := New(remote)
	require.NoError(t, err)
	defer c.Close()

	var count atomic.Int32
	unsubscribe := c.Subscribe(func(searchstate.State) { count.Add(1) })
	unsubscribe()

	c.Search("auth")
	waitForState(t, c, func(s searchstate.State) bool { return s.Status == searchstate.Results && !s.Partial })
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}

func TestClose_StopsSearching(t *testing.T) {
	remote := &fakeRemote{fts: returns(resultJSON(1), nil), emb: returns(resultJSON(1), nil)}
	c, err := New(remote)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	c.Search("auth")
	assert.Equal(t, int32(0), remote.calls.Load())
}

// fakeWorker answers SEARCH on the worker end of a hub.
type fakeWorker struct {
	port  protocol.Port
	reply func(protocol.Search) protocol.Message
	mu    sync.Mutex
	seen  []protocol.Message
}

func startFakeWorker(t *testing.T, hub *protocol.Hub, reply func(protocol.Search) protocol.Message) *fakeWorker {
	t.Helper()
	w := &fakeWorker{port: hub.Worker(), reply: reply}
	unsubscribe := w.port.Subscribe(func(msg protocol.Message) {
		w.mu.Lock()
		w.seen = append(w.seen, msg)
		w.mu.Unlock()
		if search, ok := msg.(protocol.Search); ok && w.reply != nil {
			if out := w.reply(search); out != nil {
				w.port.Post(context.Background(), out)
			}
		}
	})
	t.Cleanup(unsubscribe)
	return w
}

func (w *fakeWorker) received() []protocol.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]protocol.Message(nil), w.seen...)
}

func newHub(t *testing.T) *protocol.Hub {
	t.Helper()
	hub, err := protocol.NewHub()
	require.NoError(t, err)
	t.Cleanup(func() { hub.Close() })
	return hub
}

func announceReady(t *testing.T, hub *protocol.Hub, c *Client) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, protocol.PostCheckpoint(ctx, hub.Worker(), protocol.StatusConnected))
	require.NoError(t, protocol.PostCheckpoint(ctx, hub.Worker(), protocol.StatusReady))
	require.Eventually(t, c.WorkerReady, time.Second, 5*time.Millisecond)
}

func TestSearch_UsesReadyWorker(t *testing.T) {
	hub := newHub(t)
	startFakeWorker(t, hub, func(s protocol.Search) protocol.Message {
		return protocol.SearchResults{RequestID: s.ID, Matches: resultJSON(7)}
	})
	remote := &fakeRemote{fts: returns(nil, errors.New("unused")), emb: returns(nil, errors.New("unused"))}
	c, _ := newClient(t, remote, WithPort(hub.Host()))
	announceReady(t, hub, c)

	c.Search("auth")
	state := waitForState(t, c, status(searchstate.Results))
	assert.Equal(t, []core.ID{7}, ids(state))
	assert.False(t, state.Partial)
	assert.Equal(t, int32(0), remote.calls.Load())
}

func TestSearch_WorkerNotYetReadyUsesRemote(t *testing.T) {
	hub := newHub(t)
	w := startFakeWorker(t, hub, nil)
	remote := &fakeRemote{fts: returns(resultJSON(1), nil), emb: returns(resultJSON(1), nil)}
	c, _ := newClient(t, remote, WithPort(hub.Host()))

	c.Search("auth")
	waitForState(t, c, status(searchstate.Results))
	assert.Equal(t, int32(2), remote.calls.Load())
	assert.Empty(t, w.received())
}

func TestSearch_SkipWorker(t *testing.T) {
	hub := newHub(t)
	w := startFakeWorker(t, hub, func(s protocol.Search) protocol.Message {
		return protocol.SearchResults{RequestID: s.ID, Matches: resultJSON(7)}
	})
	remote := &fakeRemote{fts: returns(resultJSON(1), nil), emb: returns(resultJSON(1), nil)}
	c, _ := newClient(t, remote, WithPort(hub.Host()), WithSkipWorker(func() bool { return true }))
	announceReady(t, hub, c)

	c.Search("auth")
	state := waitForState(t, c, func(s searchstate.State) bool { return s.Status == searchstate.Results && !s.Partial })
	assert.Equal(t, []core.ID{1}, ids(state))
	assert.Empty(t, w.received())
}

func TestSearch_NotReadyReplyFallsBack(t *testing.T) {
	hub := newHub(t)
	startFakeWorker(t, hub, func(s protocol.Search) protocol.Message {
		return protocol.NotReady{RequestID: s.ID, Hint: protocol.FallbackHint}
	})
	remote := &fakeRemote{fts: returns(resultJSON(4), nil), emb: returns(resultJSON(5), nil)}
	c, _ := newClient(t, remote, WithPort(hub.Host()))
	announceReady(t, hub, c)

	c.Search("auth")
	state := waitForState(t, c, func(s searchstate.State) bool { return s.Status == searchstate.Results && !s.Partial })
	assert.ElementsMatch(t, []core.ID{4, 5}, ids(state))
	assert.False(t, c.WorkerReady())
}

func TestSearch_WorkerSearchError(t *testing.T) {
	hub := newHub(t)
	startFakeWorker(t, hub, func(s protocol.Search) protocol.Message {
		return protocol.SearchError{RequestID: s.ID, Message: "vector search failed"}
	})
	remote := &fakeRemote{fts: returns(nil, nil), emb: returns(nil, nil)}
	c, _ := newClient(t, remote, WithPort(hub.Host()))
	announceReady(t, hub, c)

	c.Search("auth")
	state := waitForState(t, c, status(searchstate.Error))
	assert.Equal(t, "vector search failed", state.Message)
}

func TestSearch_StaleWorkerReplyDiscarded(t *testing.T) {
	hub := newHub(t)
	var searches []protocol.Search
	var mu sync.Mutex
	w := startFakeWorker(t, hub, func(s protocol.Search) protocol.Message {
		mu.Lock()
		defer mu.Unlock()
		searches = append(searches, s)
		return nil
	})
	remote := &fakeRemote{fts: returns(nil, nil), emb: returns(nil, nil)}
	c, _ := newClient(t, remote, WithPort(hub.Host()))
	announceReady(t, hub, c)

	c.Search("a")
	c.Search("b")
	require.Eventually(t, func() bool { return len(w.received()) == 2 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	first, second := searches[0], searches[1]
	mu.Unlock()

	ctx := context.Background()
	require.NoError(t, hub.Worker().Post(ctx, protocol.SearchResults{RequestID: second.ID, Matches: resultJSON(2)}))
	require.NoError(t, hub.Worker().Post(ctx, protocol.SearchResults{RequestID: first.ID, Matches: resultJSON(1)}))

	waitForState(t, c, status(searchstate.Results))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []core.ID{2}, ids(c.State()))
}

func TestReset_AbortsWorkerSearch(t *testing.T) {
	hub := newHub(t)
	w := startFakeWorker(t, hub, nil)
	remote := &fakeRemote{fts: returns(nil, nil), emb: returns(nil, nil)}
	c, _ := newClient(t, remote, WithPort(hub.Host()))
	announceReady(t, hub, c)

	c.Search("auth")
	c.Reset()

	require.Eventually(t, func() bool {
		msgs := w.received()
		return len(msgs) == 2 && msgs[1].Type() == protocol.TypeAbortSearch
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, searchstate.Initial, c.State().Status)
}

func TestQuery_WaitsForEverySource(t *testing.T) {
	remote := &fakeRemote{
		fts: returns(nil, errors.New("fts unavailable")),
		emb: func(ctx context.Context, query string) (json.RawMessage, error) {
			time.Sleep(20 * time.Millisecond)
			return resultJSON(4, 5), nil
		},
	}
	c, _ := newClient(t, remote)

	state, err := c.Query(context.Background(), "auth")
	require.NoError(t, err)
	assert.Equal(t, searchstate.Results, state.Status)
	assert.Equal(t, []core.ID{4, 5}, ids(state))
}

func TestQuery_Worker(t *testing.T) {
	hub := newHub(t)
	startFakeWorker(t, hub, func(s protocol.Search) protocol.Message {
		return protocol.SearchError{RequestID: s.ID, Message: "embedding failed"}
	})
	remote := &fakeRemote{fts: returns(nil, errors.New("unused")), emb: returns(nil, errors.New("unused"))}
	c, _ := newClient(t, remote, WithPort(hub.Host()))
	announceReady(t, hub, c)

	state, err := c.Query(context.Background(), "auth")
	require.NoError(t, err)
	assert.Equal(t, searchstate.Error, state.Status)
	assert.Equal(t, "embedding failed", state.Message)
}

func TestQuery_Superseded(t *testing.T) {
	remote := &fakeRemote{
		fts: func(ctx context.Context, query string) (json.RawMessage, error) {
			if query == "slow" {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return resultJSON(1), nil
		},
		emb: returns(resultJSON(1), nil),
	}
	c, _ := newClient(t, remote)

	errs := make(chan error, 1)
	go func() {
		_, err := c.Query(context.Background(), "slow")
		errs <- err
	}()
	require.Eventually(t, func() bool { return c.State().Status != searchstate.Initial }, time.Second, 5*time.Millisecond)

	c.Search("fast")
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded query did not return")
	}
}

func TestQuery_ContextDone(t *testing.T) {
	remote := &fakeRemote{
		fts: func(ctx context.Context, query string) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		emb: returns(json.RawMessage(`[]`), nil),
	}
	c, _ := newClient(t, remote)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Query(ctx, "auth")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQuery_BlankResets(t *testing.T) {
	remote := &fakeRemote{fts: returns(resultJSON(1), nil), emb: returns(resultJSON(1), nil)}
	c, _ := newClient(t, remote)

	state, err := c.Query(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, searchstate.Initial, state.Status)
	assert.Equal(t, int32(0), remote.calls.Load())
}

func TestQuery_AllSourcesFailAfterEarlierQuery(t *testing.T) {
	tests := []struct {
		name  string
		first json.RawMessage
		want  searchstate.Status
	}{
		{name: "after empty", first: json.RawMessage(`[]`), want: searchstate.Empty},
		{name: "after results", first: resultJSON(1), want: searchstate.Results},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answer := func(ctx context.Context, query string) (json.RawMessage, error) {
				if query == "second" {
					return nil, errors.New("connection refused")
				}
				return tt.first, nil
			}
			c, _ := newClient(t, &fakeRemote{fts: answer, emb: answer})

			state, err := c.Query(context.Background(), "first")
			require.NoError(t, err)
			require.Equal(t, tt.want, state.Status)

			state, err = c.Query(context.Background(), "second")
			require.NoError(t, err)
			assert.Equal(t, searchstate.Error, state.Status)
			assert.Equal(t, "connection refused", state.Message)
			assert.Empty(t, state.Visible())
		})
	}
}

// stallingPort holds the first SEARCH for "a" inside Post until release
// is closed.
type stallingPort struct {
	protocol.Port
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *stallingPort) Post(ctx context.Context, msg protocol.Message) error {
	if s, ok := msg.(protocol.Search); ok && s.Query == "a" {
		p.once.Do(func() {
			close(p.entered)
			<-p.release
		})
	}
	return p.Port.Post(ctx, msg)
}

func TestQuery_ConcurrentSearchesReachWorkerInOrder(t *testing.T) {
	hub := newHub(t)

	// The worker only answers the latest search it has received.
	var mu sync.Mutex
	var latest uuid.UUID
	startFakeWorker(t, hub, func(s protocol.Search) protocol.Message {
		mu.Lock()
		latest = s.ID
		mu.Unlock()
		match := 1
		if s.Query == "b" {
			match = 2
		}
		time.AfterFunc(50*time.Millisecond, func() {
			mu.Lock()
			current := latest
			mu.Unlock()
			if current == s.ID {
				hub.Worker().Post(context.Background(), protocol.SearchResults{RequestID: s.ID, Matches: resultJSON(match)})
			}
		})
		return nil
	})

	port := &stallingPort{Port: hub.Host(), entered: make(chan struct{}), release: make(chan struct{})}
	remote := &fakeRemote{fts: returns(nil, errors.New("unused")), emb: returns(nil, errors.New("unused"))}
	c, _ := newClient(t, remote, WithPort(port))
	announceReady(t, hub, c)

	go c.Search("a")
	<-port.entered

	type outcome struct {
		state searchstate.State
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		state, err := c.Query(ctx, "b")
		done <- outcome{state, err}
	}()

	time.Sleep(20 * time.Millisecond)
	close(port.release)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, searchstate.Results, got.state.Status)
	assert.Equal(t, []core.ID{2}, ids(got.state))
	assert.Equal(t, int32(0), remote.calls.Load())
}
