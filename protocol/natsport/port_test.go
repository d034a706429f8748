package natsport

import (
	"context"
	"sync"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/poiesic/docsearch/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Random port
		NoLog:  true,
		NoSigs: true,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func connect(t *testing.T, server *natsserver.Server) *nats.Conn {
	t.Helper()
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

type recorder struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (r *recorder) handle(msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) waitFor(t *testing.T, n int) []protocol.Message {
	t.Helper()
	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.msgs) >= n
	}, 2*time.Second, 5*time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.msgs...)
}

func newPorts(t *testing.T) (host, worker *Port) {
	t.Helper()
	server := startTestNATSServer(t)

	var err error
	worker, err = New(connect(t, server), Worker, WithPrefix("test"))
	require.NoError(t, err)
	t.Cleanup(func() { worker.Close() })

	host, err = New(connect(t, server), Host, WithPrefix("test"), WithReplayTimeout(200*time.Millisecond))
	require.NoError(t, err)
	return host, worker
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Host)
	assert.Error(t, err)

	server := startTestNATSServer(t)
	_, err = New(connect(t, server), Side(7))
	assert.ErrorIs(t, err, ErrInvalidSide)

	_, err = New(connect(t, server), Host, WithPrefix(""))
	assert.Error(t, err)
}

func TestPort_HostToWorker(t *testing.T) {
	host, worker := newPorts(t)

	var rec recorder
	unsubscribe := worker.Subscribe(rec.handle)
	defer unsubscribe()
	require.NoError(t, host.conn.Flush())
	require.NoError(t, worker.conn.Flush())

	ctx := context.Background()
	require.NoError(t, host.Post(ctx, protocol.Init{RemoteURL: "http://remote", RemoteKey: "k"}))
	require.NoError(t, host.Post(ctx, protocol.Search{Query: "storage"}))

	assert.Equal(t, []protocol.Message{
		protocol.Init{RemoteURL: "http://remote", RemoteKey: "k"},
		protocol.Search{Query: "storage"},
	}, rec.waitFor(t, 2))
}

func TestPort_BroadcastToHosts(t *testing.T) {
	host, worker := newPorts(t)
	ctx := context.Background()

	var first, second recorder
	defer host.Subscribe(first.handle)()
	defer host.Subscribe(second.handle)()
	require.NoError(t, host.conn.Flush())

	require.NoError(t, protocol.PostError(ctx, worker, "1 row failed", map[string]any{"failed": float64(1)}))

	want := []protocol.Message{protocol.Error{Message: "1 row failed", Params: map[string]any{"failed": float64(1)}}}
	assert.Equal(t, want, first.waitFor(t, 1))
	assert.Equal(t, want, second.waitFor(t, 1))
}

func TestPort_LateHostReceivesCheckpoint(t *testing.T) {
	host, worker := newPorts(t)
	ctx := context.Background()

	require.NoError(t, protocol.PostCheckpoint(ctx, worker, protocol.StatusConnected))
	require.NoError(t, protocol.PostCheckpoint(ctx, worker, protocol.StatusReady))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, protocol.WaitForStatus(waitCtx, host, protocol.StatusReady))
}

func TestPort_PostAfterClose(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	port, err := New(nc, Host)
	require.NoError(t, err)
	nc.Close()

	err = port.Post(context.Background(), protocol.AbortSearch{})
	assert.ErrorIs(t, err, protocol.ErrPortClosed)
}
