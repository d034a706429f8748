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

package natsport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/poiesic/docsearch/protocol"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "docsearch"

// Side selects which end of the channel a Port represents.
type Side int

const (
	// Host posts to the worker and receives worker messages.
	Host Side = iota
	// Worker posts to hosts and receives host messages.
	Worker
)

// ErrInvalidSide is returned for a Side other than Host or Worker.
var ErrInvalidSide = errors.New("invalid port side")

// Port carries protocol envelopes over NATS core subjects:
//
//	<prefix>.worker      host to worker
//	<prefix>.host        worker to hosts
//	<prefix>.checkpoint  request/reply for the worker's latest CHECKPOINT
//
// A worker-side Port answers checkpoint requests, so host subscribers that
// attach after READY still learn about it.
type Port struct {
	conn    *nats.Conn
	side    Side
	prefix  string
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	lastCheck []byte
	responder *nats.Subscription
}

var _ protocol.Port = (*Port)(nil)

// Option configures a Port.
type Option func(*Port) error

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(p *Port) error {
		if prefix == "" {
			return errors.New("subject prefix cannot be empty")
		}
		p.prefix = prefix
		return nil
	}
}

// WithReplayTimeout bounds how long a host subscriber waits for the
// checkpoint replay. Default is one second.
func WithReplayTimeout(timeout time.Duration) Option {
	return func(p *Port) error {
		p.timeout = timeout
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Port) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// New creates a Port on conn. The connection is owned by the caller.
func New(conn *nats.Conn, side Side, opts ...Option) (*Port, error) {
	if conn == nil {
		return nil, errors.New("nats connection required")
	}
	if side != Host && side != Worker {
		return nil, ErrInvalidSide
	}

	p := &Port{
		conn:    conn,
		side:    side,
		prefix:  DefaultPrefix,
		timeout: time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "natsport", "prefix", p.prefix)

	if side == Worker {
		sub, err := conn.Subscribe(p.subject("checkpoint"), p.answerCheckpoint)
		if err != nil {
			return nil, fmt.Errorf("subscribe checkpoint requests: %w", err)
		}
		p.responder = sub
	}
	return p, nil
}

// Close stops answering checkpoint requests. Subscriptions made through
// Subscribe are released by their unsubscribe funcs.
func (p *Port) Close() error {
	if p.responder != nil {
		return p.responder.Unsubscribe()
	}
	return nil
}

func (p *Port) subject(name string) string {
	return p.prefix + "." + name
}

func (p *Port) outbound() string {
	if p.side == Host {
		return p.subject("worker")
	}
	return p.subject("host")
}

func (p *Port) inbound() string {
	if p.side == Host {
		return p.subject("host")
	}
	return p.subject("worker")
}

// Post publishes msg to the other side.
func (p *Port) Post(ctx context.Context, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if p.side == Worker && msg.Type() == protocol.TypeCheckpoint {
		p.mu.Lock()
		p.lastCheck = data
		p.mu.Unlock()
	}
	if err := p.conn.Publish(p.outbound(), data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return fmt.Errorf("%w: %w", protocol.ErrPortClosed, err)
		}
		return fmt.Errorf("publish %s: %w", msg.Type(), err)
	}
	return nil
}

// Subscribe delivers inbound messages to handler in arrival order. On the
// host side the worker's latest CHECKPOINT is requested first and delivered
// unless a live checkpoint has already arrived. handler must not call the
// returned unsubscribe func.
func (p *Port) Subscribe(handler protocol.Handler) func() {
	s := &subscriber{handler: handler, logger: p.logger}

	sub, err := p.conn.Subscribe(p.inbound(), func(m *nats.Msg) {
		s.deliver(m.Data, false)
	})
	if err != nil {
		p.logger.Error("subscribe failed", "subject", p.inbound(), "err", err)
		return func() {}
	}

	if p.side == Host {
		go p.replayCheckpoint(s)
	}

	return func() {
		s.close()
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			p.logger.Debug("unsubscribe failed", "err", err)
		}
	}
}

func (p *Port) replayCheckpoint(s *subscriber) {
	reply, err := p.conn.Request(p.subject("checkpoint"), nil, p.timeout)
	if err != nil {
		p.logger.Debug("no checkpoint to replay", "err", err)
		return
	}
	if len(reply.Data) == 0 {
		return
	}
	s.deliver(reply.Data, true)
}

func (p *Port) answerCheckpoint(m *nats.Msg) {
	p.mu.Lock()
	data := p.lastCheck
	p.mu.Unlock()
	if err := m.Respond(data); err != nil {
		p.logger.Debug("checkpoint reply failed", "err", err)
	}
}

// subscriber serialises delivery between the live subscription and the
// checkpoint replay.
type subscriber struct {
	mu            sync.Mutex
	handler       protocol.Handler
	sawCheckpoint bool
	closed        bool
	logger        *slog.Logger
}

func (s *subscriber) deliver(data []byte, replay bool) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warn("dropping undecodable message", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if msg.Type() == protocol.TypeCheckpoint {
		if replay && s.sawCheckpoint {
			return
		}
		s.sawCheckpoint = true
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subscriber panicked", "type", msg.Type(), "panic", r)
		}
	}()
	s.handler(msg)
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
