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

package protocol

import (
	"context"
	"log/slog"
	"sync"
)

// Hub is the in-process worker channel. Messages cross it in their encoded
// form, so the two sides never share memory.
//
// Late host subscribers are first sent the most recent CHECKPOINT, so
// readiness can be observed by consumers that attach after the worker
// announced it.
type Hub struct {
	toWorker *bus
	toHost   *bus
}

// HubOption configures a Hub.
type HubOption func(*Hub) error

// WithHubLogger sets a custom logger.
// Default is slog.Default().
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) error {
		if logger == nil {
			logger = slog.Default()
		}
		h.toWorker.logger = logger.With("component", "hub", "direction", "to-worker")
		h.toHost.logger = logger.With("component", "hub", "direction", "to-host")
		return nil
	}
}

// NewHub creates an open hub.
func NewHub(opts ...HubOption) (*Hub, error) {
	logger := slog.Default()
	h := &Hub{
		toWorker: newBus(logger.With("component", "hub", "direction", "to-worker"), ""),
		toHost:   newBus(logger.With("component", "hub", "direction", "to-host"), TypeCheckpoint),
	}
	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Host returns the host end: it posts to the worker and receives worker messages.
func (h *Hub) Host() Port {
	return hubPort{out: h.toWorker, in: h.toHost}
}

// Worker returns the worker end.
func (h *Hub) Worker() Port {
	return hubPort{out: h.toHost, in: h.toWorker}
}

// Close stops delivery in both directions. Undelivered messages are dropped.
func (h *Hub) Close() error {
	h.toWorker.close()
	h.toHost.close()
	return nil
}

type hubPort struct {
	out *bus
	in  *bus
}

func (p hubPort) Post(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return p.out.publish(msg.Type(), data)
}

func (p hubPort) Subscribe(handler Handler) func() {
	return p.in.subscribe(handler)
}

// bus fans one direction out to its subscribers.
type bus struct {
	mu       sync.Mutex
	subs     map[uint64]*mailbox
	nextID   uint64
	closed   bool
	retain   Type // replayed to new subscribers; empty disables replay
	retained []byte
	logger   *slog.Logger
}

func newBus(logger *slog.Logger, retain Type) *bus {
	return &bus{
		subs:   make(map[uint64]*mailbox),
		retain: retain,
		logger: logger,
	}
}

func (b *bus) publish(t Type, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrPortClosed
	}
	if b.retain != "" && t == b.retain {
		b.retained = data
	}
	for _, mb := range b.subs {
		mb.push(data)
	}
	return nil
}

func (b *bus) subscribe(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	mb := newMailbox(handler, b.logger)
	if b.closed {
		mb.stop()
		return func() {}
	}
	if b.retained != nil {
		mb.push(b.retained)
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = mb
	go mb.run()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		mb.stop()
	}
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, mb := range b.subs {
		mb.stop()
		delete(b.subs, id)
	}
}

// mailbox is an unbounded FIFO drained by one goroutine, so a slow
// subscriber never blocks the poster or other subscribers.
type mailbox struct {
	mu       sync.Mutex
	queue    [][]byte
	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	handler  Handler
	logger   *slog.Logger
}

func newMailbox(handler Handler, logger *slog.Logger) *mailbox {
	return &mailbox{
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		handler: handler,
		logger:  logger,
	}
}

func (m *mailbox) push(data []byte) {
	m.mu.Lock()
	m.queue = append(m.queue, data)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}

		for {
			select {
			case <-m.done:
				return
			default:
			}

			m.mu.Lock()
			if len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			data := m.queue[0]
			m.queue[0] = nil
			m.queue = m.queue[1:]
			m.mu.Unlock()

			m.deliver(data)
		}
	}
}

func (m *mailbox) deliver(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		m.logger.Warn("dropping undecodable message", "err", err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("subscriber panicked", "type", msg.Type(), "panic", r)
		}
	}()
	m.handler(msg)
}
