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

	"github.com/google/uuid"
)

// Handler receives decoded messages. Each subscriber's handler is called
// sequentially, in the order messages were posted.
type Handler func(Message)

// Port is one end of the worker channel. Post sends to the other end;
// Subscribe receives everything the other end posts. Any number of
// subscribers may be attached to a port and each receives every message.
type Port interface {
	Post(ctx context.Context, msg Message) error
	Subscribe(handler Handler) (unsubscribe func())
}

// PostCheckpoint announces a worker lifecycle stage.
func PostCheckpoint(ctx context.Context, port Port, status Status) error {
	return port.Post(ctx, Checkpoint{Status: status})
}

// PostError reports a worker-level failure.
func PostError(ctx context.Context, port Port, message string, params map[string]any) error {
	return port.Post(ctx, Error{Message: message, Params: params})
}

// PostSearchError reports that the query identified by requestID failed.
func PostSearchError(ctx context.Context, port Port, requestID uuid.UUID, err error) error {
	msg := SearchError{RequestID: requestID}
	if err != nil {
		msg.Message = err.Error()
	}
	return port.Post(ctx, msg)
}

// WaitForStatus blocks until a CHECKPOINT with the given status arrives
// on port, or ctx is done.
func WaitForStatus(ctx context.Context, port Port, status Status) error {
	reached := make(chan struct{})
	var closed bool
	unsubscribe := port.Subscribe(func(msg Message) {
		if cp, ok := msg.(Checkpoint); ok && cp.Status == status && !closed {
			closed = true
			close(reached)
		}
	})
	defer unsubscribe()

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
