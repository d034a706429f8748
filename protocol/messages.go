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
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Version is the protocol version carried by every envelope.
const Version = 1

// Type discriminates the payload of an envelope.
type Type string

// Host to worker.
const (
	TypeInit        Type = "INIT"
	TypeSearch      Type = "SEARCH"
	TypeAbortSearch Type = "ABORT_SEARCH"
)

// Worker to host.
const (
	TypeCheckpoint    Type = "CHECKPOINT"
	TypeError         Type = "ERROR"
	TypeSearchError   Type = "SEARCH_ERROR"
	TypeSearchResults Type = "SEARCH_RESULTS"
	TypeNotReady      Type = "NOT_READY"
)

// Status is the value of a CHECKPOINT.
type Status string

const (
	StatusConnected Status = "CONNECTED"
	StatusReady     Status = "READY"
)

// FallbackHint is the advisory sent with NOT_READY.
const FallbackHint = "local search is not ready; use the remote fallback"

// Message is implemented by every payload type.
type Message interface {
	Type() Type
}

// Init asks the worker to replicate from a remote and warm its extractor.
type Init struct {
	RemoteURL string `json:"remoteUrl"`
	RemoteKey string `json:"remoteKey"`
}

// Search asks the worker to run a local query. ID correlates the reply.
type Search struct {
	ID    uuid.UUID `json:"id"`
	Query string    `json:"query"`
}

// AbortSearch cancels the worker's current query.
type AbortSearch struct{}

// Checkpoint announces a worker lifecycle stage.
type Checkpoint struct {
	Status Status `json:"status"`
}

// Error reports a worker-level failure. Params carries structured detail,
// such as the rows that failed to replicate.
type Error struct {
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}

// SearchError reports that one local query failed.
type SearchError struct {
	RequestID uuid.UUID `json:"requestId"`
	Message   string    `json:"message"`
}

// SearchResults carries the rows matched by a local query.
// Matches is left raw: the host treats it as untrusted input.
type SearchResults struct {
	RequestID uuid.UUID       `json:"requestId"`
	Matches   json.RawMessage `json:"matches"`
}

// NotReady answers a SEARCH received before READY.
type NotReady struct {
	RequestID uuid.UUID `json:"requestId"`
	Hint      string    `json:"hint,omitempty"`
}

func (Init) Type() Type          { return TypeInit }
func (Search) Type() Type        { return TypeSearch }
func (AbortSearch) Type() Type   { return TypeAbortSearch }
func (Checkpoint) Type() Type    { return TypeCheckpoint }
func (Error) Type() Type         { return TypeError }
func (SearchError) Type() Type   { return TypeSearchError }
func (SearchResults) Type() Type { return TypeSearchResults }
func (NotReady) Type() Type      { return TypeNotReady }

// Envelope is the wire form of a message.
type Envelope struct {
	V       int             `json:"v"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps msg in a versioned envelope.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}
	return json.Marshal(Envelope{V: Version, Type: msg.Type(), Payload: payload})
}

// Decode parses an envelope and returns its typed payload. Messages
// are returned by value.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if env.V != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.V)
	}

	switch env.Type {
	case TypeInit:
		return decodePayload[Init](env)
	case TypeSearch:
		return decodePayload[Search](env)
	case TypeAbortSearch:
		return decodePayload[AbortSearch](env)
	case TypeCheckpoint:
		return decodePayload[Checkpoint](env)
	case TypeError:
		return decodePayload[Error](env)
	case TypeSearchError:
		return decodePayload[SearchError](env)
	case TypeSearchResults:
		return decodePayload[SearchResults](env)
	case TypeNotReady:
		return decodePayload[NotReady](env)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
}

func decodePayload[T Message](env Envelope) (Message, error) {
	var msg T
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return msg, nil
	}
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", ErrMalformed, env.Type, err)
	}
	return msg, nil
}
