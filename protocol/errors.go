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

import "errors"

var (
	// ErrUnknownType is returned when decoding an envelope whose type is not part of the protocol.
	ErrUnknownType = errors.New("unknown message type")

	// ErrUnsupportedVersion is returned when decoding an envelope with a different protocol version.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")

	// ErrMalformed is returned when an envelope or its payload is not valid JSON.
	ErrMalformed = errors.New("malformed message")

	// ErrPortClosed is returned when posting to a closed port.
	ErrPortClosed = errors.New("port closed")

	// ErrNilMessage is returned when posting or encoding a nil message.
	ErrNilMessage = errors.New("nil message")
)
