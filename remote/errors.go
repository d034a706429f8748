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

package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidURL indicates the remote base URL could not be used.
	ErrInvalidURL = errors.New("remote: invalid base url")

	// ErrUnexpectedResponse indicates a response body of the wrong shape.
	ErrUnexpectedResponse = errors.New("remote: unexpected response")

	// ErrInvalidEmbedding indicates an embedding value that is neither null,
	// a JSON array, nor pgvector text.
	ErrInvalidEmbedding = errors.New("remote: invalid embedding")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote: status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
