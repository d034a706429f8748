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

package replication

import (
	"errors"
	"fmt"

	"github.com/poiesic/docsearch/core"
)

var (
	// ErrSourceRequired is returned when a source is not provided.
	ErrSourceRequired = errors.New("source required")

	// ErrTargetRequired is returned when a target store is not provided.
	ErrTargetRequired = errors.New("target required")

	// ErrRowFailed marks a single row that could not be replicated.
	// Replication continues past such rows.
	ErrRowFailed = errors.New("replication row failed")

	// ErrFetchFailed marks a table fetch that failed after all retries.
	// Replication of every table stops.
	ErrFetchFailed = errors.New("replication fetch failed")

	// ErrCursorStalled is returned when a full batch did not advance the cursor.
	ErrCursorStalled = errors.New("replication cursor did not advance")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")
)

// RowError records one failed row.
type RowError struct {
	Table string
	ID    core.ID
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s row %d: %v", e.Table, e.ID, e.Err)
}

// Unwrap exposes both ErrRowFailed and the underlying cause to errors.Is.
func (e *RowError) Unwrap() []error {
	return []error{ErrRowFailed, e.Err}
}

// FetchError records a failed table fetch.
type FetchError struct {
	Table string
	After core.ID
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s after id %d: %v", e.Table, e.After, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}
