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

package searchstate

import (
	"encoding/json"

	"github.com/poiesic/docsearch/core"
)

// Status is the closed set of search states.
type Status int

const (
	// Initial: nothing searched since the last reset.
	Initial Status = iota
	// Loading: a query is in flight and there is nothing to show.
	Loading
	// Results: matches for the current query.
	Results
	// Stale: a query is in flight; Results holds the previous query's matches.
	Stale
	// Empty: the query matched nothing.
	Empty
	// Error: every source failed and none produced results.
	Error
)

func (s Status) String() string {
	switch s {
	case Initial:
		return "initial"
	case Loading:
		return "loading"
	case Results:
		return "results"
	case Stale:
		return "stale"
	case Empty:
		return "empty"
	case Error:
		return "error"
	}
	return "unknown"
}

// State is one snapshot of a search session. States are values; the
// reducer never modifies its input.
type State struct {
	Status  Status
	Key     uint64              // Request key the state belongs to
	Results []core.SearchResult // Set for Results and Stale
	Partial bool                // Results came from some, not all, sources
	Message string              // Set for Error
}

// Visible returns the results a consumer should display.
func (s State) Visible() []core.SearchResult {
	if s.Status == Results || s.Status == Stale {
		return s.Results
	}
	return nil
}

// Kind discriminates actions.
type Kind int

const (
	Triggered Kind = iota
	Completed
	Errored
	Reset
)

func (k Kind) String() string {
	switch k {
	case Triggered:
		return "triggered"
	case Completed:
		return "completed"
	case Errored:
		return "errored"
	case Reset:
		return "reset"
	}
	return "unknown"
}

// Action is an input to the reducer.
//
// Sources counts the sources that have reported for Key, this one
// included, out of Total. A remote fallback has two sources; the worker
// path has one.
type Action struct {
	Kind    Kind
	Key     uint64
	Raw     json.RawMessage // Completed only
	Message string          // Errored only
	Sources int
	Total   int
}

// TriggeredAction starts the query identified by key.
func TriggeredAction(key uint64) Action {
	return Action{Kind: Triggered, Key: key}
}

// CompletedAction delivers one source's raw results for key.
func CompletedAction(key uint64, raw json.RawMessage, sources, total int) Action {
	return Action{Kind: Completed, Key: key, Raw: raw, Sources: sources, Total: total}
}

// ErroredAction reports that one source failed for key.
func ErroredAction(key uint64, message string, sources, total int) Action {
	return Action{Kind: Errored, Key: key, Message: message, Sources: sources, Total: total}
}

// ResetAction returns to Initial.
func ResetAction(key uint64) Action {
	return Action{Kind: Reset, Key: key}
}

func (a Action) allSourcesLoaded() bool {
	return a.Sources >= a.Total
}
