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
	"fmt"
	"slices"

	"github.com/poiesic/docsearch/core"
)

// Reduce returns the state that follows action. Invalid transitions leave
// the state unchanged; use Step to detect them.
func Reduce(state State, action Action) State {
	next, _ := Step(state, action)
	return next
}

// Step is Reduce that also reports invalid transitions. On error the
// returned state is state itself.
//
// Actions for a key older than the state's are stale and ignored.
func Step(state State, action Action) (State, error) {
	if action.Key < state.Key {
		return state, nil
	}

	switch action.Kind {
	case Reset:
		return State{Status: Initial, Key: action.Key}, nil
	case Triggered:
		return triggered(state, action), nil
	case Completed:
		if state.Status == Initial {
			return state, invalid(state, action)
		}
		return completed(state, action), nil
	case Errored:
		if state.Status == Initial {
			return state, invalid(state, action)
		}
		return errored(state, action), nil
	}
	return state, fmt.Errorf("%w: unknown action %d", ErrInvalidTransition, action.Kind)
}

func invalid(state State, action Action) error {
	return fmt.Errorf("%w: %s + %s", ErrInvalidTransition, state.Status, action.Kind)
}

// triggered keeps whatever is on screen: previous results become stale,
// and an empty state stays empty until results or a reset arrive.
func triggered(state State, action Action) State {
	switch state.Status {
	case Results, Stale:
		return State{Status: Stale, Key: action.Key, Results: state.Results, Partial: state.Partial}
	case Empty:
		return State{Status: Empty, Key: action.Key}
	}
	return State{Status: Loading, Key: action.Key}
}

func completed(state State, action Action) State {
	fresh := Parse(action.Raw)

	// A second source for the same query merges; anything else replaces.
	all := fresh
	if state.Status == Results && state.Key == action.Key {
		all = merge(state.Results, fresh)
	}

	if len(all) == 0 {
		if action.allSourcesLoaded() {
			return State{Status: Empty, Key: action.Key}
		}
		next := state
		next.Key = action.Key
		return next
	}

	return State{
		Status:  Results,
		Key:     action.Key,
		Results: all,
		Partial: !action.allSourcesLoaded(),
	}
}

// errored becomes Error once every source has reported and none of them
// produced results for action's key. Stale results and an empty answer
// carried over from an earlier query do not count; results for this key
// win over a failure.
func errored(state State, action Action) State {
	if state.Status == Results && state.Key == action.Key {
		return state
	}
	if action.allSourcesLoaded() {
		return State{Status: Error, Key: action.Key, Message: action.Message}
	}
	return state
}

// merge appends the results of fresh whose id is not already present.
func merge(existing, fresh []core.SearchResult) []core.SearchResult {
	merged := slices.Clone(existing)
	seen := make(map[core.ID]struct{}, len(existing)+len(fresh))
	for _, r := range existing {
		seen[r.Id] = struct{}{}
	}
	for _, r := range fresh {
		if _, ok := seen[r.Id]; ok {
			continue
		}
		seen[r.Id] = struct{}{}
		merged = append(merged, r)
	}
	return merged
}
