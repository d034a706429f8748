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

// Package searchstate holds the search session state machine and the
// parser for untrusted result payloads.
//
// Reduce is pure: it maps a State and an Action to the next State. Every
// action carries the request key of the query it belongs to, and actions
// for superseded keys are ignored, so a slow response can never overwrite
// the results of a newer query.
//
//	state = searchstate.Reduce(state, searchstate.TriggeredAction(key))
//	state = searchstate.Reduce(state, searchstate.CompletedAction(key, raw, 1, 2))
package searchstate
