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

// Package worker implements the search worker: an actor that owns the local
// store and the embedding extractor and talks to hosts only through a
// protocol.Port.
//
// Lifecycle:
//
//  1. Run posts CHECKPOINT{CONNECTED}.
//  2. INIT prepares the store schema, then replicates the remote tables
//     and warms the model concurrently.
//  3. When both have finished, row failures (if any) are reported in one
//     ERROR and CHECKPOINT{READY} is posted.
//  4. SEARCH runs against the local store. A new SEARCH or ABORT_SEARCH
//     cancels the query in flight, whose result is then never sent.
//
// A SEARCH before READY is answered with NOT_READY immediately. If the
// model fails to load, the worker reports it once and answers NOT_READY
// for the rest of its life.
package worker
