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

// Package client is the host side of the search engine.
//
// A Client sends each query to the local worker once the worker has
// announced READY. Until then, or when the caller opts out, it runs the
// remote fallback: a full-text RPC and an embedding-similarity function,
// called concurrently. The first answer is shown as partial results and the
// second is merged into it.
//
// Every Search or Reset takes a new request key and cancels the calls of
// the previous one; replies for an older key are discarded.
package client
