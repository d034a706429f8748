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

// Package remote is the HTTP client for the remote content database.
//
// It reads the page and page_section tables with keyset pagination through
// PostgREST, calls the docs_search_fts RPC and calls the search-embeddings
// edge function. Requests carry the project key in both the apikey header
// and a bearer Authorization header.
package remote
