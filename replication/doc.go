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

// Package replication mirrors the remote page and page_section tables into
// the local store.
//
// Each table is read with keyset pagination: rows with id greater than the
// cursor, ordered by id, a batch at a time, until a batch comes back shorter
// than the batch size. A table of N rows and batch size B therefore takes
// ceil(N/B) fetches, plus one empty fetch when B divides N. Rows of a batch
// are upserted concurrently on an ants pool; the next batch is fetched once
// the whole batch has been applied.
//
// Failures are split in two kinds. A row that cannot be decoded or stored
// becomes a *RowError in the Report and replication carries on. A fetch that
// keeps failing after retries aborts the run with a *FetchError.
package replication
