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
	"encoding/json"

	"github.com/poiesic/docsearch/core"
)

// InvalidRow is a fetched row that could not be decoded.
type InvalidRow struct {
	ID  core.ID // Zero when the id itself was unreadable
	Err error
}

// Batch is one page of a keyset-paginated table fetch.
type Batch[T any] struct {
	Rows    []T
	Invalid []InvalidRow

	// Count is the number of rows the remote returned, decodable or not.
	Count int

	// LastID is the highest id seen in the batch; the next fetch starts after it.
	LastID core.ID
}

func decodeBatch[T any](raw []json.RawMessage, decode func(json.RawMessage) (T, core.ID, error)) *Batch[T] {
	batch := &Batch[T]{Count: len(raw)}
	for _, data := range raw {
		row, id, err := decode(data)
		if err != nil {
			var probe struct {
				ID core.ID `json:"id"`
			}
			_ = json.Unmarshal(data, &probe)
			id = probe.ID
			batch.Invalid = append(batch.Invalid, InvalidRow{ID: id, Err: err})
		} else {
			batch.Rows = append(batch.Rows, row)
		}
		if id > batch.LastID {
			batch.LastID = id
		}
	}
	return batch
}
