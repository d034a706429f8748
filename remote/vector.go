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
	"bytes"
	"encoding/json"
	"fmt"
)

// Vector decodes an embedding column. PostgREST serialises pgvector values as
// text ("[0.1,0.2]"); JSON arrays and null are accepted too.
type Vector []float32

func (v *Vector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = nil
		return nil
	}

	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEmbedding, err)
		}
		if text == "" {
			*v = nil
			return nil
		}
		data = []byte(text)
	}

	var values []float32
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, err)
	}
	*v = values
	return nil
}
