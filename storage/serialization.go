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

package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/poiesic/docsearch/core"
)

// MarshalID encodes an ID as 8 big-endian bytes so encoded IDs sort numerically.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func UnmarshalID(data []byte) (core.ID, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: id is %d bytes", ErrSerializationFailed, len(data))
	}
	return core.ID(binary.BigEndian.Uint64(data)), nil
}

func MarshalPage(page *core.Page) ([]byte, error) {
	data, err := json.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

func UnmarshalPage(data []byte) (*core.Page, error) {
	var page core.Page
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &page, nil
}

func MarshalSection(section *core.PageSection) ([]byte, error) {
	data, err := json.Marshal(section)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

func UnmarshalSection(data []byte) (*core.PageSection, error) {
	var section core.PageSection
	if err := json.Unmarshal(data, &section); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &section, nil
}
