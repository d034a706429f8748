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

package badger

import (
	"encoding/binary"

	"github.com/poiesic/docsearch/core"
)

// Key prefixes for different data types
const (
	pagePrefix         = "page:"
	sectionPrefix      = "psec:"
	pageSectionsPrefix = "pgsec:"
	schemaVersionKey   = "schema:version"
)

// SchemaVersion is written by EnsureSchema. Bump it when the key layout or
// value encoding changes.
const SchemaVersion = "1"

// idKey appends id to prefix in BigEndian order so keys sort by ID.
func idKey(prefix string, id core.ID) []byte {
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePageKey generates a key for a page by ID.
func makePageKey(id core.ID) []byte {
	return idKey(pagePrefix, id)
}

// makeSectionKey generates a key for a page section by ID.
func makeSectionKey(id core.ID) []byte {
	return idKey(sectionPrefix, id)
}

// makePageSectionKey generates a composite key for the page -> section index.
// Format: prefix:pageID:sectionID
func makePageSectionKey(pageID, sectionID core.ID) []byte {
	buf := make([]byte, len(pageSectionsPrefix)+16)
	offset := copy(buf, pageSectionsPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(pageID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(sectionID))
	return buf
}

// makePartialPageSectionKey generates the index prefix covering one page.
// Format: prefix:pageID
func makePartialPageSectionKey(pageID core.ID) []byte {
	return idKey(pageSectionsPrefix, pageID)
}

// sectionIDFromIndexKey extracts the section ID from a page -> section index key.
func sectionIDFromIndexKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
