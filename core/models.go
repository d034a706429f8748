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

package core

import (
	"encoding/binary"

	"github.com/go-crypt/x/blake2b"
)

// ID is the primary key of a replicated row.
// IDs are assigned by the remote system of record and are never generated locally.
type ID int64

// ChecksumFromContent generates a deterministic checksum from text content using BLAKE2b hashing.
// Identical content always produces identical checksums.
func ChecksumFromContent(text string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// PageType identifies how a page is linked and rendered by consumers.
type PageType string

const (
	// PageTypeMarkdown is a guide page; sections link with "#slug".
	PageTypeMarkdown PageType = "markdown"
	// PageTypeReference is an API reference page; sections link with "/slug".
	PageTypeReference PageType = "reference"
	// PageTypeIntegration is a partner integration page.
	PageTypeIntegration PageType = "partner-integration"
	// PageTypeGithubDiscussion is an external GitHub discussion.
	PageTypeGithubDiscussion PageType = "github-discussions"
)

// Valid reports whether t is one of the known page types.
func (t PageType) Valid() bool {
	switch t {
	case PageTypeMarkdown, PageTypeReference, PageTypeIntegration, PageTypeGithubDiscussion:
		return true
	}
	return false
}

// PageMeta holds the display metadata of a page.
type PageMeta struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle,omitempty"`
	Description string `json:"description,omitempty"`
}

// Page is a searchable document mirrored from the remote page table.
type Page struct {
	Id       ID       `json:"id"`
	Path     string   `json:"path"`
	Type     PageType `json:"type"`
	Meta     PageMeta `json:"meta"`
	Source   string   `json:"source,omitempty"`   // Raw page content
	Checksum uint64   `json:"checksum,omitempty"` // Checksum of Source (populated by the store)
}

// PageSection is a sub-unit of a page, typically a heading anchor.
type PageSection struct {
	Id        ID        `json:"id"`
	PageId    ID        `json:"page_id"`
	Slug      string    `json:"slug"`
	Heading   string    `json:"heading"`
	RagIgnore bool      `json:"rag_ignore"`
	Embedding []float32 `json:"embedding,omitempty"` // Nil until computed remotely
}

// Section is the heading/slug pair exposed in search results.
type Section struct {
	Heading string `json:"heading"`
	Slug    string `json:"slug"`
}

// SearchResult is one page with the sections that matched a query.
type SearchResult struct {
	Id          ID        `json:"id"`
	Path        string    `json:"path"`
	Type        PageType  `json:"type"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle,omitempty"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections"`
}

// MatchRow is a page row produced by the local similarity query.
// Headings and Slugs are parallel arrays aggregated from the matching sections.
type MatchRow struct {
	Id          ID       `json:"id"`
	Path        string   `json:"path"`
	Type        PageType `json:"type"`
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle,omitempty"`
	Description string   `json:"description,omitempty"`
	Headings    []string `json:"headings"`
	Slugs       []string `json:"slugs"`
	Score       float32  `json:"-"` // Best section similarity, used for ordering only
}
