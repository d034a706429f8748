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

const (
	pageColumns    = "id,path,type,meta,source"
	sectionColumns = "id,page_id,slug,heading,rag_ignore"
)

type pageMeta struct {
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Description string `json:"description"`
}

type pageRow struct {
	ID     core.ID         `json:"id"`
	Path   string          `json:"path"`
	Type   *string         `json:"type"`
	Meta   json.RawMessage `json:"meta"`
	Source *string         `json:"source"`
}

// toPage converts a row. Meta that is null or not an object yields empty meta.
func (r *pageRow) toPage() *core.Page {
	page := &core.Page{
		Id:   r.ID,
		Path: r.Path,
	}
	if r.Type != nil {
		page.Type = core.PageType(*r.Type)
	}
	if r.Source != nil {
		page.Source = *r.Source
	}
	var meta pageMeta
	if len(r.Meta) > 0 && json.Unmarshal(r.Meta, &meta) == nil {
		page.Meta = core.PageMeta{
			Title:       meta.Title,
			Subtitle:    meta.Subtitle,
			Description: meta.Description,
		}
	}
	return page
}

type sectionRow struct {
	ID        core.ID `json:"id"`
	PageID    core.ID `json:"page_id"`
	Slug      *string `json:"slug"`
	Heading   *string `json:"heading"`
	RagIgnore *bool   `json:"rag_ignore"`
	Embedding Vector  `json:"embedding"`
}

func (r *sectionRow) toSection() *core.PageSection {
	section := &core.PageSection{
		Id:     r.ID,
		PageId: r.PageID,
	}
	if r.Slug != nil {
		section.Slug = *r.Slug
	}
	if r.Heading != nil {
		section.Heading = *r.Heading
	}
	if r.RagIgnore != nil {
		section.RagIgnore = *r.RagIgnore
	}
	if len(r.Embedding) > 0 {
		section.Embedding = []float32(r.Embedding)
	}
	return section
}
