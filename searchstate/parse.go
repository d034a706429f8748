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

package searchstate

import (
	"encoding/json"

	"github.com/poiesic/docsearch/core"
)

// item is the accepted shape of one result. Required fields are pointers so
// that absence can be told apart from a zero value.
type item struct {
	Id          *core.ID        `json:"id"`
	Path        *string         `json:"path"`
	Type        *core.PageType  `json:"type"`
	Title       *string         `json:"title"`
	Subtitle    *string         `json:"subtitle"`
	Description *string         `json:"description"`
	Headings    json.RawMessage `json:"headings"`
	Slugs       json.RawMessage `json:"slugs"`
}

// Parse validates untrusted results. raw should be a JSON array; anything
// else yields no results. Items are validated independently and malformed
// ones are dropped. Duplicate ids keep their first occurrence.
func Parse(raw json.RawMessage) []core.SearchResult {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}

	results := make([]core.SearchResult, 0, len(elems))
	seen := make(map[core.ID]struct{}, len(elems))
	for _, elem := range elems {
		result, ok := parseItem(elem)
		if !ok {
			continue
		}
		if _, dup := seen[result.Id]; dup {
			continue
		}
		seen[result.Id] = struct{}{}
		results = append(results, result)
	}
	return results
}

// ParseValue is Parse for already-decoded data such as []any.
func ParseValue(v any) []core.SearchResult {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return Parse(raw)
}

func parseItem(elem json.RawMessage) (core.SearchResult, bool) {
	var it item
	if err := json.Unmarshal(elem, &it); err != nil {
		return core.SearchResult{}, false
	}
	if it.Id == nil || it.Path == nil || it.Type == nil || it.Title == nil {
		return core.SearchResult{}, false
	}

	result := core.SearchResult{
		Id:       *it.Id,
		Path:     *it.Path,
		Type:     *it.Type,
		Title:    *it.Title,
		Sections: zipSections(it.Headings, it.Slugs),
	}
	if it.Subtitle != nil {
		result.Subtitle = *it.Subtitle
	}
	if it.Description != nil {
		result.Description = *it.Description
	}
	return result, true
}

// zipSections pairs headings with slugs. Arrays of different length, or
// values that are not arrays of strings, yield no sections. Pairs with an
// empty heading or slug are skipped.
func zipSections(rawHeadings, rawSlugs json.RawMessage) []core.Section {
	sections := []core.Section{}

	var headings, slugs []*string
	if json.Unmarshal(rawHeadings, &headings) != nil || json.Unmarshal(rawSlugs, &slugs) != nil {
		return sections
	}
	if len(headings) != len(slugs) {
		return sections
	}

	for i, heading := range headings {
		slug := slugs[i]
		if heading == nil || slug == nil || *heading == "" || *slug == "" {
			continue
		}
		sections = append(sections, core.Section{Heading: *heading, Slug: *slug})
	}
	return sections
}
