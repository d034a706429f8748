package searchstate

import (
	"encoding/json"
	"testing"

	"github.com/poiesic/docsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidItem(t *testing.T) {
	raw := json.RawMessage(`[{
		"id": 1,
		"path": "/docs/x",
		"type": "markdown",
		"title": "X",
		"subtitle": "Sub",
		"description": null,
		"headings": ["Intro", "Usage"],
		"slugs": ["intro", "usage"]
	}]`)

	results := Parse(raw)
	require.Len(t, results, 1)
	assert.Equal(t, core.SearchResult{
		Id:       1,
		Path:     "/docs/x",
		Type:     core.PageTypeMarkdown,
		Title:    "X",
		Subtitle: "Sub",
		Sections: []core.Section{{Heading: "Intro", Slug: "intro"}, {Heading: "Usage", Slug: "usage"}},
	}, results[0])
}

func TestParse_HeadingSlugZipping(t *testing.T) {
	tests := []struct {
		name     string
		headings string
		slugs    string
		want     []core.Section
	}{
		{name: "mismatched lengths", headings: `["A","B"]`, slugs: `["a"]`, want: []core.Section{}},
		{name: "empty entries skipped", headings: `["A","","C"]`, slugs: `["a","b",""]`, want: []core.Section{{Heading: "A", Slug: "a"}}},
		{name: "null entries skipped", headings: `[null,"B"]`, slugs: `["a","b"]`, want: []core.Section{{Heading: "B", Slug: "b"}}},
		{name: "null arrays", headings: `null`, slugs: `null`, want: []core.Section{}},
		{name: "not arrays", headings: `"A"`, slugs: `["a"]`, want: []core.Section{}},
		{name: "non-string entries", headings: `[1]`, slugs: `["a"]`, want: []core.Section{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := json.RawMessage(`[{"id":1,"path":"/p","type":"reference","title":"T","headings":` +
				tt.headings + `,"slugs":` + tt.slugs + `}]`)
			results := Parse(raw)
			require.Len(t, results, 1, "item is kept without sections")
			assert.Equal(t, tt.want, results[0].Sections)
		})
	}
}

func TestParse_MissingSectionArrays(t *testing.T) {
	results := Parse(json.RawMessage(`[{"id":1,"path":"/p","type":"markdown","title":"T"}]`))
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Sections)
}

func TestParse_DropsMalformedItems(t *testing.T) {
	raw := json.RawMessage(`[
		{"id":1,"path":"/ok","type":"markdown","title":"OK"},
		{"path":"/no-id","type":"markdown","title":"T"},
		{"id":3,"type":"markdown","title":"no path"},
		{"id":4,"path":"/no-type","title":"T"},
		{"id":5,"path":"/no-title","type":"markdown"},
		{"id":"6","path":"/string-id","type":"markdown","title":"T"},
		"not an object",
		null,
		42,
		{"id":7,"path":"/also-ok","type":"github-discussions","title":"Also"}
	]`)

	results := Parse(raw)
	require.Len(t, results, 2)
	assert.Equal(t, core.ID(1), results[0].Id)
	assert.Equal(t, core.ID(7), results[1].Id)
}

func TestParse_NotAnArray(t *testing.T) {
	assert.Empty(t, Parse(json.RawMessage(`{"id":1}`)))
	assert.Empty(t, Parse(json.RawMessage(`null`)))
	assert.Empty(t, Parse(nil))
}

func TestParse_DuplicateIDs(t *testing.T) {
	results := Parse(json.RawMessage(`[
		{"id":1,"path":"/first","type":"markdown","title":"First"},
		{"id":1,"path":"/second","type":"markdown","title":"Second"}
	]`))
	require.Len(t, results, 1)
	assert.Equal(t, "/first", results[0].Path)
}

func TestParseValue(t *testing.T) {
	results := ParseValue([]any{
		map[string]any{"id": 1, "path": "/p", "type": "markdown", "title": "T",
			"headings": []any{"A", "B"}, "slugs": []any{"a"}},
	})
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Sections)

	assert.Empty(t, ParseValue(make(chan int)))
}
