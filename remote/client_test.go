package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/docsearch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithFetchRate(rate.Inf, 1)}, opts...)
	client, err := New(server.URL, "anon-key", opts...)
	require.NoError(t, err)
	return client
}

func TestNew_InvalidURL(t *testing.T) {
	tests := []string{"", "not a url", "ftp://example.com", "http://"}
	for _, baseURL := range tests {
		t.Run(baseURL, func(t *testing.T) {
			_, err := New(baseURL, "key")
			assert.ErrorIs(t, err, ErrInvalidURL)
		})
	}
}

func TestFetchPages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/page", r.URL.Path)
		assert.Equal(t, "id,path,type,meta,source", r.URL.Query().Get("select"))
		assert.Equal(t, "gt.41", r.URL.Query().Get("id"))
		assert.Equal(t, "id.asc", r.URL.Query().Get("order"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))

		_, _ = io.WriteString(w, `[
			{"id": 42, "path": "/guides/auth", "type": "markdown", "meta": {"title": "Auth", "description": "Sign in"}, "source": "# Auth"},
			{"id": 43, "path": "/reference/js", "type": "reference", "meta": null, "source": null}
		]`)
	})

	batch, err := client.FetchPages(context.Background(), 41, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Count)
	assert.Equal(t, core.ID(43), batch.LastID)
	assert.Empty(t, batch.Invalid)
	require.Len(t, batch.Rows, 2)

	assert.Equal(t, &core.Page{
		Id:     42,
		Path:   "/guides/auth",
		Type:   core.PageTypeMarkdown,
		Meta:   core.PageMeta{Title: "Auth", Description: "Sign in"},
		Source: "# Auth",
	}, batch.Rows[0])
	assert.Equal(t, core.PageMeta{}, batch.Rows[1].Meta)
}

func TestFetchSections(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/page_section", r.URL.Path)
		assert.Equal(t, "id,page_id,slug,heading,rag_ignore,embedding:hf_embedding", r.URL.Query().Get("select"))

		_, _ = io.WriteString(w, `[
			{"id": 1, "page_id": 42, "slug": "intro", "heading": "Intro", "rag_ignore": null, "embedding": "[0.5,0.25]"},
			{"id": 2, "page_id": 42, "slug": null, "heading": null, "rag_ignore": true, "embedding": [1, 0]},
			{"id": 3, "page_id": 42, "slug": "x", "heading": "X", "rag_ignore": false, "embedding": null},
			{"id": 4, "page_id": 42, "slug": "bad", "heading": "Bad", "embedding": "[oops]"}
		]`)
	}, WithEmbeddingColumn("hf_embedding"))

	batch, err := client.FetchSections(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Count)
	assert.Equal(t, core.ID(4), batch.LastID)
	require.Len(t, batch.Rows, 3)

	assert.Equal(t, []float32{0.5, 0.25}, batch.Rows[0].Embedding)
	assert.False(t, batch.Rows[0].RagIgnore)
	assert.True(t, batch.Rows[1].RagIgnore)
	assert.Equal(t, "", batch.Rows[1].Slug)
	assert.Nil(t, batch.Rows[2].Embedding)

	require.Len(t, batch.Invalid, 1)
	assert.Equal(t, core.ID(4), batch.Invalid[0].ID)
	assert.ErrorIs(t, batch.Invalid[0].Err, ErrInvalidEmbedding)
}

func TestFetch_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"message": "database is starting up"}`)
	})

	_, err := client.FetchPages(context.Background(), 0, 10)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "database is starting up", statusErr.Message)
	assert.True(t, statusErr.Temporary())
}

func TestFetch_NotAnArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"rows": []}`)
	})

	_, err := client.FetchSections(context.Background(), 0, 10)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestSearchFTS_TrimsQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/rpc/docs_search_fts", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "row level security", body["query"])

		_, _ = io.WriteString(w, `[{"id": 1, "path": "/guides/rls", "type": "markdown", "title": "RLS"}]`)
	})

	raw, err := client.SearchFTS(context.Background(), "  row level security \n")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id": 1, "path": "/guides/rls", "type": "markdown", "title": "RLS"}]`, string(raw))
}

func TestSearchEmbeddings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/search-embeddings", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, " auth ", body["query"], "embedding search sends the query untrimmed")

		_, _ = io.WriteString(w, `[]`)
	})

	raw, err := client.SearchEmbeddings(context.Background(), " auth ")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestSearchEmbeddings_RequiresArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error": "quota exceeded"}`)
	})

	_, err := client.SearchEmbeddings(context.Background(), "auth")
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestSearch_CancelledContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.SearchFTS(ctx, "auth")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVector_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Vector
		wantErr bool
	}{
		{name: "null", input: `null`, want: nil},
		{name: "empty string", input: `""`, want: nil},
		{name: "pgvector text", input: `"[0.1,-2,3e-1]"`, want: Vector{0.1, -2, 0.3}},
		{name: "json array", input: `[1, 0.5]`, want: Vector{1, 0.5}},
		{name: "garbage text", input: `"[a,b]"`, wantErr: true},
		{name: "object", input: `{"x": 1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Vector
			err := json.Unmarshal([]byte(tt.input), &v)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEmbedding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}
