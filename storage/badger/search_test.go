package badger

import (
	"context"
	"math"
	"testing"

	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unitAt returns a 2-d unit vector whose inner product with (1, 0) is score.
func unitAt(score float64) []float32 {
	return []float32{float32(score), float32(math.Sqrt(1 - score*score))}
}

var query = []float32{1, 0}

func seedSection(t *testing.T, store *Store, section *core.PageSection) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.GetPage(ctx, section.PageId); err != nil {
		_, err := store.UpsertPage(ctx, testPage(section.PageId))
		require.NoError(t, err)
	}
	_, err := store.UpsertSection(ctx, section)
	require.NoError(t, err)
}

func TestSearchEmbeddings_NoSections(t *testing.T) {
	store := newTestStore(t)

	rows, err := store.SearchEmbeddings(context.Background(), query, 0.8, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSearchEmbeddings_InvalidQuery(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SearchEmbeddings(context.Background(), nil, 0.8, 10)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = store.SearchEmbeddings(context.Background(), query, 0.8, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestSearchEmbeddings_ThresholdIsStrict(t *testing.T) {
	store := newTestStore(t)
	seedSection(t, store, &core.PageSection{Id: 1, PageId: 1, Slug: "exact", Heading: "Exact", Embedding: []float32{0.5, 0.5}})
	seedSection(t, store, &core.PageSection{Id: 2, PageId: 2, Slug: "above", Heading: "Above", Embedding: []float32{0.5001, 0.5}})

	// {0.5, 0.5} scores exactly 0.5 against (1, 0).
	rows, err := store.SearchEmbeddings(context.Background(), query, 0.5, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, core.ID(2), rows[0].Id)
}

func TestSearchEmbeddings_SkipsIgnoredAndMissingEmbeddings(t *testing.T) {
	store := newTestStore(t)
	seedSection(t, store, &core.PageSection{Id: 1, PageId: 1, Slug: "ignored", Heading: "Ignored", RagIgnore: true, Embedding: unitAt(0.99)})
	seedSection(t, store, &core.PageSection{Id: 2, PageId: 1, Slug: "pending", Heading: "Pending"})
	seedSection(t, store, &core.PageSection{Id: 3, PageId: 1, Slug: "short", Heading: "Short", Embedding: []float32{1}})
	seedSection(t, store, &core.PageSection{Id: 4, PageId: 1, Slug: "kept", Heading: "Kept", Embedding: unitAt(0.9)})

	rows, err := store.SearchEmbeddings(context.Background(), query, 0.8, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"Kept"}, rows[0].Headings)
	assert.Equal(t, []string{"kept"}, rows[0].Slugs)
}

func TestSearchEmbeddings_GroupsAndOrdersPages(t *testing.T) {
	store := newTestStore(t)
	seedSection(t, store, &core.PageSection{Id: 1, PageId: 1, Slug: "a1", Heading: "A1", Embedding: unitAt(0.85)})
	seedSection(t, store, &core.PageSection{Id: 2, PageId: 2, Slug: "b1", Heading: "B1", Embedding: unitAt(0.95)})
	seedSection(t, store, &core.PageSection{Id: 3, PageId: 1, Slug: "a2", Heading: "A2", Embedding: unitAt(0.9)})
	seedSection(t, store, &core.PageSection{Id: 4, PageId: 2, Slug: "b2", Heading: "B2", Embedding: unitAt(0.5)})

	rows, err := store.SearchEmbeddings(context.Background(), query, 0.8, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, core.ID(2), rows[0].Id)
	assert.Equal(t, []string{"B1"}, rows[0].Headings)

	assert.Equal(t, core.ID(1), rows[1].Id)
	assert.Equal(t, []string{"A2", "A1"}, rows[1].Headings)
	assert.Equal(t, []string{"a2", "a1"}, rows[1].Slugs)
	assert.Equal(t, "/guides/page-1", rows[1].Path)
	assert.Equal(t, "Page 1", rows[1].Title)
	assert.Greater(t, rows[0].Score, rows[1].Score)
}

func TestSearchEmbeddings_LimitAppliesToSections(t *testing.T) {
	store := newTestStore(t)
	for i := 1; i <= 12; i++ {
		seedSection(t, store, &core.PageSection{
			Id:        core.ID(i),
			PageId:    core.ID(i),
			Slug:      "s",
			Heading:   "S",
			Embedding: unitAt(0.81 + float64(i)*0.01),
		})
	}

	rows, err := store.SearchEmbeddings(context.Background(), query, 0.8, 10)
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, core.ID(12), rows[0].Id)
	assert.Equal(t, core.ID(3), rows[9].Id)
}

func TestSearchEmbeddings_DropsEmptyHeadingOrSlug(t *testing.T) {
	store := newTestStore(t)
	seedSection(t, store, &core.PageSection{Id: 1, PageId: 1, Slug: "", Heading: "No slug", Embedding: unitAt(0.95)})
	seedSection(t, store, &core.PageSection{Id: 2, PageId: 1, Slug: "no-heading", Heading: "", Embedding: unitAt(0.9)})

	rows, err := store.SearchEmbeddings(context.Background(), query, 0.8, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1, "page still matches")
	assert.Empty(t, rows[0].Headings)
	assert.Empty(t, rows[0].Slugs)
}

func TestSearchEmbeddings_CancelledContext(t *testing.T) {
	store := newTestStore(t)
	seedSection(t, store, &core.PageSection{Id: 1, PageId: 1, Slug: "s", Heading: "S", Embedding: unitAt(0.9)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.SearchEmbeddings(ctx, query, 0.8, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
