package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64ID(i int) core.ID {
	return core.ID(i)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMemoryStore()
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func testPage(id core.ID) *core.Page {
	return &core.Page{
		Id:     id,
		Path:   fmt.Sprintf("/guides/page-%d", id),
		Type:   core.PageTypeMarkdown,
		Meta:   core.PageMeta{Title: fmt.Sprintf("Page %d", id)},
		Source: fmt.Sprintf("# Page %d", id),
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	ctx := context.Background()
	store, err := OpenMemoryStore()
	require.NoError(t, err)
	defer store.Close()

	_, err = store.CountPages(ctx)
	assert.ErrorIs(t, err, storage.ErrSchemaMissing)

	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx))

	count, err := store.CountPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEnsureSchema_SecondStoreOnSameBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend(nil)
	require.NoError(t, err)
	defer backend.Close()

	first, err := NewStore(backend)
	require.NoError(t, err)
	require.NoError(t, first.EnsureSchema(ctx))
	_, err = first.UpsertPage(ctx, testPage(1))
	require.NoError(t, err)

	second, err := NewStore(backend)
	require.NoError(t, err)
	require.NoError(t, second.EnsureSchema(ctx))

	count, err := second.CountPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "existing rows survive a repeated schema setup")
}

func TestStore_ClosedBackend(t *testing.T) {
	store, err := OpenMemoryStore()
	require.NoError(t, err)
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.EnsureSchema(context.Background()), storage.ErrStorageClosed)
}

func TestUpsertPage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	page := testPage(1)
	changed, err := store.UpsertPage(ctx, page)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, core.ChecksumFromContent(page.Source), page.Checksum)

	changed, err = store.UpsertPage(ctx, testPage(1))
	require.NoError(t, err)
	assert.False(t, changed, "identical page is not rewritten")

	updated := testPage(1)
	updated.Meta.Title = "Renamed"
	changed, err = store.UpsertPage(ctx, updated)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := store.GetPage(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Meta.Title)

	count, err := store.CountPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpsertPage_Invalid(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpsertPage(context.Background(), &core.Page{Id: 1, Path: "/x", Type: "blog"})
	assert.ErrorIs(t, err, core.ErrInvalidPageType)
}

func TestGetPage_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetPage(context.Background(), 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpsertSection_Orphan(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpsertSection(context.Background(), &core.PageSection{Id: 10, PageId: 1, Slug: "a", Heading: "A"})
	assert.ErrorIs(t, err, storage.ErrOrphanSection)

	count, err := store.CountSections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUpsertSection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, id := range []core.ID{1, 2} {
		_, err := store.UpsertPage(ctx, testPage(id))
		require.NoError(t, err)
	}

	section := &core.PageSection{Id: 10, PageId: 1, Slug: "intro", Heading: "Intro", Embedding: []float32{1, 0}}
	changed, err := store.UpsertSection(ctx, section)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.UpsertSection(ctx, section)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := store.GetSection(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, section, got)

	moved := *section
	moved.PageId = 2
	_, err = store.UpsertSection(ctx, &moved)
	require.NoError(t, err)

	onFirst, err := store.GetSectionsByPage(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, onFirst)

	onSecond, err := store.GetSectionsByPage(ctx, 2)
	require.NoError(t, err)
	require.Len(t, onSecond, 1)
	assert.Equal(t, core.ID(10), onSecond[0].Id)
}

func TestDeletePage_CascadesToSections(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for _, id := range []core.ID{1, 2} {
		_, err := store.UpsertPage(ctx, testPage(id))
		require.NoError(t, err)
	}
	for i, pageID := range []core.ID{1, 1, 2} {
		_, err := store.UpsertSection(ctx, &core.PageSection{Id: core.ID(10 + i), PageId: pageID, Slug: "s", Heading: "S"})
		require.NoError(t, err)
	}

	require.NoError(t, store.DeletePage(ctx, 1))

	_, err := store.GetPage(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetSection(ctx, 10)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	count, err := store.CountSections(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.ErrorIs(t, store.DeletePage(ctx, 1), storage.ErrNotFound)
}

func TestUpsert_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(id core.ID) {
			defer wg.Done()
			_, err := store.UpsertPage(ctx, testPage(id))
			errs <- err
		}(core.ID(i))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	count, err := store.CountPages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, count)
}
