package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njoerd114/pressrelay/internal/model"
)

type fakeFetcher struct {
	pages map[int]model.Attributes
	calls []int
	err   error
}

func (f *fakeFetcher) GetPage(_ context.Context, id int) (*model.RemoteResource, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	attrs, ok := f.pages[id]
	if !ok {
		return nil, errors.New("no such page")
	}
	return &model.RemoteResource{ID: id, Attributes: attrs.Clone()}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTemp(t *testing.T, f Fetcher) *Cache {
	t.Helper()
	return Open(filepath.Join(t.TempDir(), "pages.cache"), f, discardLogger())
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	c := openTemp(t, &fakeFetcher{})
	assert.Equal(t, 0, c.Len())
}

func TestOpen_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pages.cache")
	require.NoError(t, os.WriteFile(path, []byte("not a gob stream"), 0o600))

	c := Open(path, &fakeFetcher{}, discardLogger())
	assert.Equal(t, 0, c.Len())
}

func TestGet_FetchesOnceThenServesFromCache(t *testing.T) {
	f := &fakeFetcher{pages: map[int]model.Attributes{7: {"description": "x"}}}
	c := openTemp(t, f)
	ctx := context.Background()

	first, err := c.Get(ctx, 7)
	require.NoError(t, err)
	second, err := c.Get(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, []int{7}, f.calls)
	assert.Same(t, first, second)
}

func TestRefresh_AlwaysFetches(t *testing.T) {
	f := &fakeFetcher{pages: map[int]model.Attributes{7: {"description": "old"}}}
	c := openTemp(t, f)
	ctx := context.Background()

	_, err := c.Get(ctx, 7)
	require.NoError(t, err)
	f.pages[7] = model.Attributes{"description": "new"}

	res, err := c.Refresh(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "new", res.Attributes.Description())

	cached, err := c.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "new", cached.Attributes.Description())
	assert.Equal(t, []int{7, 7}, f.calls)
}

func TestGet_FetchErrorIsNotCached(t *testing.T) {
	f := &fakeFetcher{err: errors.New("boom")}
	c := openTemp(t, f)

	_, err := c.Get(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestFlush_RoundTripPreservesTypes(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{pages: map[int]model.Attributes{
		3: {
			"description": "body",
			"dateCreated": created,
			"page_id":     int64(3),
			"categories":  []any{"a", "b"},
			"custom":      map[string]any{"k": "v"},
		},
	}}
	c := openTemp(t, f)
	_, err := c.Get(context.Background(), 3)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	reopened := Open(c.Path(), &fakeFetcher{}, discardLogger())
	require.Equal(t, 1, reopened.Len())

	res, err := reopened.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, created, res.Attributes["dateCreated"])
	assert.Equal(t, int64(3), res.Attributes["page_id"])
	assert.Equal(t, []any{"a", "b"}, res.Attributes["categories"])
	assert.Equal(t, map[string]any{"k": "v"}, res.Attributes["custom"])
}

func TestFlush_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	c := Open(filepath.Join(blocker, "pages.cache"), &fakeFetcher{}, discardLogger())
	assert.Error(t, c.Flush())
}

func TestPrime_SkipsCachedPages(t *testing.T) {
	f := &fakeFetcher{pages: map[int]model.Attributes{1: {}, 2: {}, 3: {}}}
	c := openTemp(t, f)
	ctx := context.Background()
	_, err := c.Get(ctx, 2)
	require.NoError(t, err)

	n, err := c.Prime(ctx, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []int{2, 1, 3}, f.calls)
}

func TestClear(t *testing.T) {
	f := &fakeFetcher{pages: map[int]model.Attributes{1: {}}}
	c := openTemp(t, f)
	_, err := c.Get(context.Background(), 1)
	require.NoError(t, err)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

// --- Diff ---

func TestDiff(t *testing.T) {
	existing := model.PathIndex{
		"about":      {ID: 1, Attributes: model.Attributes{"description": "same"}},
		"about/team": {ID: 2, Attributes: model.Attributes{"description": "old"}},
	}
	desired := map[string]model.DesiredPage{
		"/about/":    {Path: "/about/", Attributes: model.Attributes{"description": "same", "title": "changed"}},
		"about/team": {Path: "about/team", Attributes: model.Attributes{"description": "new"}},
		"contact":    {Path: "contact", Attributes: model.Attributes{"description": "hi"}},
	}

	got := Diff(desired, existing)

	assert.Len(t, got, 2)
	assert.Contains(t, got, "about/team")
	assert.Contains(t, got, "contact")
	assert.NotContains(t, got, "/about/", "title-only changes are not detected")
}

func TestDiff_EmptyInputs(t *testing.T) {
	assert.Empty(t, Diff(nil, nil))

	desired := map[string]model.DesiredPage{"a": {Path: "a"}}
	assert.Equal(t, desired, Diff(desired, nil))
}
