// Package cache implements the fingerprint cache: a file-backed snapshot of
// remote pages keyed by page id, used to skip desired pages whose body is
// already current on the remote side.
//
// The whole cache is loaded by [Open] and written back as one unit by
// [Cache.Flush] or [Cache.Close]. A missing or unreadable file yields an
// empty cache; a failed write is reported but leaves the in-memory cache
// intact. Concurrent processes sharing one file overwrite each other.
package cache

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/njoerd114/pressrelay/internal/model"
)

func init() {
	// Concrete types XML-RPC values decode into; gob needs them registered
	// to store them behind interface values.
	gob.Register(time.Time{})
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// Fetcher retrieves the full detail of a page. Implemented by
// [wordpress.Adapter].
type Fetcher interface {
	GetPage(ctx context.Context, id int) (*model.RemoteResource, error)
}

// entry is the persisted form of a [model.RemoteResource].
type entry struct {
	ID         int
	ParentID   int
	Slug       string
	Status     string
	Attributes map[string]any
}

// Cache is the file-backed page snapshot store.
type Cache struct {
	mu      sync.Mutex
	path    string
	fetcher Fetcher
	pages   map[string]*model.RemoteResource
	logger  *slog.Logger
}

// Open loads the cache file at path. It never fails: a missing file starts
// an empty cache, and an unreadable or corrupt one is logged and ignored.
func Open(path string, fetcher Fetcher, logger *slog.Logger) *Cache {
	c := &Cache{
		path:    path,
		fetcher: fetcher,
		pages:   make(map[string]*model.RemoteResource),
		logger:  logger,
	}
	pages, err := load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("no cache file, starting empty", "path", path)
	case err != nil:
		logger.Warn("cannot read cache file, starting empty", "path", path, "error", err)
	default:
		c.pages = pages
		logger.Debug("cache loaded", "path", path, "pages", len(pages))
	}
	return c
}

func load(path string) (map[string]*model.RemoteResource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var entries map[string]entry
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding %q: %w", path, err)
	}
	pages := make(map[string]*model.RemoteResource, len(entries))
	for k, e := range entries {
		pages[k] = &model.RemoteResource{
			ID:         e.ID,
			ParentID:   e.ParentID,
			Slug:       e.Slug,
			Status:     model.Status(e.Status),
			Attributes: model.Attributes(e.Attributes),
		}
	}
	return pages, nil
}

// Path returns the backing file path.
func (c *Cache) Path() string { return c.path }

// Len returns the number of cached pages.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

// Get returns the cached snapshot of page id, fetching and caching it on a
// miss.
func (c *Cache) Get(ctx context.Context, id int) (*model.RemoteResource, error) {
	c.mu.Lock()
	res, ok := c.pages[key(id)]
	c.mu.Unlock()
	if ok {
		return res, nil
	}
	return c.Refresh(ctx, id)
}

// Refresh always fetches page id and overwrites its cache entry.
func (c *Cache) Refresh(ctx context.Context, id int) (*model.RemoteResource, error) {
	res, err := c.fetcher.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.pages[key(id)] = res
	c.mu.Unlock()
	return res, nil
}

// Prime fetches every id not yet cached and returns how many were fetched.
func (c *Cache) Prime(ctx context.Context, ids []int) (int, error) {
	fetched := 0
	for _, id := range ids {
		c.mu.Lock()
		_, ok := c.pages[key(id)]
		c.mu.Unlock()
		if ok {
			continue
		}
		if _, err := c.Refresh(ctx, id); err != nil {
			return fetched, fmt.Errorf("priming page %d: %w", id, err)
		}
		fetched++
	}
	return fetched, nil
}

// Clear drops every entry. The file is rewritten on the next flush.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = make(map[string]*model.RemoteResource)
}

// Diff returns the subset of desired that needs to be written. See [Diff].
func (c *Cache) Diff(desired map[string]model.DesiredPage, existing model.PathIndex) map[string]model.DesiredPage {
	return Diff(desired, existing)
}

// Diff keeps the desired pages whose normalised path is absent from
// existing, or whose fingerprint differs from the existing resource's. Keys
// and values are returned unchanged.
func Diff(desired map[string]model.DesiredPage, existing model.PathIndex) map[string]model.DesiredPage {
	out := make(map[string]model.DesiredPage, len(desired))
	for path, page := range desired {
		res, ok := existing[model.NormalizePath(path)]
		if ok && res.Fingerprint() == page.Attributes.Fingerprint() {
			continue
		}
		out[path] = page
	}
	return out
}

// Flush writes the whole cache to its file, replacing it atomically.
func (c *Cache) Flush() error {
	c.mu.Lock()
	entries := make(map[string]entry, len(c.pages))
	for k, res := range c.pages {
		entries[k] = entry{
			ID:         res.ID,
			ParentID:   res.ParentID,
			Slug:       res.Slug,
			Status:     string(res.Status),
			Attributes: map[string]any(res.Attributes),
		}
	}
	c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), filepath.Base(c.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing cache file %q: %w", c.path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := gob.NewEncoder(tmp).Encode(entries); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding cache file %q: %w", c.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache file %q: %w", c.path, err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing cache file %q: %w", c.path, err)
	}
	c.logger.Debug("cache flushed", "path", c.path, "pages", len(entries))
	return nil
}

// Close flushes the cache. It is safe to defer right after [Open].
func (c *Cache) Close() error {
	return c.Flush()
}

func key(id int) string { return strconv.Itoa(id) }
