package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/fsnotify/fsnotify"

	"github.com/njoerd114/pressrelay/internal/model"
	"github.com/njoerd114/pressrelay/internal/state"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// --- Mock WordPress site -----------------------------------------------------

// mockSite is an in-memory page collection with server-assigned ids. Pages
// are stored as full attribute maps, the way wp.getPage returns them.
type mockSite struct {
	mu     sync.Mutex
	pages  map[int]model.Attributes
	nextID int
	calls  []string

	failNew  error
	failEdit error
	failList error
}

func newMockSite() *mockSite {
	return &mockSite{pages: make(map[int]model.Attributes)}
}

// seed stores a pre-existing page.
func (m *mockSite) seed(id, parentID int, slug string, status model.Status, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[id] = model.Attributes{
		model.KeyPageID:      id,
		model.KeyParentID:    parentID,
		model.KeySlug:        slug,
		model.KeyStatus:      string(status),
		model.KeyTitle:       slug,
		model.KeyDescription: description,
	}
	m.nextID = max(m.nextID, id)
}

func (m *mockSite) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *mockSite) ListPages(_ context.Context) ([]model.PageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("list")
	if m.failList != nil {
		return nil, m.failList
	}

	ids := slices.Sorted(maps.Keys(m.pages))
	out := make([]model.PageSummary, 0, len(ids))
	for _, id := range ids {
		p := m.pages[id]
		out = append(out, model.PageSummary{
			ID:       id,
			ParentID: p[model.KeyParentID].(int),
			Title:    p.Title(),
			Status:   model.Status(p[model.KeyStatus].(string)),
		})
	}
	return out, nil
}

func (m *mockSite) GetPage(_ context.Context, id int) (*model.RemoteResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("get:%d", id))

	p, ok := m.pages[id]
	if !ok {
		return nil, fmt.Errorf("page %d not found", id)
	}
	parentID, _ := p[model.KeyParentID].(int)
	slug, _ := p[model.KeySlug].(string)
	status, _ := p[model.KeyStatus].(string)
	return &model.RemoteResource{
		ID:         id,
		ParentID:   parentID,
		Slug:       slug,
		Status:     model.Status(status),
		Attributes: p.Clone(),
	}, nil
}

func (m *mockSite) NewPage(_ context.Context, attrs model.Attributes) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("new:" + fmt.Sprint(attrs[model.KeySlug]))
	if m.failNew != nil {
		return 0, m.failNew
	}

	m.nextID++
	stored := attrs.WithCreateDefaults()
	stored[model.KeyPageID] = m.nextID
	stored[model.KeyStatus] = string(model.StatusPublish)
	if _, ok := stored[model.KeyParentID]; !ok {
		stored[model.KeyParentID] = 0
	}
	m.pages[m.nextID] = stored
	return m.nextID, nil
}

func (m *mockSite) EditPage(_ context.Context, id int, attrs model.Attributes) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("edit:%d", id))
	if m.failEdit != nil {
		return false, m.failEdit
	}
	if _, ok := m.pages[id]; !ok {
		return false, fmt.Errorf("page %d not found", id)
	}
	m.pages[id] = attrs.Clone()
	return true, nil
}

func (m *mockSite) DeletePage(_ context.Context, id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("delete:%d", id))
	if _, ok := m.pages[id]; !ok {
		return false, errors.New("not found")
	}
	delete(m.pages, id)
	return true, nil
}

func (m *mockSite) page(id int) model.Attributes {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[id].Clone()
}

// writes returns the create and edit calls in order.
func (m *mockSite) writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if strings.HasPrefix(c, "new:") || strings.HasPrefix(c, "edit:") {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockSite) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// --- Mock desired source -----------------------------------------------------

type staticSource struct {
	mu    sync.Mutex
	pages map[string]model.DesiredPage
	err   error
}

func (s *staticSource) Load() (map[string]model.DesiredPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return maps.Clone(s.pages), nil
}

// --- Mock history store ------------------------------------------------------

type mockHistory struct {
	mu   sync.Mutex
	runs []*state.Run
	err  error
}

func (m *mockHistory) SaveRun(_ context.Context, run *state.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockHistory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func (m *mockHistory) last() *state.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil
	}
	return m.runs[len(m.runs)-1]
}

// --- helpers -----------------------------------------------------------------

func desired(pairs ...any) map[string]model.DesiredPage {
	out := make(map[string]model.DesiredPage, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		path := pairs[i].(string)
		out[path] = model.DesiredPage{Path: path, Attributes: pairs[i+1].(model.Attributes)}
	}
	return out
}

func newTestWatcher(t *testing.T) (*fsnotify.Watcher, error) {
	t.Helper()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { _ = w.Close() })
	return w, nil
}
