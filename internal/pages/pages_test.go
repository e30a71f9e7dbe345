package pages

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njoerd114/pressrelay/internal/cache"
	"github.com/njoerd114/pressrelay/internal/model"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	name := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o600))
}

// --- Manifest ----------------------------------------------------------------

func TestLoad_Manifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pages.yaml", `
/about/:
  title: About
  description: "<p>x</p>"
about/team:
  title: Team
  mt_allow_comments: 1
/contact:
`)
	got, err := NewLoader(filepath.Join(dir, "pages.yaml"), Options{}, testLogger).Load()
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "About", got["/about/"].Attributes.Title())
	assert.Equal(t, "<p>x</p>", got["/about/"].Attributes.Description())
	assert.Equal(t, 1, got["/about/team/"].Attributes[model.KeyAllowComments])
	assert.Equal(t, "/about/team/", got["/about/team/"].Path)
	assert.NotNil(t, got["/contact/"].Attributes)
}

func TestLoad_ManifestDuplicatePath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pages.yaml", "/about:\n  title: A\nabout/:\n  title: B\n")

	_, err := NewLoader(filepath.Join(dir, "pages.yaml"), Options{}, testLogger).Load()
	assert.ErrorContains(t, err, "listed twice")
}

func TestLoad_ManifestInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pages.yaml", "- just\n- a list\n")

	_, err := NewLoader(filepath.Join(dir, "pages.yaml"), Options{}, testLogger).Load()
	assert.Error(t, err)
}

func TestLoad_MissingSource(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope"), Options{}, testLogger).Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// --- Directory ---------------------------------------------------------------

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "about/index.html", "---\ntitle: About us\n---\n<p>who</p>\n")
	writeFile(t, dir, "about/team.md", "Our **team**\n")
	writeFile(t, dir, "contact.html", "<p>mail</p>")
	writeFile(t, dir, "index.html", "<p>home</p>")
	writeFile(t, dir, "notes.txt", "ignored")

	got, err := NewLoader(dir, Options{}, testLogger).Load()
	require.NoError(t, err)

	require.Len(t, got, 3)
	about := got["/about/"].Attributes
	assert.Equal(t, "About us", about.Title())
	assert.Equal(t, "<p>who</p>", about.Description())

	team := got["/about/team/"].Attributes
	assert.Equal(t, "team", team.Title(), "title defaults to the slug")
	assert.Equal(t, "<p>Our <strong>team</strong></p>", team.Description(), "markdown bodies are rendered")

	assert.Equal(t, "<p>mail</p>", got["/contact/"].Attributes.Description())
}

func TestLoad_DirectoryIncludeExclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.html", "a")
	writeFile(t, dir, "drafts/b.html", "b")
	writeFile(t, dir, "c.md", "c")

	got, err := NewLoader(dir, Options{
		Include: []string{"**/*.html"},
		Exclude: []string{"drafts/**"},
	}, testLogger).Load()
	require.NoError(t, err)

	assert.Len(t, got, 1)
	assert.Contains(t, got, "/a/")
}

func TestLoad_DirectoryConflictingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "about.html", "a")
	writeFile(t, dir, "about/index.md", "b")

	_, err := NewLoader(dir, Options{}, testLogger).Load()
	assert.ErrorContains(t, err, "defined by both")
}

func TestLoad_Sanitize(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.html", `<p onclick="x()">hi</p><script>alert(1)</script>`)

	got, err := NewLoader(dir, Options{Sanitize: true}, testLogger).Load()
	require.NoError(t, err)

	desc := got["/a/"].Attributes.Description()
	assert.Equal(t, "<p>hi</p>", desc)
}

// --- Front matter ------------------------------------------------------------

func TestSplitFrontMatter(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantMeta map[string]any
		wantBody string
	}{
		{"none", "<p>x</p>\n", nil, "<p>x</p>"},
		{"block", "---\ntitle: A\n---\nbody\n", map[string]any{"title": "A"}, "body"},
		{"crlf", "---\r\ntitle: A\r\n---\r\nbody\r\n", map[string]any{"title": "A"}, "body"},
		{"empty block", "---\n---\nbody", nil, "body"},
		{"no body", "---\ntitle: A\n---", map[string]any{"title": "A"}, ""},
		{"bom", "\ufeff---\ntitle: A\n---\nbody", map[string]any{"title": "A"}, "body"},
		{"description wins", "---\ndescription: set\n---\nbody", map[string]any{"description": "set"}, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, body, err := splitFrontMatter([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.wantMeta, meta)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestSplitFrontMatter_Unterminated(t *testing.T) {
	_, _, err := splitFrontMatter([]byte("---\ntitle: A\nbody"))
	assert.ErrorIs(t, err, errUnterminatedFrontMatter)
}

func TestReadPageFile_FrontMatterDescription(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.html", "---\ndescription: set\n---\nbody")

	attrs, err := NewLoader(dir, Options{}, testLogger).readPageFile(filepath.Join(dir, "a.html"))
	require.NoError(t, err)
	assert.Equal(t, "set", attrs.Description())
}

func TestReadPageFile_Markdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "# Title\n\nSome *text* and <span class=\"x\">html</span>.\n\n| a | b |\n|---|---|\n| 1 | 2 |\n")
	writeFile(t, dir, "b.html", "Some *text*")
	writeFile(t, dir, "c.md", "---\ndescription: \"**kept**\"\n---\nignored")
	l := NewLoader(dir, Options{}, testLogger)

	md, err := l.readPageFile(filepath.Join(dir, "a.md"))
	require.NoError(t, err)
	desc := md.Description()
	assert.Contains(t, desc, "<h1>Title</h1>")
	assert.Contains(t, desc, "<em>text</em>")
	assert.Contains(t, desc, `<span class="x">html</span>`, "inline HTML passes through")
	assert.Contains(t, desc, "<table>")
	assert.False(t, strings.HasSuffix(desc, "\n"))

	html, err := l.readPageFile(filepath.Join(dir, "b.html"))
	require.NoError(t, err)
	assert.Equal(t, "Some *text*", html.Description(), "HTML bodies are not rendered")

	set, err := l.readPageFile(filepath.Join(dir, "c.md"))
	require.NoError(t, err)
	assert.Equal(t, "**kept**", set.Description(), "front matter description is used as is")
}

func TestPathForFile(t *testing.T) {
	tests := []struct {
		rel    string
		want   string
		wantOK bool
	}{
		{"about.html", "about", true},
		{"about/index.md", "about", true},
		{"a/b/c.html", "a/b/c", true},
		{"index.html", "", false},
		{"v1.2/notes.md", "v1.2/notes", true},
	}
	for _, tt := range tests {
		got, ok := pathForFile(tt.rel)
		assert.Equal(t, tt.wantOK, ok, tt.rel)
		assert.Equal(t, tt.want, got, tt.rel)
	}
}

// --- Export ------------------------------------------------------------------

func TestExport_RoundTrip(t *testing.T) {
	index := model.PathIndex{
		"about": {ID: 1, Slug: "about", Status: model.StatusPublish, Attributes: model.Attributes{
			"title": "About", "description": "<p>Hello <strong>world</strong></p>",
		}},
		"about/team": {ID: 2, ParentID: 1, Slug: "team", Status: model.StatusPublish, Attributes: model.Attributes{
			"title": "Team", "description": "<ul><li>one</li></ul>",
		}},
		"old":   {ID: 3, Slug: "old", Status: model.StatusTrash, Attributes: model.Attributes{"title": "Old"}},
		"fresh": model.NewStub(4, 0, "fresh"),
	}
	dir := t.TempDir()

	n, err := NewExporter(testLogger).Export(dir, index)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(dir, "about.md"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "title: About")
	assert.Contains(t, string(data), "Hello **world**")
	assert.NoFileExists(t, filepath.Join(dir, "old.md"))
	assert.NoFileExists(t, filepath.Join(dir, "fresh.md"))

	got, err := NewLoader(dir, Options{}, testLogger).Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "About", got["/about/"].Attributes.Title())
	assert.Equal(t, "Team", got["/about/team/"].Attributes.Title())
	assert.Equal(t, "<p>Hello <strong>world</strong></p>", got["/about/"].Attributes.Description())
	assert.Contains(t, got["/about/team/"].Attributes.Description(), "<li>one</li>")

	changed := cache.Diff(got, index)
	assert.NotContains(t, changed, "/about/", "an exported page must read back unchanged")
}
