// Package pages loads the desired page set from a YAML manifest or a
// directory of HTML and markdown files, and exports remote pages back into
// such a directory.
package pages

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"

	"github.com/njoerd114/pressrelay/internal/model"
)

// DefaultInclude lists the globs matched in directory mode when none are
// configured.
var DefaultInclude = []string{"**/*.html", "**/*.md"}

// frontMatterDelim opens and closes a YAML front matter block.
const frontMatterDelim = "---"

// Options controls how a directory source is read.
type Options struct {
	// Include and Exclude are doublestar globs matched against the
	// slash-separated path relative to the source directory.
	Include []string
	Exclude []string

	// Sanitize passes every description through a user-content HTML policy.
	Sanitize bool
}

// Loader reads desired pages from a manifest file or a directory.
type Loader struct {
	source string
	opts   Options
	policy *bluemonday.Policy
	md     goldmark.Markdown
	log    *slog.Logger
}

// NewLoader creates a Loader for source, which may be a YAML manifest or a
// directory.
func NewLoader(source string, opts Options, logger *slog.Logger) *Loader {
	if len(opts.Include) == 0 {
		opts.Include = DefaultInclude
	}
	l := &Loader{
		source: source,
		opts:   opts,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		log: logger,
	}
	if opts.Sanitize {
		l.policy = bluemonday.UGCPolicy()
	}
	return l
}

// Source returns the manifest or directory path.
func (l *Loader) Source() string { return l.source }

// Load reads the source. Keys are page paths of the form "/a/b/".
func (l *Loader) Load() (map[string]model.DesiredPage, error) {
	info, err := os.Stat(l.source)
	if err != nil {
		return nil, fmt.Errorf("reading page source: %w", err)
	}

	var out map[string]model.DesiredPage
	if info.IsDir() {
		out, err = l.loadDir()
	} else {
		out, err = l.loadManifest()
	}
	if err != nil {
		return nil, err
	}

	if l.policy != nil {
		for k, p := range out {
			if d, ok := p.Attributes[model.KeyDescription].(string); ok {
				p.Attributes[model.KeyDescription] = l.policy.Sanitize(d)
				out[k] = p
			}
		}
	}
	l.log.Debug("page source loaded", "source", l.source, "pages", len(out))
	return out, nil
}

// loadManifest reads a YAML mapping of page path to attribute map.
func (l *Loader) loadManifest() (map[string]model.DesiredPage, error) {
	data, err := os.ReadFile(l.source)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var raw map[string]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing manifest %q: %w", l.source, err)
	}

	out := make(map[string]model.DesiredPage, len(raw))
	for p, attrs := range raw {
		key := pageKey(p)
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("manifest %q: page %q listed twice", l.source, model.NormalizePath(p))
		}
		out[key] = model.DesiredPage{Path: key, Attributes: model.Attributes(attrs).Clone()}
	}
	return out, nil
}

// loadDir reads every included file below the source directory.
func (l *Loader) loadDir() (map[string]model.DesiredPage, error) {
	out := make(map[string]model.DesiredPage)
	origin := make(map[string]string)

	err := filepath.WalkDir(l.source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.source, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !l.included(rel) {
			return nil
		}

		pagePath, ok := pathForFile(rel)
		if !ok {
			l.log.Warn("skipping file without a page path", "file", rel)
			return nil
		}
		key := pageKey(pagePath)
		if prev, dup := origin[key]; dup {
			return fmt.Errorf("page %q defined by both %q and %q", pagePath, prev, rel)
		}

		page, err := l.readPageFile(p)
		if err != nil {
			return fmt.Errorf("reading %q: %w", rel, err)
		}
		if _, ok := page[model.KeyTitle]; !ok {
			page[model.KeyTitle] = path.Base(pagePath)
		}
		origin[key] = rel
		out[key] = model.DesiredPage{Path: key, Attributes: page}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading pages from %q: %w", l.source, err)
	}
	return out, nil
}

func (l *Loader) included(rel string) bool {
	if !matchAny(l.opts.Include, rel) {
		return false
	}
	return !matchAny(l.opts.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	return slices.ContainsFunc(patterns, func(p string) bool {
		ok, _ := doublestar.Match(p, rel)
		return ok
	})
}

// pathForFile maps a relative file name to its page path: the extension is
// dropped and index files stand for their directory. A top-level index has
// no path.
func pathForFile(rel string) (string, bool) {
	p := strings.TrimSuffix(rel, path.Ext(rel))
	if path.Base(p) == "index" {
		p = path.Dir(p)
	}
	if p == "." || p == "" {
		return "", false
	}
	return p, true
}

// pageKey renders a page path the way desired sets are keyed.
func pageKey(p string) string {
	return "/" + model.NormalizePath(p) + "/"
}

// readPageFile splits an optional YAML front matter block from the body.
// The body becomes the description unless the front matter sets one. Markdown
// bodies are rendered to HTML; HTML bodies are kept as written.
func (l *Loader) readPageFile(name string) (model.Attributes, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	meta, body, err := splitFrontMatter(data)
	if err != nil {
		return nil, err
	}
	attrs := model.Attributes(meta).Clone()
	if _, ok := attrs[model.KeyDescription]; ok {
		return attrs, nil
	}
	if isMarkdown(name) {
		if body, err = l.renderMarkdown(body); err != nil {
			return nil, fmt.Errorf("rendering markdown: %w", err)
		}
	}
	attrs[model.KeyDescription] = body
	return attrs, nil
}

func isMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// renderMarkdown converts body to HTML without the trailing newline, so an
// exported page reads back with the description it was exported from.
func (l *Loader) renderMarkdown(body string) (string, error) {
	if body == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := l.md.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

var errUnterminatedFrontMatter = errors.New("front matter is not terminated")

func splitFrontMatter(data []byte) (map[string]any, string, error) {
	text := strings.ReplaceAll(string(bytes.TrimPrefix(data, []byte("\ufeff"))), "\r\n", "\n")
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return nil, strings.TrimSpace(text), nil
	}

	rest := text[len(frontMatterDelim)+1:]
	var block, body string
	switch {
	case strings.HasPrefix(rest, frontMatterDelim+"\n") || rest == frontMatterDelim:
		body = strings.TrimPrefix(rest, frontMatterDelim)
	default:
		end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
		if end < 0 {
			if !strings.HasSuffix(rest, "\n"+frontMatterDelim) {
				return nil, "", errUnterminatedFrontMatter
			}
			end = len(rest) - len(frontMatterDelim) - 1
		}
		block = rest[:end]
		body = rest[min(end+len(frontMatterDelim)+2, len(rest)):]
	}

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, "", fmt.Errorf("parsing front matter: %w", err)
	}
	return meta, strings.TrimSpace(body), nil
}
