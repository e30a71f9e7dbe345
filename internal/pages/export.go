package pages

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"gopkg.in/yaml.v3"

	"github.com/njoerd114/pressrelay/internal/model"
)

// exportMeta is the front matter written above each exported page.
type exportMeta struct {
	Title string `yaml:"title"`
}

// Exporter writes remote pages as markdown files laid out by canonical
// path, in the format [Loader] reads back.
type Exporter struct {
	conv *converter.Converter
	log  *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(logger *slog.Logger) *Exporter {
	return &Exporter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		log: logger,
	}
}

// Export writes every non-trashed page of index below dir as <path>.md and
// returns the number of files written. Stub entries are skipped.
func (x *Exporter) Export(dir string, index model.PathIndex) (int, error) {
	written := 0
	for _, p := range slices.Sorted(maps.Keys(index)) {
		res := index[p]
		if res.IsTrashed() || res.IsStub() || p == "" {
			continue
		}
		body, err := x.toMarkdown(res.Attributes.Description())
		if err != nil {
			return written, fmt.Errorf("converting page %q: %w", p, err)
		}
		meta, err := yaml.Marshal(exportMeta{Title: res.Attributes.Title()})
		if err != nil {
			return written, fmt.Errorf("encoding front matter of %q: %w", p, err)
		}

		var b strings.Builder
		b.WriteString(frontMatterDelim + "\n")
		b.Write(meta)
		b.WriteString(frontMatterDelim + "\n\n")
		b.WriteString(body)
		b.WriteString("\n")

		name := filepath.Join(dir, filepath.FromSlash(p)+".md")
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			return written, fmt.Errorf("creating directory for %q: %w", p, err)
		}
		if err := os.WriteFile(name, []byte(b.String()), 0o644); err != nil {
			return written, fmt.Errorf("writing %q: %w", name, err)
		}
		x.log.Debug("page exported", "path", p, "id", res.ID, "file", name)
		written++
	}
	return written, nil
}

func (x *Exporter) toMarkdown(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}
	md, err := x.conv.ConvertString(html)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
