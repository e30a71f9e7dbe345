package main

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cast"

	"github.com/njoerd114/pressrelay/internal/model"
	"github.com/njoerd114/pressrelay/internal/state"
)

var (
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	gray   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	bold   = lipgloss.NewStyle().Bold(true)
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func renderTable(w io.Writer, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, gray.Render("(none)"))
		return
	}
	cell := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(gray).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return bold.Padding(0, 1)
			}
			return cell
		})
	fmt.Fprintln(w, t.Render())
}

// renderRecords prints one row per XML-RPC struct using the given keys as
// columns.
func renderRecords(w io.Writer, records []map[string]any, columns []string) {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = field(rec, col)
		}
		rows = append(rows, row)
	}
	renderTable(w, columns, rows)
}

// renderStruct prints the keys of one XML-RPC struct in sorted order.
func renderStruct(w io.Writer, rec map[string]any) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, field(rec, k)})
	}
	renderTable(w, []string{"field", "value"}, rows)
}

func field(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case time.Time:
		return v.Format(time.DateTime)
	case []any, map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return cast.ToString(v)
	}
}

func printChanges(w io.Writer, changes []model.ChangeRecord) {
	for _, c := range changes {
		switch c.Action {
		case model.ActionCreated:
			id := "new"
			if c.ID != 0 {
				id = fmt.Sprintf("id %d", c.ID)
			}
			fmt.Fprintf(w, "  %s %s %s\n", green.Render("+"), c.Path, gray.Render("("+id+")"))
		case model.ActionEdited:
			fmt.Fprintf(w, "  %s %s %s\n", yellow.Render("~"), c.Path, gray.Render(fmt.Sprintf("(id %d)", c.ID)))
		}
	}
}

func printRun(w io.Writer, run *state.Run) {
	printChanges(w, run.Changes)

	verb := "Synced"
	if run.DryRun {
		verb = "Would sync"
	}
	summary := fmt.Sprintf("%s: %d created, %d edited, %d unchanged (%d remote pages, %s)",
		verb, run.Created, run.Edited, run.Skipped, run.Remote, run.Duration().Round(time.Millisecond))
	if run.Status == state.RunFailed {
		fmt.Fprintln(w, red.Render("✗ "+summary))
		return
	}
	fmt.Fprintln(w, green.Render("✓ ")+summary)
}

func runRows(runs []*state.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		mode := ""
		if r.DryRun {
			mode = "dry-run"
		}
		rows = append(rows, []string{
			shortID(r.ID),
			humanize.Time(r.StartedAt),
			r.Duration().Round(time.Millisecond).String(),
			statusText(r.Status),
			mode,
			cast.ToString(r.Created),
			cast.ToString(r.Edited),
			cast.ToString(r.Skipped),
		})
	}
	return rows
}

var runHeaders = []string{"run", "started", "took", "status", "mode", "created", "edited", "unchanged"}

func statusText(s state.RunStatus) string {
	if s == state.RunFailed {
		return red.Render(string(s))
	}
	return green.Render(string(s))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
