package main

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/njoerd114/pressrelay/internal/model"
	"github.com/njoerd114/pressrelay/internal/pages"
	"github.com/njoerd114/pressrelay/internal/setup"
)

func newPagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Inspect or delete remote pages",
	}
	cmd.AddCommand(
		newPagesListCmd(),
		newPagesTreeCmd(),
		newPagesGetCmd(),
		newPagesDeleteCmd(),
		newPagesDeleteAllCmd(),
	)
	return cmd
}

func newPagesListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every page, including trashed ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.wp.ListPages(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), list)
			}
			rows := make([][]string, 0, len(list))
			for _, p := range sortedByID(list) {
				rows = append(rows, []string{fmt.Sprint(p.ID), fmt.Sprint(p.ParentID), string(p.Status), p.Title})
			}
			renderTable(cmd.OutOrStdout(), []string{"id", "parent", "status", "title"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

type treeEntry struct {
	Path   string       `json:"path"`
	ID     int          `json:"id"`
	Status model.Status `json:"status"`
	Title  string       `json:"title"`
}

func newPagesTreeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the remote pages by canonical path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			index, err := a.synchronizer(false).Existing(cmd.Context())
			if err != nil {
				return err
			}
			entries := make([]treeEntry, 0, len(index))
			for _, path := range slices.Sorted(maps.Keys(index)) {
				r := index[path]
				entries = append(entries, treeEntry{Path: path, ID: r.ID, Status: r.Status, Title: r.Attributes.Title()})
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Path, fmt.Sprint(e.ID), string(e.Status), e.Title})
			}
			renderTable(cmd.OutOrStdout(), []string{"path", "id", "status", "title"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newPagesGetCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show the full attributes of one page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			page, err := a.wp.GetPage(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), page.Attributes)
			}
			renderStruct(cmd.OutOrStdout(), page.Attributes)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newPagesDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Move a page to the trash, or remove it if already trashed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			prompt := setup.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			if !yes && !prompt.Confirm(fmt.Sprintf("Delete page %d?", id), false) {
				return nil
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ok, err := a.wp.DeletePage(cmd.Context(), id)
			if err != nil {
				return err
			}
			if a.cache != nil {
				if _, err := a.cache.Refresh(cmd.Context(), id); err != nil {
					a.log.Debug("page gone after delete", "id", id, "error", err)
				}
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), yellow.Render("⚠")+fmt.Sprintf(" server did not confirm deleting page %d", id))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("✓")+fmt.Sprintf(" page %d deleted", id))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newPagesDeleteAllCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every page on the site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.wp.ListPages(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pages.")
				return nil
			}
			prompt := setup.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			if !yes && !prompt.Confirm(fmt.Sprintf("Delete all %d pages on %s?", len(list), a.cfg.URL), false) {
				return nil
			}

			deleted, err := a.wp.DeleteAll(cmd.Context())
			if a.cache != nil && len(deleted) > 0 {
				a.cache.Clear()
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("✓")+fmt.Sprintf(" %d pages deleted", len(deleted)))
			return err
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write the remote page tree as markdown files",
		Long: `Export fetches every page, resolves its canonical path and writes
<dir>/<path>.md with the title in YAML front matter. Trashed pages are
skipped. The output can be used as a directory page source.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			index, err := a.synchronizer(false).Existing(cmd.Context())
			if err != nil {
				return err
			}
			n, err := pages.NewExporter(a.log).Export(args[0], index)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("✓")+fmt.Sprintf(" %d pages exported to %s", n, args[0]))
			return nil
		},
	}
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid page id %q", s)
	}
	return id, nil
}

func sortedByID(list []model.PageSummary) []model.PageSummary {
	out := slices.Clone(list)
	slices.SortFunc(out, func(a, b model.PageSummary) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
