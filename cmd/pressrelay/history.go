package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/njoerd114/pressrelay/internal/model"
	"github.com/njoerd114/pressrelay/internal/state"
)

const defaultHistoryLimit = 20

func newHistoryCmd() *cobra.Command {
	var (
		limit  int
		page   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded sync runs",
		Long: `Without arguments, history lists the most recent runs. With a run id
(or a unique prefix of one) it shows that run's changes. With --page it
lists every change applied to one page path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			switch {
			case page != "":
				changes, err := store.PageHistory(ctx, page)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(out, changes)
				}
				renderTable(out, []string{"path", "id", "action"}, changeRows(changes))
				return nil

			case len(args) == 1:
				run, err := findRun(cmd, store, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(out, run)
				}
				printRunDetail(cmd, run)
				return nil
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(out, runs)
			}
			renderTable(out, runHeaders, runRows(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "number of runs to show (0 for all)")
	cmd.Flags().StringVar(&page, "page", "", "show the changes applied to one page path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.AddCommand(newHistoryPruneCmd())
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("✓")+fmt.Sprintf(" %d runs removed", n))
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 100, "number of runs to keep")
	return cmd
}

// findRun looks up a run by full id, falling back to a unique prefix match
// among all recorded runs.
func findRun(cmd *cobra.Command, store *state.Store, id string) (*state.Run, error) {
	ctx := cmd.Context()
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		return nil, err
	}
	var match *state.Run
	for _, r := range runs {
		if len(r.ID) < len(id) || r.ID[:len(id)] != id {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("run id %q is ambiguous", id)
		}
		match = r
	}
	if match == nil {
		return nil, fmt.Errorf("no run with id %q", id)
	}
	return store.GetRun(ctx, match.ID)
}

func printRunDetail(cmd *cobra.Command, run *state.Run) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", bold.Render("Run"), run.ID)
	fmt.Fprintf(out, "  Started:   %s (%s)\n", run.StartedAt.Local().Format(time.DateTime), humanize.Time(run.StartedAt))
	fmt.Fprintf(out, "  Took:      %s\n", run.Duration().Round(time.Millisecond))
	fmt.Fprintf(out, "  Status:    %s\n", statusText(run.Status))
	if run.DryRun {
		fmt.Fprintf(out, "  Mode:      dry-run\n")
	}
	if run.Error != "" {
		fmt.Fprintf(out, "  Error:     %s\n", red.Render(run.Error))
	}
	fmt.Fprintf(out, "  Remote:    %d pages indexed, %d unchanged\n\n", run.Remote, run.Skipped)
	renderTable(out, []string{"path", "id", "action"}, changeRows(run.Changes))
}

func changeRows(changes []model.ChangeRecord) [][]string {
	rows := make([][]string, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []string{c.Path, fmt.Sprint(c.ID), string(c.Action)})
	}
	return rows
}
