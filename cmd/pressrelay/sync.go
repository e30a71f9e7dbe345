package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/njoerd114/pressrelay/internal/config"
	"github.com/njoerd114/pressrelay/internal/pages"
	syncp "github.com/njoerd114/pressrelay/internal/sync"
)

type syncFlags struct {
	pages   string
	watch   bool
	dryRun  bool
	confirm bool
	json    bool
}

func newSyncCmd() *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Create or edit remote pages to match the page source",
		Long: `Sync loads the desired pages, indexes the remote page tree by path and
creates or edits pages so the remote tree matches. Parents are processed
before children; pages are never deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.pages, "pages", "p", "", "page manifest or directory (overrides pages.source)")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "keep running and resync when the source changes")
	cmd.Flags().BoolVarP(&f.dryRun, "dry-run", "n", false, "report what would change without writing")
	cmd.Flags().BoolVar(&f.confirm, "confirm", false, "show the plan and ask before writing")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the run as JSON")
	cmd.MarkFlagsMutuallyExclusive("watch", "confirm")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "confirm")
	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, f syncFlags) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	pagesCfg := config.PagesConfig{WatchInterval: config.DefaultWatchInterval}
	if a.cfg.Pages != nil {
		pagesCfg = *a.cfg.Pages
	}
	if f.pages != "" {
		pagesCfg.Source = f.pages
	}
	if pagesCfg.Source == "" {
		return fmt.Errorf("no page source: set pages.source in %s or pass --pages", flagConfig)
	}
	if _, err := os.Stat(pagesCfg.Source); err != nil {
		return fmt.Errorf("page source: %w", err)
	}

	loader := pages.NewLoader(pagesCfg.Source, pages.Options{
		Include:  pagesCfg.Include,
		Exclude:  pagesCfg.Exclude,
		Sanitize: pagesCfg.Sanitize,
	}, a.log)

	store, err := a.openHistory()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			a.log.Error("closing history DB", "error", closeErr)
		}
	}()

	syn := a.synchronizer(f.dryRun)
	out := cmd.OutOrStdout()

	if f.confirm {
		desired, err := loader.Load()
		if err != nil {
			return err
		}
		proceed, err := syncp.NewPreview(syn, a.log, cmd.InOrStdin(), out).Run(ctx, desired)
		if err != nil || !proceed {
			return err
		}
	}

	engine := syncp.NewEngine(syn, loader, store, a.log)

	if f.watch {
		a.log.Info("watching page source", "source", pagesCfg.Source, "interval", pagesCfg.WatchInterval)
		if err := engine.Watch(ctx, pagesCfg.Source, pagesCfg.WatchInterval); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watching %s: %w", pagesCfg.Source, err)
		}
		return nil
	}

	run, err := engine.RunOnce(ctx)
	if f.json {
		if jerr := printJSON(out, run); jerr != nil {
			return jerr
		}
	} else {
		printRun(out, run)
	}
	return err
}
