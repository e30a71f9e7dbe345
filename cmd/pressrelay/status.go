package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/njoerd114/pressrelay/internal/config"
)

func newStatusCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show config, cache and last run state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), check)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "also verify the site credentials")
	return cmd
}

// runStatus reports on every local file pressrelay uses. An invalid config
// is reported rather than returned.
func runStatus(ctx context.Context, out io.Writer, check bool) error {
	fmt.Fprintln(out, "Pressrelay Status")
	fmt.Fprintln(out, "─────────────────")

	if err := config.LoadDotEnv(flagEnvFile); err != nil {
		fmt.Fprintf(out, "  Env file:  %s (invalid: %v)\n", flagEnvFile, err)
	}

	// Config state.
	cfg, cfgErr := config.Load(flagConfig)
	switch {
	case cfgErr == nil:
		fmt.Fprintf(out, "  Config:    %s %s\n", flagConfig, green.Render("✓"))
		fmt.Fprintf(out, "  Site:      %s (user %s)\n", cfg.URL, cfg.User)
		if cfg.Pages != nil {
			fmt.Fprintf(out, "  Pages:     %s\n", cfg.Pages.Source)
		} else {
			fmt.Fprintf(out, "  Pages:     not configured\n")
		}
	case errors.Is(cfgErr, fs.ErrNotExist):
		fmt.Fprintf(out, "  Config:    not found (%s)\n", flagConfig)
		fmt.Fprintln(out, "\nRun 'pressrelay init' to get started.")
		return nil
	default:
		fmt.Fprintf(out, "  Config:    %s (%s)\n", flagConfig, red.Render(cfgErr.Error()))
	}

	// Cache file.
	if cfg != nil && cfg.CacheFile != "" {
		fmt.Fprintf(out, "  Cache:     %s\n", fileSummary(cfg.CacheFile))
	} else {
		fmt.Fprintf(out, "  Cache:     disabled\n")
	}

	// History DB and last run.
	dbPath, err := historyPath(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  History:   %s\n", fileSummary(dbPath))
	if _, err := os.Stat(dbPath); err == nil {
		if store, err := openHistory(cfg); err == nil {
			last, lerr := store.LastRun(ctx)
			_ = store.Close()
			switch {
			case lerr != nil:
				fmt.Fprintf(out, "  Last run:  %s\n", red.Render(lerr.Error()))
			case last == nil:
				fmt.Fprintf(out, "  Last run:  never\n")
			default:
				fmt.Fprintf(out, "  Last run:  %s %s, %d created, %d edited (%s)\n",
					humanize.Time(last.StartedAt), statusText(last.Status), last.Created, last.Edited, shortID(last.ID))
			}
		}
	}

	if cfg != nil && cfg.LogFile != "" {
		fmt.Fprintf(out, "  Log file:  %s\n", fileSummary(cfg.LogFile))
	}

	if check && cfg != nil {
		n, err := verifySite(ctx, cfg.URL, cfg.User, cfg.Password)
		if err != nil {
			fmt.Fprintf(out, "  Remote:    %s\n", red.Render(err.Error()))
		} else {
			fmt.Fprintf(out, "  Remote:    %s %d pages\n", green.Render("✓"), n)
		}
	}
	return nil
}

func fileSummary(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path + " (not found)"
	}
	return fmt.Sprintf("%s (%s, modified %s)", path, humanize.Bytes(uint64(info.Size())), humanize.RelTime(info.ModTime(), time.Now(), "ago", "from now"))
}
