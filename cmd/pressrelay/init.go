package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/njoerd114/pressrelay/internal/config"
	"github.com/njoerd114/pressrelay/internal/setup"
	"github.com/njoerd114/pressrelay/internal/wordpress"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive first-run wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, closeLog, err := newLogger(os.Stderr, logLevelForWizard(flagVerbose), "")
			if err != nil {
				return err
			}
			defer closeLog()
			slog.SetDefault(logger)

			wiz := setup.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout(), verifySite, logger)
			return wiz.Run(cmd.Context(), flagConfig)
		},
	}
}

func logLevelForWizard(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// verifySite logs in and lists pages once, without retries.
func verifySite(ctx context.Context, siteURL, user, password string) (int, error) {
	wp, err := wordpress.NewAdapter(siteURL, user, password, wordpress.Options{
		RetryAttempts: 1,
		Timeout:       config.DefaultTimeout,
	}, slog.Default())
	if err != nil {
		return 0, err
	}
	defer func() { _ = wp.Close() }()

	list, err := wp.ListPages(ctx)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}
