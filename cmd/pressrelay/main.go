// Pressrelay keeps a tree of WordPress pages in step with a local page
// source, addressing every page by its slash-separated path.
//
// Usage:
//
//	pressrelay init                          # interactive first-run wizard
//	pressrelay sync [--pages <path>]         # create or edit pages to match the source
//	pressrelay sync --watch                  # keep syncing as the source changes
//	pressrelay pages list|tree|get|delete    # inspect or remove remote pages
//	pressrelay export <dir>                  # write the remote tree as markdown
//	pressrelay history [run-id]              # show recorded runs
//	pressrelay cache status|prime|clear      # manage the fingerprint cache
//	pressrelay status                        # show config, cache and last run
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/njoerd114/pressrelay/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

var (
	flagConfig  string
	flagVerbose bool
	flagEnvFile string
)

var rootCmd = &cobra.Command{
	Use:           "pressrelay",
	Short:         "Synchronize a tree of WordPress pages from a local source",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultCfg, _ := config.DefaultPath()
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", defaultCfg, "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "dotenv file with PRESSRELAY_* overrides")

	rootCmd.AddCommand(
		newInitCmd(),
		newSyncCmd(),
		newPagesCmd(),
		newExportCmd(),
		newPostsCmd(),
		newPostCmd(),
		newAuthorsCmd(),
		newCategoriesCmd(),
		newTagsCmd(),
		newHistoryCmd(),
		newCacheCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, red.Render("Error:"), err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "pressrelay", version)
		},
	}
}
