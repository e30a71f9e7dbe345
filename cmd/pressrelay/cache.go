package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the page fingerprint cache",
	}
	cmd.AddCommand(newCacheStatusCmd(), newCachePrimeCmd(), newCacheClearCmd())
	return cmd
}

func newCacheStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cache file and entry count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.requireCache()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  File:      %s\n", c.Path())
			if info, err := os.Stat(c.Path()); err == nil {
				fmt.Fprintf(out, "  Size:      %s\n", humanize.Bytes(uint64(info.Size())))
				fmt.Fprintf(out, "  Written:   %s\n", humanize.Time(info.ModTime()))
			} else {
				fmt.Fprintf(out, "  Size:      not written yet\n")
			}
			fmt.Fprintf(out, "  Entries:   %s pages\n", humanize.Comma(int64(c.Len())))
			return nil
		},
	}
}

func newCachePrimeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prime",
		Short: "Fetch every remote page that is not cached yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.requireCache()
			if err != nil {
				return err
			}
			list, err := a.wp.ListPages(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]int, 0, len(list))
			for _, p := range list {
				ids = append(ids, p.ID)
			}

			n, err := c.Prime(cmd.Context(), ids)
			// Whatever was fetched before a failure is still worth keeping.
			if ferr := c.Flush(); ferr != nil {
				a.log.Warn("saving page cache failed", "path", c.Path(), "error", ferr)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("✓")+fmt.Sprintf(" %d pages fetched, %d cached", n, c.Len()))
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every cached page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.requireCache()
			if err != nil {
				return err
			}
			n := c.Len()
			c.Clear()
			if err := c.Flush(); err != nil {
				return fmt.Errorf("saving page cache: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), green.Render("✓")+fmt.Sprintf(" %d cached pages dropped", n))
			return nil
		},
	}
}
