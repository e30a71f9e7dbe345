package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/njoerd114/pressrelay/internal/wordpress"
)

var (
	postColumns     = []string{"post_id", "post_type", "post_status", "post_date", "post_title"}
	authorColumns   = []string{"user_id", "user_login", "display_name"}
	categoryColumns = []string{"categoryId", "parentId", "categoryName", "description"}
	tagColumns      = []string{"tag_id", "slug", "name", "count"}
)

func newPostsCmd() *cobra.Command {
	var (
		filter wordpress.PostFilter
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listCatalogue(cmd, asJSON, postColumns, func(ctx context.Context, wp *wordpress.Adapter) ([]map[string]any, error) {
				return wp.GetPosts(ctx, filter)
			})
		},
	}
	cmd.Flags().StringVar(&filter.PostType, "type", "", "post type, e.g. post or page")
	cmd.Flags().StringVar(&filter.PostStatus, "status", "", "post status, e.g. publish or draft")
	cmd.Flags().IntVar(&filter.Number, "number", 0, "maximum number of posts")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "number of posts to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newPostCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "post <id>",
		Short: "Show one post",
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

			post, err := a.wp.GetPost(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), post)
			}
			renderStruct(cmd.OutOrStdout(), post)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newAuthorsCmd() *cobra.Command {
	return newCatalogueCmd("authors", "List authors", authorColumns, (*wordpress.Adapter).GetAuthors)
}

func newCategoriesCmd() *cobra.Command {
	return newCatalogueCmd("categories", "List categories", categoryColumns, (*wordpress.Adapter).GetCategories)
}

func newTagsCmd() *cobra.Command {
	return newCatalogueCmd("tags", "List tags", tagColumns, (*wordpress.Adapter).GetTags)
}

type catalogueFunc func(*wordpress.Adapter, context.Context) ([]map[string]any, error)

func newCatalogueCmd(use, short string, columns []string, fetch catalogueFunc) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listCatalogue(cmd, asJSON, columns, func(ctx context.Context, wp *wordpress.Adapter) ([]map[string]any, error) {
				return fetch(wp, ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func listCatalogue(cmd *cobra.Command, asJSON bool, columns []string, fetch func(context.Context, *wordpress.Adapter) ([]map[string]any, error)) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := fetch(cmd.Context(), a.wp)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(cmd.OutOrStdout(), records)
	}
	renderRecords(cmd.OutOrStdout(), records, columns)
	return nil
}
