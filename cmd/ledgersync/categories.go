package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/ledgersync/internal/cli"
	"github.com/Veraticus/ledgersync/internal/model"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List transaction categories",
	}

	cmd.AddCommand(listCategoriesCmd())
	return cmd
}

func listCategoriesCmd() *cobra.Command {
	var direction string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Long: `List the categories known to the server. When the server cannot be
reached the last fetched list is shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var categories []model.Category
			if direction == "" {
				categories, err = a.Categories.All(ctx)
			} else {
				d, perr := model.ParseDirection(direction)
				if perr != nil {
					return perr
				}
				categories, err = a.Categories.ByDirection(ctx, d)
			}
			if err != nil {
				return fmt.Errorf("failed to load categories: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(categories) == 0 {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("No categories found."))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join([]string{
				cli.HeaderStyle.Render("ID"),
				cli.HeaderStyle.Render("NAME"),
				cli.HeaderStyle.Render("DIRECTION"),
			}, "\t"))
			for _, c := range categories {
				fmt.Fprintf(w, "%d\t%s\t%s\n",
					c.ID,
					strings.TrimSpace(c.Emoji+" "+c.Name),
					cli.SubtleStyle.Render(string(c.Direction)))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if a.Balance.IsOffline() {
				fmt.Fprintln(out, cli.FormatPending("Offline: showing the last fetched categories"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&direction, "direction", "", "only income or outcome categories")
	return cmd
}
