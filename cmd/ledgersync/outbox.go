package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/ledgersync/internal/cli"
	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/model"
)

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect changes waiting for the server",
		Long: `List the changes saved locally that the server has not confirmed yet,
or drop one the server keeps refusing.`,
	}

	cmd.AddCommand(listOutboxCmd())
	cmd.AddCommand(dropOutboxCmd())
	return cmd
}

func listOutboxCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued changes in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.ListOutbox(ctx)
			if err != nil {
				return fmt.Errorf("failed to read outbox: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("Nothing queued."))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join([]string{
				cli.HeaderStyle.Render("ID"),
				cli.HeaderStyle.Render("ENTITY"),
				cli.HeaderStyle.Render("ACTION"),
				cli.HeaderStyle.Render("QUEUED"),
				cli.HeaderStyle.Render("DETAILS"),
			}, "\t"))
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					e.ID,
					e.EntityType,
					e.Action,
					e.Date.Format("2006-01-02 15:04:05"),
					describeEntry(e))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d queued; send them with 'ledgersync sync'", len(entries))))
			return nil
		},
	}
}

func dropOutboxCmd() *cobra.Command {
	var (
		entity string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "drop <id>",
		Short: "Discard a queued change",
		Long: `Discard a queued change without sending it. The local copy is kept
as it is until the next refresh from the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			entityType := model.EntityType(entity)
			if entityType != model.EntityTransaction && entityType != model.EntityAccount {
				return fmt.Errorf("unknown entity %q: use transaction or account", entity)
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entry, err := store.GetOutbox(ctx, id, entityType)
			if err != nil {
				return err
			}
			if entry == nil {
				return fmt.Errorf("queued %s %d: %w", entityType, id, common.ErrNotFound)
			}

			if !force {
				fmt.Fprintf(cmd.OutOrStdout(), "%s This will discard the queued %s of %s %d.\n",
					cli.WarningStyle.Render(cli.WarningIcon), entry.Action, entityType, id)
				if !confirm(cmd, "Continue?") {
					fmt.Fprintln(cmd.OutOrStdout(), cli.SubtitleStyle.Render("Nothing dropped."))
					return nil
				}
			}

			if err := store.RemoveOutbox(ctx, id, entityType); err != nil {
				return err
			}
			if entityType == model.EntityTransaction && id < 0 {
				if err := store.DeleteTransaction(ctx, id); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Dropped queued %s %d\n",
				cli.SuccessStyle.Render(cli.SuccessIcon), entityType, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&entity, "entity", string(model.EntityTransaction), "entity type (transaction or account)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")

	return cmd
}

func describeEntry(e model.OutboxEntry) string {
	switch e.EntityType {
	case model.EntityTransaction:
		t, err := model.DecodeTransaction(e.Payload)
		if err != nil {
			return cli.ErrorStyle.Render("unreadable payload")
		}
		return fmt.Sprintf("%s on %s, category %d", t.Amount.StringFixed(2), t.TransactionDate.Format(dateLayout), t.CategoryID)
	case model.EntityAccount:
		a, err := model.DecodeAccount(e.Payload)
		if err != nil {
			return cli.ErrorStyle.Render("unreadable payload")
		}
		return fmt.Sprintf("balance %s %s", a.Balance.StringFixed(2), a.Currency)
	default:
		return ""
	}
}
