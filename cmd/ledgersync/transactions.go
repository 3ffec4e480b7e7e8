package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/ledgersync/internal/app"
	"github.com/Veraticus/ledgersync/internal/cli"
	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/report"
	"github.com/Veraticus/ledgersync/internal/service"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List and change transactions",
		Long: `List, create, edit and delete transactions.

When the server cannot be reached, changes are stored locally with a
temporary negative ID and sent on the next sync.`,
		Example: `  # List this month's transactions
  ledgersync transactions list

  # Record an expense
  ledgersync transactions create --category 20 --amount 12.50 --comment "lunch"

  # Export a period to CSV
  ledgersync transactions export --from 2025-01-01 --to 2025-03-31 -o q1.csv`,
	}

	cmd.AddCommand(listTransactionsCmd())
	cmd.AddCommand(createTransactionCmd())
	cmd.AddCommand(editTransactionCmd())
	cmd.AddCommand(deleteTransactionCmd())
	cmd.AddCommand(exportTransactionsCmd())
	cmd.AddCommand(importTransactionsCmd())
	cmd.AddCommand(summaryCmd())

	return cmd
}

func listTransactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions in a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			from, to, err := period(cmd, time.Now())
			if err != nil {
				return err
			}

			a, acct, err := openAccount(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			txns, err := a.Transactions.Transactions(ctx, acct.ID, from, to)
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}
			categories := categoryIndex(ctx, a)

			out := cmd.OutOrStdout()
			if len(txns) == 0 {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("No transactions in this period."))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, strings.Join([]string{
				cli.HeaderStyle.Render("ID"),
				cli.HeaderStyle.Render("DATE"),
				cli.HeaderStyle.Render("CATEGORY"),
				cli.HeaderStyle.Render("AMOUNT"),
				cli.HeaderStyle.Render("COMMENT"),
			}, "\t"))

			for _, t := range txns {
				id := fmt.Sprintf("%d", t.ID)
				if t.IsLocal() {
					id = cli.WarningStyle.Render(id + " " + cli.OfflineIcon)
				}
				category, ok := categories[t.CategoryID]
				name := fmt.Sprintf("#%d", t.CategoryID)
				signed := t.Amount
				if ok {
					name = strings.TrimSpace(category.Emoji + " " + category.Name)
					signed = category.Signed(t)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					id,
					t.TransactionDate.Format(dateLayout),
					name,
					cli.FormatAmount(signed, acct.Currency),
					commentOf(t),
				)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if a.Balance.IsOffline() {
				fmt.Fprintln(out, cli.FormatPending("Offline: showing local data"))
			}
			return nil
		},
	}

	periodFlags(cmd)
	return cmd
}

func createTransactionCmd() *cobra.Command {
	var (
		categoryID int64
		amount     string
		date       string
		comment    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a new transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			when, err := parseDate(date, time.Now())
			if err != nil {
				return err
			}

			a, acct, err := openAccount(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if _, err := resolveCategory(ctx, a, categoryID); err != nil {
				return err
			}

			draft := model.TransactionDraft{
				AccountID:       acct.ID,
				CategoryID:      categoryID,
				Amount:          value,
				TransactionDate: when,
			}
			if comment != "" {
				draft.Comment = &comment
			}

			created, err := a.Transactions.Create(ctx, draft)
			if err := reportPending(cmd.OutOrStdout(), err, "Transaction"); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Recorded transaction %s (%s)\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(fmt.Sprintf("%d", created.ID)),
				created.Amount.StringFixed(2))
			return nil
		},
	}

	cmd.Flags().Int64VarP(&categoryID, "category", "c", 0, "category ID (see 'ledgersync categories list')")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "amount, always positive")
	cmd.Flags().StringVarP(&date, "date", "d", "", "transaction date (YYYY-MM-DD, default: now)")
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "optional comment")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func editTransactionCmd() *cobra.Command {
	var (
		categoryID int64
		amount     string
		date       string
		comment    string
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change an existing transaction",
		Long: `Change the category, amount, date or comment of a transaction.

Only the flags given are changed. Transactions with a negative ID have not
reached the server yet; editing them rewrites the queued change. Put "--"
before a negative ID so it is not read as a flag.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, _, err := openAccount(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			t, err := a.Transactions.Lookup(ctx, id)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("category") {
				if _, err := resolveCategory(ctx, a, categoryID); err != nil {
					return err
				}
				t.CategoryID = categoryID
			}
			if flags.Changed("amount") {
				if t.Amount, err = parseAmount(amount); err != nil {
					return err
				}
			}
			if flags.Changed("date") {
				if t.TransactionDate, err = parseDate(date, time.Now()); err != nil {
					return err
				}
			}
			if flags.Changed("comment") {
				if comment == "" {
					t.Comment = nil
				} else {
					t.Comment = &comment
				}
			}

			edited, err := a.Transactions.Edit(ctx, t)
			if err := reportPending(cmd.OutOrStdout(), err, "Change"); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Updated transaction %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(fmt.Sprintf("%d", edited.ID)))
			return nil
		},
	}

	cmd.Flags().Int64VarP(&categoryID, "category", "c", 0, "new category ID")
	cmd.Flags().StringVarP(&amount, "amount", "a", "", "new amount")
	cmd.Flags().StringVarP(&date, "date", "d", "", "new date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "new comment, empty to clear")

	return cmd
}

func deleteTransactionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Short:   "Delete a transaction",
		Example: "  ledgersync transactions delete 42\n  ledgersync transactions delete -- -1741600000000",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			a, _, err := openAccount(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			err = a.Transactions.Delete(ctx, id)
			if err := reportPending(cmd.OutOrStdout(), err, "Deletion"); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted transaction %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(args[0]))
			return nil
		},
	}
}

func exportTransactionsCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export transactions in a period as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			from, to, err := period(cmd, time.Now())
			if err != nil {
				return err
			}

			a, acct, err := openAccount(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			txns, err := a.Transactions.Transactions(ctx, acct.ID, from, to)
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				defer func() { _ = f.Close() }()
				w = f
			}

			if err := model.WriteTransactionsCSV(w, txns); err != nil {
				return fmt.Errorf("failed to write csv: %w", err)
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s Exported %d transactions to %s\n",
					cli.SuccessStyle.Render(cli.SuccessIcon), len(txns), output)
			}
			return nil
		},
	}

	periodFlags(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func importTransactionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Record transactions from a CSV export",
		Long: `Record every row of a CSV file in the export layout as a new
transaction on the account. IDs in the file are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			rows, skipped, err := model.ParseTransactionsCSV(f)
			if err != nil {
				return err
			}

			a, acct, err := openAccount(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var created, queued int
			for _, row := range rows {
				draft := model.DraftOf(row)
				draft.AccountID = acct.ID

				_, err := a.Transactions.Create(ctx, draft)
				switch {
				case err == nil:
					created++
				case errors.Is(err, common.ErrPendingSync):
					queued++
				default:
					return fmt.Errorf("import stopped after %d rows: %w", created+queued, err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Imported %d transactions\n", cli.SuccessStyle.Render(cli.SuccessIcon), created)
			if queued > 0 {
				fmt.Fprintln(out, cli.FormatPending(fmt.Sprintf("%d saved locally, pending sync", queued)))
			}
			if skipped > 0 {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("Skipped %d unreadable rows", skipped)))
			}
			return nil
		},
	}
}

func summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize income and expenses by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			from, to, err := period(cmd, time.Now())
			if err != nil {
				return err
			}

			a, acct, err := openAccount(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			txns, err := a.Transactions.Transactions(ctx, acct.ID, from, to)
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}
			summary, err := report.Summarize(txns, categoryIndex(ctx, a), from, to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Cash flow %s to %s",
				from.Format(dateLayout), to.Format(dateLayout))))

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			writeSection(w, "INCOME", report.Ranked(summary.IncomeByCategory), summary.TotalIncome, acct.Currency)
			writeSection(w, "EXPENSES", report.Ranked(summary.ExpensesByCategory), summary.TotalExpenses, acct.Currency)
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(out, "\n%s %s\n", cli.BoldStyle.Render("Net:"), cli.FormatAmount(summary.NetCashFlow, acct.Currency))
			return nil
		},
	}

	periodFlags(cmd)
	return cmd
}

func writeSection(w io.Writer, title string, rows []service.CategorySummary, total decimal.Decimal, currency string) {
	fmt.Fprintln(w, strings.Join([]string{
		cli.HeaderStyle.Render(title),
		cli.HeaderStyle.Render("COUNT"),
		cli.HeaderStyle.Render("AMOUNT"),
		cli.HeaderStyle.Render("SHARE"),
	}, "\t"))
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s%%\n",
			strings.TrimSpace(row.Category.Emoji+" "+row.Category.Name),
			row.Count,
			row.Amount.StringFixed(2)+" "+currency,
			report.Share(row.Amount, total).StringFixed(1),
		)
	}
	fmt.Fprintf(w, "%s\t\t%s\t\n\n", cli.SubtleStyle.Render("total"), total.StringFixed(2)+" "+currency)
}

// categoryIndex refreshes the category mirror when the server is reachable
// and returns it keyed by id. An empty index is returned on failure.
func categoryIndex(ctx context.Context, a *app.App) map[int64]model.Category {
	if _, err := a.Categories.All(ctx); err != nil {
		slog.Warn("failed to refresh categories", "error", err)
	}
	index, err := a.Categories.Index(ctx)
	if err != nil {
		slog.Warn("failed to load categories", "error", err)
		return map[int64]model.Category{}
	}
	return index
}

// resolveCategory checks that id names a known category, refreshing the
// mirror once when it is missing.
func resolveCategory(ctx context.Context, a *app.App, id int64) (model.Category, error) {
	category, err := a.Categories.Lookup(ctx, id)
	if !errors.Is(err, common.ErrCategoryNotFound) {
		return category, err
	}
	if _, err := a.Categories.All(ctx); err != nil {
		return model.Category{}, err
	}
	return a.Categories.Lookup(ctx, id)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid transaction id %q", s)
	}
	return id, nil
}

func commentOf(t model.Transaction) string {
	if t.Comment == nil {
		return ""
	}
	return *t.Comment
}
