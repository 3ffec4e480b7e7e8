package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/ledgersync/internal/app"
	"github.com/Veraticus/ledgersync/internal/cli"
	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/config"
	"github.com/Veraticus/ledgersync/internal/model"
	"github.com/Veraticus/ledgersync/internal/storage"
)

// appOptions are appended to every openApp call. Tests inject an in-memory
// backend here.
var appOptions []app.Option

const dateLayout = "2006-01-02"

// openApp loads the configuration and builds the application.
func openApp(ctx context.Context, opts ...app.Option) (*app.App, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	all := append(append([]app.Option{}, appOptions...), opts...)
	a, err := app.New(ctx, cfg, all...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// openAccount builds the application and loads the account, which every
// balance-affecting command needs.
func openAccount(ctx context.Context, opts ...app.Option) (*app.App, model.Account, error) {
	a, err := openApp(ctx, opts...)
	if err != nil {
		return nil, model.Account{}, err
	}
	acct, err := a.Balance.FirstAccount(ctx)
	if err != nil {
		_ = a.Close()
		return nil, model.Account{}, fmt.Errorf("failed to load account: %w", err)
	}
	return a, acct, nil
}

// openStore opens and migrates the local database only.
func openStore(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := config.ExpandPath(viper.GetString("database.path"))
	if dbPath == "" {
		dbPath = config.ExpandPath(config.DefaultDatabasePath)
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// reportPending turns a queued outcome into a notice. Any other error is
// returned unchanged.
func reportPending(w io.Writer, err error, what string) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrPendingSync) {
		return err
	}
	fmt.Fprintln(w, cli.FormatPending(what+" saved locally; it will be sent on the next sync"))
	if errors.Is(err, common.ErrCategoryNotFound) {
		fmt.Fprintln(w, cli.FormatWarning("Local balance not updated: category is not mirrored yet"))
	}
	return nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. An empty
// string means now.
func parseDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := model.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// parseAmount parses a non-negative decimal amount.
func parseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	return amount, nil
}

// periodFlags registers --from and --to on cmd.
func periodFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "start date (YYYY-MM-DD, default: first day of this month)")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD, default: end of today)")
}

// period resolves --from and --to into an inclusive range.
func period(cmd *cobra.Command, now time.Time) (time.Time, time.Time, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	now = now.UTC()

	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if fromStr != "" {
		t, err := parseDate(fromStr, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}

	to := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, time.UTC)
	if toStr != "" {
		t, err := parseDate(toStr, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = t
		if _, dateOnly := time.Parse(dateLayout, toStr); dateOnly == nil {
			to = t.Add(24*time.Hour - time.Second)
		}
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", to.Format(dateLayout), from.Format(dateLayout))
	}
	return from, to, nil
}

// confirm asks a y/N question on the command's streams.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s (y/N) ", question)

	var response string
	_, _ = fmt.Fscanln(cmd.InOrStdin(), &response)
	return strings.HasPrefix(strings.ToLower(response), "y")
}

func statusLine(offline bool) string {
	if offline {
		return cli.WarningStyle.Render(cli.OfflineIcon + " offline")
	}
	return cli.SuccessStyle.Render(cli.SuccessIcon + " online")
}
