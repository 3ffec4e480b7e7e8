package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/ledgersync/internal/app"
	"github.com/Veraticus/ledgersync/internal/cli"
	"github.com/Veraticus/ledgersync/internal/common"
	"github.com/Veraticus/ledgersync/internal/txsync"
)

func syncCmd() *cobra.Command {
	var (
		retries      int
		noCheckpoint bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Send queued changes to the server",
		Long: `Replay every change saved while the server was unreachable, oldest
first, then reload the account.

A checkpoint of the local database is taken before anything is sent.
Changes the server refuses stay queued; inspect them with 'ledgersync outbox list'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			interrupts := cli.NewInterruptHandler(out)
			ctx, stop := interrupts.HandleInterrupts(cmd.Context())
			defer stop()

			progress := cli.NewDrainProgress(out)
			a, err := openApp(ctx, app.WithDrainProgress(progress.Update))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if !noCheckpoint {
				if err := autoCheckpoint(ctx, a); err != nil {
					slog.Warn("failed to checkpoint before sync", "error", err)
				}
			}

			report, err := resync(ctx, a, retries)
			if interrupts.WasInterrupted() {
				return nil
			}

			printDrainReport(cmd, report)
			if err != nil {
				if common.IsUnreachable(err) || errors.Is(err, common.ErrMaxRetries) {
					fmt.Fprintln(out, cli.FormatPending("Server unreachable; changes stay queued"))
					return nil
				}
				return fmt.Errorf("sync failed: %w", err)
			}

			fmt.Fprintln(out, cli.FormatSuccess("Account is up to date"))
			return nil
		},
	}

	cmd.Flags().IntVar(&retries, "retries", 3, "attempts while the server is unreachable")
	cmd.Flags().BoolVar(&noCheckpoint, "no-checkpoint", false, "skip the checkpoint taken before syncing")

	return cmd
}

// resync drains the outbox, retrying while the server is unreachable.
func resync(ctx context.Context, a *app.App, attempts int) (txsync.DrainReport, error) {
	var report txsync.DrainReport
	err := common.WithRetry(ctx, func() error {
		r, err := a.Resync(ctx)
		report = r
		if err != nil {
			return err
		}
		if r.Failed > 0 {
			return &common.RetryableError{
				Err:       fmt.Errorf("%w: %d changes could not be sent", common.ErrTransportUnavailable, r.Failed),
				Retryable: true,
			}
		}
		return nil
	}, common.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	})
	return report, err
}

func autoCheckpoint(ctx context.Context, a *app.App) error {
	manager, err := a.Store.NewCheckpointManager()
	if err != nil {
		return err
	}
	info, err := manager.AutoCheckpoint(ctx, "sync")
	if err != nil {
		return err
	}
	slog.Debug("checkpoint created before sync", "id", info.ID, "pending", info.PendingSync)
	return nil
}

func printDrainReport(cmd *cobra.Command, report txsync.DrainReport) {
	out := cmd.OutOrStdout()
	if report.Total == 0 {
		fmt.Fprintln(out, cli.SubtitleStyle.Render("No queued transaction changes."))
		return
	}

	fmt.Fprintf(out, "%s Sent %d of %d queued changes\n",
		cli.SyncIcon, report.Synced, report.Total)
	if report.Failed > 0 {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d could not reach the server", report.Failed)))
	}
	if report.Rejected > 0 {
		fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%d were refused by the server and stay queued", report.Rejected)))
		for _, err := range report.Errors {
			if common.IsUnreachable(err) {
				continue
			}
			common.LogError(err, "queued change refused by server", common.Fields{"queued": report.Remaining()})
		}
	}
}
