package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/ledgersync/internal/cli"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stay running and sync whenever the server comes back",
		Long: `Probe the server periodically. When it becomes reachable after an
outage, queued changes are sent and the account is reloaded. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if _, err := a.Balance.FirstAccount(ctx); err != nil {
				return fmt.Errorf("failed to load account: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Watching connectivity (%s)\n",
				cli.SyncIcon, statusLine(a.Monitor.IsOffline()))
			return a.Run(ctx)
		},
	}
}
