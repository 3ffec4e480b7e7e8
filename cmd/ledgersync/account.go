package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/ledgersync/internal/cli"
	"github.com/Veraticus/ledgersync/internal/common"
)

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show or change the account",
		Long: `Show the account balance and currency, or change them.

Currency changes made while the server is unreachable are stored locally
and sent on the next sync. The balance can only be set online.`,
		Example: `  # Show the account and its current balance
  ledgersync account show

  # Correct the balance by hand
  ledgersync account set-balance 1250.00

  # Switch the account currency
  ledgersync account set-currency USD`,
	}

	cmd.AddCommand(showAccountCmd())
	cmd.AddCommand(setBalanceCmd())
	cmd.AddCommand(setCurrencyCmd())

	return cmd
}

func showAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the account and its current balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, acct, err := openAccount(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			balance, err := a.Balance.CurrentBalance(ctx)
			if err != nil {
				return fmt.Errorf("failed to compute balance: %w", err)
			}

			lines := []string{
				fmt.Sprintf("%s %s", cli.BoldStyle.Render("Balance: "), cli.FormatAmount(balance, acct.Currency)),
				fmt.Sprintf("%s %s", cli.BoldStyle.Render("Currency:"), acct.Currency),
				fmt.Sprintf("%s %s", cli.BoldStyle.Render("Status:  "), statusLine(a.Balance.IsOffline())),
			}
			if a.Balance.HasManualBalance() {
				lines = append(lines, cli.SubtleStyle.Render("Balance includes changes not yet confirmed by the server"))
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.LedgerIcon+" "+acct.Name, strings.Join(lines, "\n")))
			return nil
		},
	}
}

func setBalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-balance <amount>",
		Short: "Set the account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			balance, err := parseAmount(args[0])
			if err != nil {
				return err
			}

			a, _, err := openAccount(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			updated, err := a.Balance.ChangeBalance(ctx, balance)
			if errors.Is(err, common.ErrOfflineNotAllowed) {
				return common.NewUserError("the balance can only be set while the server is reachable", err)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Balance is now %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.FormatAmount(updated.Balance, updated.Currency))
			return nil
		},
	}
}

func setCurrencyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-currency <code>",
		Short: "Set the account currency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			currency := strings.ToUpper(strings.TrimSpace(args[0]))
			if len(currency) != 3 {
				return fmt.Errorf("invalid currency %q: use a three-letter code", args[0])
			}

			a, _, err := openAccount(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			updated, err := a.Balance.ChangeCurrency(ctx, currency)
			if err := reportPending(cmd.OutOrStdout(), err, "Currency"); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s Currency is now %s\n",
				cli.SuccessStyle.Render(cli.SuccessIcon),
				cli.InfoStyle.Render(updated.Currency))
			return nil
		},
	}
}
