// Package cli implements paractl, the operator tool for schema migrations
// and offline payout and fee calculations.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the paractl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "paractl",
		Short: "ParaLedger operator tool",
		Long: `Operator tool for a ParaLedger deployment: apply schema migrations and
compute payouts, fees and risk ids offline with the engine's arithmetic.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewPayoutCommand(opts))
	cmd.AddCommand(NewFeeCommand(opts))
	cmd.AddCommand(NewRiskCommand(opts))

	return cmd
}

// amountPrinter groups token amounts by thousands.
var amountPrinter = message.NewPrinter(language.English)

func formatAmount(v int64) string {
	return amountPrinter.Sprintf("%d", v)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requirePositive(name string, v int64) error {
	if v <= 0 {
		return fmt.Errorf("--%s must be positive, got %d", name, v)
	}
	return nil
}
