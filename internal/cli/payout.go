package cli

import (
	fpmath "ParaLedger/internal/math"
	"fmt"

	"github.com/spf13/cobra"
)

// PayoutOptions holds flags for payout calc. Risk parameters and yields are
// decimal strings, as on the HTTP API.
type PayoutOptions struct {
	*RootOptions
	Trigger    string
	Exit       string
	TSI        string
	APH        string
	AAAY       string
	SumInsured int64
}

func NewPayoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PayoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "payout",
		Short: "Payout calculations",
	}

	calc := &cobra.Command{
		Use:   "calc",
		Short: "Compute the payout of a policy for an observed yield",
		Long: `Compute the payout percentage for a risk and an observed area yield
(aaay), and the payout amount for a sum insured.

Examples:
  paractl payout calc --trigger 0.75 --exit 0.1 --tsi 0.9 --aph 10 --aaay 5 --sum-insured 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPayoutCalc(cmd, opts)
		},
	}
	calc.Flags().StringVar(&opts.Trigger, "trigger", "", "trigger fraction of the historical yield")
	calc.Flags().StringVar(&opts.Exit, "exit", "", "exit fraction of the historical yield")
	calc.Flags().StringVar(&opts.TSI, "tsi", "", "tiered sum insured, the payout fraction at or below exit")
	calc.Flags().StringVar(&opts.APH, "aph", "", "actual production history (historical yield)")
	calc.Flags().StringVar(&opts.AAAY, "aaay", "", "observed area yield")
	calc.Flags().Int64Var(&opts.SumInsured, "sum-insured", 0, "sum insured of the policy")
	for _, name := range []string{"trigger", "exit", "tsi", "aph", "aaay"} {
		_ = calc.MarkFlagRequired(name)
	}

	cmd.AddCommand(calc)
	return cmd
}

func runPayoutCalc(cmd *cobra.Command, opts *PayoutOptions) error {
	values := make(map[string]int64, 5)
	for name, s := range map[string]string{
		"trigger": opts.Trigger,
		"exit":    opts.Exit,
		"tsi":     opts.TSI,
		"aph":     opts.APH,
		"aaay":    opts.AAAY,
	} {
		v, err := fpmath.ParseScaled(s, fpmath.PercentageConfig)
		if err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
		values[name] = v
	}
	if values["trigger"] <= values["exit"] {
		return fmt.Errorf("--trigger must be above --exit")
	}
	if opts.SumInsured < 0 {
		return fmt.Errorf("--sum-insured must not be negative")
	}

	pct := fpmath.ComputePayoutPercentage(values["tsi"], values["trigger"], values["exit"], values["aph"], values["aaay"])
	amount := fpmath.ComputePayoutAmount(pct, opts.SumInsured)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "payout percentage: %s\n", fpmath.FormatScaled(pct, fpmath.PercentageConfig))
	fmt.Fprintf(out, "payout amount:     %s\n", formatAmount(amount))
	return nil
}
