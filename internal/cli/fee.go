package cli

import (
	"ParaLedger/internal/config"
	fpmath "ParaLedger/internal/math"
	"ParaLedger/internal/token"
	"ParaLedger/internal/treasury"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// FeeOptions holds flags for fee quote.
type FeeOptions struct {
	*RootOptions
	ProductFile string
	Component   string
	Amount      int64
}

func NewFeeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fee",
		Short: "Fee calculations",
	}

	quote := &cobra.Command{
		Use:   "quote",
		Short: "Split an amount into fee and net with the product file's fees",
		Long: `Split a gross premium or capital amount into fee and net, using the fee
specification the product file configures for a component.

Examples:
  paractl fee quote --product configs/product.yaml --component ayii-maize --amount 1000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeeQuote(cmd, opts)
		},
	}
	quote.Flags().StringVar(&opts.ProductFile, "product", envOrDefault("PARA_PRODUCT_FILE", "configs/product.yaml"), "product file")
	quote.Flags().StringVar(&opts.Component, "component", "", "product or riskpool id")
	quote.Flags().Int64Var(&opts.Amount, "amount", 0, "gross amount")
	_ = quote.MarkFlagRequired("component")

	cmd.AddCommand(quote)
	return cmd
}

func runFeeQuote(cmd *cobra.Command, opts *FeeOptions) error {
	if err := requirePositive("amount", opts.Amount); err != nil {
		return err
	}
	product, err := config.Load(opts.ProductFile)
	if err != nil {
		return err
	}
	tr, err := feeTreasury(product)
	if err != nil {
		return err
	}

	fee, net, err := tr.QuoteFee(opts.Component, opts.Amount)
	if err != nil {
		return err
	}
	spec, _ := tr.FeeSpecification(opts.Component)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "component: %s (fixed %s, fraction %s)\n",
		opts.Component, formatAmount(spec.FixedFee), fpmath.FormatScaled(spec.FractionalFee, fpmath.FeeFractionConfig))
	fmt.Fprintf(out, "gross:     %s\n", formatAmount(opts.Amount))
	fmt.Fprintf(out, "fee:       %s\n", formatAmount(fee))
	fmt.Fprintf(out, "net:       %s\n", formatAmount(net))
	return nil
}

// feeTreasury builds a treasury holding only the product file's fee
// specifications. No value moves through it.
func feeTreasury(p *config.Product) (*treasury.Treasury, error) {
	op := p.Treasury.Operator
	tr := treasury.New(token.NewMemory(op), op)
	if err := tr.RegisterComponent(p.Product.ID, treasury.ComponentProduct); err != nil {
		return nil, err
	}
	if err := tr.RegisterComponent(p.Riskpool.ID, treasury.ComponentRiskpool); err != nil {
		return nil, err
	}
	for id, fee := range p.Treasury.Fees {
		frac, err := fpmath.FromDecimal(fee.Fraction, fpmath.FeeFractionConfig)
		if err != nil {
			return nil, fmt.Errorf("fee %s: %w", id, err)
		}
		if _, err := tr.SetFeeSpecification(id, fee.Fixed, frac, nil, time.Now().UTC()); err != nil {
			return nil, err
		}
	}
	return tr, nil
}
