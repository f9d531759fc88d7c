package cli

import (
	"ParaLedger/internal/risk"
	"fmt"

	"github.com/spf13/cobra"
)

type RiskOptions struct {
	*RootOptions
	Project string
	UAI     string
	Crop    string
}

func NewRiskCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RiskOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Risk utilities",
	}

	id := &cobra.Command{
		Use:   "id",
		Short: "Print the risk id for a project, area and crop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), risk.ID(opts.Project, opts.UAI, opts.Crop))
			return nil
		},
	}
	id.Flags().StringVar(&opts.Project, "project", "", "project id")
	id.Flags().StringVar(&opts.UAI, "uai", "", "unit area of insurance id")
	id.Flags().StringVar(&opts.Crop, "crop", "", "crop id")
	for _, name := range []string{"project", "uai", "crop"} {
		_ = id.MarkFlagRequired(name)
	}

	cmd.AddCommand(id)
	return cmd
}
