package cli

import (
	"ParaLedger/internal/observability"
	"ParaLedger/internal/persistence"
	"context"
	"database/sql"
	"fmt"
	"text/tabwriter"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// MigrateOptions holds flags for the migrate commands.
type MigrateOptions struct {
	*RootOptions
	DSN string
	Dir string
}

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", envOrDefault("PARA_POSTGRES_DSN", "postgres://localhost:5432/paraledger?sslmode=disable"), "Postgres connection string")
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", envOrDefault("PARA_MIGRATIONS_DIR", "migrations"), "migrations directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, opts, func(ctx context.Context, m *persistence.Migrator) error {
				n, err := m.Up(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, opts, func(ctx context.Context, m *persistence.Migrator) error {
				rolledBack, err := m.Down(ctx)
				if err != nil {
					return err
				}
				if !rolledBack {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back the last migration")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, opts, func(ctx context.Context, m *persistence.Migrator) error {
				status, err := m.Status(ctx)
				if err != nil {
					return err
				}
				return printMigrationStatus(cmd, status)
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, opts *MigrateOptions, fn func(context.Context, *persistence.Migrator) error) error {
	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	level := zerolog.WarnLevel
	if opts.Verbose {
		level = zerolog.InfoLevel
	}
	logger := observability.NewLoggerTo(cmd.ErrOrStderr(), "paractl", level)
	return fn(cmd.Context(), persistence.NewMigrator(db, opts.Dir, logger))
}

func printMigrationStatus(cmd *cobra.Command, status []persistence.MigrationStatus) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED\tFILE")
	for _, s := range status {
		applied := "no"
		if s.Applied {
			applied = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Version, applied, s.Filename)
	}
	return w.Flush()
}
