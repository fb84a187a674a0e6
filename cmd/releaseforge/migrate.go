package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Strob0t/ReleaseForge/internal/adapter/postgres"
)

func newMigrateCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
	}
	cmd.PersistentFlags().String("dsn", "", "PostgreSQL connection string")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dsn, err := migrationDSN(cmd, g)
				if err != nil {
					return err
				}
				if err := postgres.RunMigrations(cmd.Context(), dsn); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back the last N migrations (default 1)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("steps must be a positive integer, got %q", args[0])
					}
					steps = n
				}
				dsn, err := migrationDSN(cmd, g)
				if err != nil {
					return err
				}
				if err := postgres.RollbackMigrations(cmd.Context(), dsn, steps); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dsn, err := migrationDSN(cmd, g)
				if err != nil {
					return err
				}
				v, err := postgres.MigrationVersion(cmd.Context(), dsn)
				if err != nil {
					return fmt.Errorf("migrate version: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
	)
	return cmd
}

func migrationDSN(cmd *cobra.Command, g *globalFlags) (string, error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return "", err
	}
	return cfg.Postgres.DSN, nil
}
