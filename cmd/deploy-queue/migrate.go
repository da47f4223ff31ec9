package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the store's schema migrations directly",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := appStore.Migrate(); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")

		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recently applied migration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := appStore.MigrateDown(); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "one migration rolled back")

		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the currently applied schema version",
	RunE:  runMigrateStatus,
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Alias for status",
	RunE:  runMigrateStatus,
}

var migrateDropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop every table in the database's current schema (destructive)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := appStore.MigrateDrop(); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "schema dropped")

		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd, migrateVersionCmd, migrateDropCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	version, dirty, err := appStore.MigrationVersion()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)

	return nil
}
