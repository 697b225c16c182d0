package main

import (
	"fmt"

	"github.com/npezzotti/synapse/internal/database"
	"github.com/spf13/cobra"
)

var flagMigrateDSN string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the postgres schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}

		if flagMigrateDSN == "" {
			return fmt.Errorf("--dsn is required")
		}

		version, err := database.Migrate(flagMigrateDSN)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		logger.Info().Uint("version", version).Msg("schema up to date")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&flagMigrateDSN, "dsn", envOr("SYNAPSE_DSN", ""), "postgres connection string")
	rootCmd.AddCommand(migrateCmd)
}
