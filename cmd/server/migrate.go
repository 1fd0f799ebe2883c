package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/and161185/songbook/internal/migrate"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dsn, err := migrationDSN()
				if err != nil {
					return err
				}
				return migrate.Up(cmd.Context(), dsn)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print applied migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				dsn, err := migrationDSN()
				if err != nil {
					return err
				}
				return migrate.Status(cmd.Context(), dsn)
			},
		},
	)
	return cmd
}

func migrationDSN() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.Database.DSN == "" {
		return "", errors.New("database.dsn is required")
	}
	return cfg.Database.DSN, nil
}
