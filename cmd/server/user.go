package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/and161185/songbook/internal/limiter"
	"github.com/and161185/songbook/internal/repository/postgres"
	"github.com/and161185/songbook/internal/service"
)

// Accounts are provisioned by operators; there is no public sign-up route.
func createUserCommand() *cobra.Command {
	var username, displayName string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create an account; the password is read from SONGBOOK_NEW_PASSWORD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := strings.TrimSpace(os.Getenv("SONGBOOK_NEW_PASSWORD"))
			if password == "" {
				return errors.New("SONGBOOK_NEW_PASSWORD is empty")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("database.dsn is required")
			}
			log, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := postgres.New(cmd.Context(), cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer db.Close()

			accounts := service.NewAccountService(
				postgres.NewUserRepo(db),
				limiter.NewPG(db.Pool, limiter.DefaultPolicy),
				log,
			)
			u, err := accounts.Register(cmd.Context(), username, displayName, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", u.Username, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "login name")
	cmd.Flags().StringVar(&displayName, "display-name", "", "name shown in the UI")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
