package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/supportdesk/backend/internal/db"
	"github.com/supportdesk/backend/internal/models"
	"github.com/supportdesk/backend/internal/service"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage staff accounts",
}

var newUser service.NewUser

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a staff account directly in the database",
	Long:  "Creates an account without an admin session. Use it to bootstrap the first admin.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
		store, err := db.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		svc := service.New(store, service.Options{}, logger)
		u, err := svc.Directory.Provision(cmd.Context(), newUser)
		if err != nil {
			return err
		}
		logger.Info().Int64("id", u.ID).Str("username", u.Username).Str("role", string(u.Role)).Msg("user created")
		return nil
	},
}

func init() {
	f := userCreateCmd.Flags()
	f.StringVar(&newUser.Username, "username", "", "login name")
	f.StringVar(&newUser.Password, "password", "", "initial password")
	f.StringVar(&newUser.FullName, "full-name", "", "display name")
	f.StringVar(&newUser.Department, "department", "", "department")
	f.StringVar((*string)(&newUser.Role), "role", string(models.RoleOperator), "admin, operator or okk")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userCreateCmd)
}
