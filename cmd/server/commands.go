package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AksharDP/modhub/internal/models"
	user "github.com/AksharDP/modhub/internal/models/user"
	"github.com/AksharDP/modhub/pkg/utils"
	"github.com/spf13/cobra"
)

var (
	envFile    string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "modhub",
	Short:         "Mod hosting server",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and background jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.serve(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		a.Log.Info(cmd.Context()).WithFields("driver", a.Cfg.DBDriver).Logs("Database migrated")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the default roles, permissions and site settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := models.SeedRoles(ctx, a.DB); err != nil {
			return err
		}
		if _, err := models.GetSettings(ctx, a.DB, nil); err != nil {
			return err
		}
		a.Log.Info(ctx).Logs("Seed data in place")
		return nil
	},
}

var adminInput struct {
	Username string `validate:"required,min=3,max=50,username"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8,max=72"`
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an active administrator account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if verr := utils.NewValidator().Validate(&adminInput); verr != nil {
			return verr
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := models.SeedRoles(ctx, a.DB); err != nil {
			return err
		}
		hash, err := utils.HashPassword(adminInput.Password)
		if err != nil {
			return err
		}
		u, err := models.NewUser(ctx, a.DB, adminInput.Username, adminInput.Email, hash, user.RoleAdmin, user.WithIsActive(true))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Username, u.ID)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")

	createAdminCmd.Flags().StringVar(&adminInput.Username, "username", "", "admin username")
	createAdminCmd.Flags().StringVar(&adminInput.Email, "email", "", "admin email")
	createAdminCmd.Flags().StringVar(&adminInput.Password, "password", "", "admin password")

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, createAdminCmd)
}
