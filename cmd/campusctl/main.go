package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/campusshare/analytics-api/internal/models"
	"github.com/campusshare/analytics-api/internal/repository"
	"github.com/campusshare/analytics-api/internal/service"
	"github.com/campusshare/analytics-api/pkg/config"
	"github.com/campusshare/analytics-api/pkg/database"
	appErrors "github.com/campusshare/analytics-api/pkg/errors"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "campusctl",
		Short:         "Operator tooling for the campus analytics API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSeedCommand())
	return cmd
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(migrateAction("up", "Apply all pending migrations", database.Migrate))
	cmd.AddCommand(migrateAction("down", "Roll back the latest migration", database.Rollback))
	cmd.AddCommand(migrateAction("status", "Print migration status", database.Status))
	return cmd
}

func migrateAction(use, short string, action func(context.Context, *sql.DB) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck
			return action(ctx, db.DB)
		},
	}
}

func newSeedCommand() *cobra.Command {
	var (
		name       string
		email      string
		password   string
		department string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the initial admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			users := service.NewUserService(repository.NewUserRepository(db), nil, zap.NewNop())
			created, err := users.Create(ctx, models.CreateUserRequest{
				Name:       name,
				Email:      email,
				Role:       string(models.RoleAdmin),
				Department: department,
				Password:   password,
			}, "")
			if err != nil {
				if errors.Is(err, appErrors.ErrConflict) {
					fmt.Fprintf(cmd.OutOrStdout(), "admin %s already exists\n", email)
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", created.Email, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "Campus Admin", "Display name")
	cmd.Flags().StringVar(&email, "email", "admin@test.com", "Login email")
	cmd.Flags().StringVar(&password, "password", "", "Initial password (at least 8 characters)")
	cmd.Flags().StringVar(&department, "department", "IT", "Department")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func connect(ctx context.Context) (*sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}
