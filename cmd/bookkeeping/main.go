package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bookkeeping/internal/account"
	accountdomain "github.com/smallbiznis/bookkeeping/internal/account/domain"
	"github.com/smallbiznis/bookkeeping/internal/actorcontext"
	"github.com/smallbiznis/bookkeeping/internal/audit"
	"github.com/smallbiznis/bookkeeping/internal/clock"
	"github.com/smallbiznis/bookkeeping/internal/config"
	"github.com/smallbiznis/bookkeeping/internal/migration"
	"github.com/smallbiznis/bookkeeping/internal/observability"
	"github.com/smallbiznis/bookkeeping/internal/seed"
	"github.com/smallbiznis/bookkeeping/internal/server"
	"github.com/smallbiznis/bookkeeping/pkg/db"
	"github.com/smallbiznis/bookkeeping/pkg/tenantctx"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bookkeeping",
		Short: "Multi-tenant double-entry ledger and tax engine",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newServeCommand(), newMigrateCommand(), newSeedCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				// Core infrastructure
				config.Module,
				observability.Module,
				fx.Provide(RegisterSnowflake),
				db.Module,
				clock.Module,
				migration.Module,

				// Domains and the HTTP edge
				server.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}

func newMigrateCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				config.Module,
				observability.Module,
				db.Module,
				migration.Module,
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}
			return app.Stop(ctx)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "time allowed for connecting and migrating")
	return cmd
}

func newSeedCommand() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the default chart of accounts for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := snowflake.ParseString(tenant)
			if err != nil || tenantID == 0 {
				return fmt.Errorf("invalid --tenant %q", tenant)
			}

			var (
				accounts accountdomain.Service
				log      *zap.Logger
			)
			app := fx.New(
				config.Module,
				observability.Module,
				fx.Provide(RegisterSnowflake),
				db.Module,
				clock.Module,
				migration.Module,
				audit.Module,
				account.Module,
				fx.Populate(&accounts, &log),
				fx.NopLogger,
			)
			if err := app.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = app.Stop(context.Background()) }()

			ctx := tenantctx.WithTenantID(cmd.Context(), tenantID)
			ctx = actorcontext.WithActorID(ctx, "seed")
			created, err := seed.EnsureDefaultAccounts(ctx, accounts, log.Named("seed"))
			if err != nil {
				return err
			}
			log.Info("default chart of accounts ready",
				zap.String("tenant_id", tenantID.String()),
				zap.Int("created", created),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant id to seed")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
