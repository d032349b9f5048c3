package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hiroki-koketsu/tasktree/internal/config"
	"github.com/hiroki-koketsu/tasktree/internal/repository"
	"github.com/hiroki-koketsu/tasktree/internal/telemetry"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tasktree",
		Short:         "Multi-tenant task hierarchy service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP API server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the PostgreSQL schema and register seeded tenants and projects",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd.Context())
			},
		},
	)
	return root
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return fmt.Errorf("migrate requires the %s store driver", config.DriverPostgres)
	}

	logger := telemetry.NewLocalLogger(os.Stdout, cfg.LogLevel)

	pool, err := repository.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := seed(ctx, store, cfg.Seed); err != nil {
		return err
	}

	logger.Info("schema ready", slog.Int("seeded_tenants", len(cfg.Seed)))
	return nil
}

// registry is implemented by both stores.
type registry interface {
	AddTenant(ctx context.Context, tenantID string) error
	AddProject(ctx context.Context, tenantID, projectID string) error
}

func seed(ctx context.Context, r registry, tenants []config.TenantSeed) error {
	for _, t := range tenants {
		if err := r.AddTenant(ctx, t.ID); err != nil {
			return fmt.Errorf("seed tenant %s: %w", t.ID, err)
		}
		for _, p := range t.Projects {
			if err := r.AddProject(ctx, t.ID, p); err != nil {
				return fmt.Errorf("seed project %s: %w", p, err)
			}
		}
	}
	return nil
}
