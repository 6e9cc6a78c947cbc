package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/bullseye/internal/config"
	"github.com/utafrali/bullseye/migrations"
	"github.com/utafrali/bullseye/pkg/database"
)

// Migrate applies pending schema migrations, or with dryRun only lists them.
func Migrate(ctx context.Context, cfg *config.Config, logger *slog.Logger, dryRun bool) ([]string, error) {
	if cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("migrations require DB_DRIVER=postgres, got %q", cfg.DBDriver)
	}
	pool, err := openPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	pending, err := database.PendingMigrations(ctx, pool, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("list pending migrations: %w", err)
	}
	if dryRun || len(pending) == 0 {
		return pending, nil
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return pending, nil
}
