package migrate

import (
	"context"
	"fmt"

	"github.com/batjin/foodrush-storefront/pkg/config"
	"github.com/batjin/foodrush-storefront/pkg/db"
	"github.com/batjin/foodrush-storefront/pkg/logger"
)

// MaybeRun migrates the local store on startup when enabled. The local
// sqlite file lives on end-user devices, so unlike a server deployment the
// daemon normally owns its own schema upgrades.
func MaybeRun(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.LocalDB.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"path": cfg.LocalDB.Path, "dir": DefaultDir})
	logg.Info(ctx, "running local store migrations")

	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "local store migrations completed")
	return nil
}
