package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/loomchat/loom/server/internal/config"
	"github.com/loomchat/loom/server/internal/store"
	"github.com/loomchat/loom/server/internal/store/postgres"
	"github.com/loomchat/loom/server/internal/store/sqlite"
)

// NewStore creates a store adapter based on the configured driver:
// postgres for the cloud target, sqlite for local dev.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		log.Info().Msg("postgres store ready")
		return postgres.NewWithDB(db), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
		st, err := sqlite.NewWithDB(db)
		if err != nil {
			return nil, fmt.Errorf("sqlite schema: %w", err)
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}
