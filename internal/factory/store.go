package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mycelian/mycelian-todo/internal/config"
	"github.com/mycelian/mycelian-todo/internal/store"
	"github.com/mycelian/mycelian-todo/internal/store/memory"
	"github.com/mycelian/mycelian-todo/internal/store/postgres"
	"github.com/mycelian/mycelian-todo/internal/store/sqlite"
)

// NewStore returns the store.Store selected by cfg.DBDriver. The schema is created
// synchronously since the scheduler's recovery scan needs it immediately.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	bootstrapCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.BootstrapTimeoutSeconds)*time.Second)
	defer cancel()

	switch cfg.DBDriver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory store; nothing survives a restart")
		return memory.New(), nil

	case config.DriverSQLite:
		st, err := sqlite.New(bootstrapCtx, cfg.SQLitePath, store.DefaultRetryPolicy)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return st, nil

	case config.DriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("TODO_SERVICE_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		st, err := postgres.New(bootstrapCtx, cfg.PostgresDSN, store.DefaultRetryPolicy)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("postgres store ready")
		return st, nil

	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
