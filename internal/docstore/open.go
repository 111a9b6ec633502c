package docstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/config"
	"github.com/spec-kit/handover-bot/internal/persistence"
)

// Dependencies carries already-opened connections a backend may reuse.
type Dependencies struct {
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Logger   *zap.Logger
}

// Open builds the backend selected by cfg.Backend. The returned close func
// releases resources owned by the backend itself (not those in deps).
func Open(ctx context.Context, cfg config.StoreConfig, deps Dependencies) (Backend, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendFile, "":
		deps.Logger.Info("document store: file", zap.String("dir", cfg.DataDir))
		return NewFile(cfg.DataDir), noop, nil
	case config.BackendMemory:
		deps.Logger.Warn("document store: memory; state is lost on restart")
		return NewMemory(), noop, nil
	case config.BackendPostgres:
		if !deps.Postgres.Enabled() {
			return nil, noop, fmt.Errorf("postgres backend selected but no pool is open")
		}
		deps.Logger.Info("document store: postgres")
		return NewPostgres(deps.Postgres.PoolHandle()), noop, nil
	case config.BackendRedis:
		if !deps.Redis.Enabled() {
			return nil, noop, fmt.Errorf("redis backend selected but no client is configured")
		}
		deps.Logger.Info("document store: redis", zap.String("prefix", cfg.RedisKeyPrefix))
		return NewRedis(deps.Redis.Client, cfg.RedisKeyPrefix, cfg.MaxCASRetries), noop, nil
	case config.BackendSQLite:
		db, err := persistence.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		if err := persistence.RunSQLiteMigrations(ctx, db, deps.Logger); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		deps.Logger.Info("document store: sqlite", zap.String("path", cfg.SQLitePath))
		return NewSQLite(db), func() { _ = db.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
