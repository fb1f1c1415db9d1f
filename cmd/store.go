package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/carpool-pilot/prospect-cli/internal/model"
	"github.com/carpool-pilot/prospect-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "data/prospect.db"
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "create store dir %s", dir)
			}
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// recordRun appends a finished invocation to the run ledger. Ledger problems
// are logged and swallowed; bookkeeping must not fail a completed run.
func recordRun(ctx context.Context, run *model.Run) {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run ledger unavailable", zap.Error(err))
		return
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		zap.L().Warn("run ledger migrate failed", zap.Error(err))
		return
	}
	if err := st.SaveRun(ctx, run); err != nil {
		zap.L().Warn("run ledger save failed", zap.Error(err))
		return
	}
	zap.L().Info("run recorded", zap.String("run_id", run.ID))
}
