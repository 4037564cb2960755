package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/leadnexus/subiq/internal/store"
)

// openStore builds the configured store backend. Callers own Close.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	case "sqlite":
		path := cfg.Store.DatabaseURL
		if path == "" {
			path = "subiq.db"
		}
		return store.NewSQLite(ctx, path)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
