package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/BrendaWanda/ControlCalidad/internal/quality"
	"github.com/BrendaWanda/ControlCalidad/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// newService builds the quality service over st with the configured window.
func newService(st store.Store, opts ...quality.Option) *quality.Service {
	opts = append([]quality.Option{quality.WithSubmitWindow(cfg.SPC.SubmitWindow)}, opts...)
	return quality.New(st, opts...)
}
