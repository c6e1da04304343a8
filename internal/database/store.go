package database

import (
	"context"
	"fmt"

	"github.com/MrJamesThe3rd/till/internal/config"
	"github.com/MrJamesThe3rd/till/internal/docstore"
	"github.com/MrJamesThe3rd/till/internal/docstore/memstore"
	"github.com/MrJamesThe3rd/till/internal/docstore/mongostore"
	"github.com/MrJamesThe3rd/till/internal/docstore/pgstore"
)

// OpenStore connects the document store selected by STORE_BACKEND. The
// caller owns the returned client and must Close it.
func OpenStore(ctx context.Context, cfg *config.Config) (docstore.Client, error) {
	switch cfg.Store.Backend {
	case config.BackendMongo:
		client, err := NewMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}

		return mongostore.New(client, cfg.Mongo.Database), nil
	case config.BackendPostgres:
		db, err := NewPostgres(ctx, cfg.ConnectionString())
		if err != nil {
			return nil, err
		}

		store := pgstore.New(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}

		return store, nil
	case config.BackendMemory:
		return memstore.New(), nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
