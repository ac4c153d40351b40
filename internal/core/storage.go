package core

import (
	"context"
	"fmt"

	"brewcore/internal/blob"
	"brewcore/internal/infra/persistence/memory"
	"brewcore/internal/infra/persistence/postgres"
	"brewcore/internal/infra/persistence/sqlite"
)

// OpenPersistentStore opens the record store selected by cfg. Stores backed
// by a database also implement io.Closer.
func OpenPersistentStore(cfg StorageConfig, rules *RulesEngine) (PersistentStore, error) {
	switch cfg.Driver {
	case "", StorageMemory:
		return memory.NewStore(rules), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, rules)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(cfg.PostgresDSN, rules)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// OpenBlob opens the blob store sheets are exported to.
func OpenBlob(ctx context.Context, cfg blob.Config) (blob.Store, error) {
	store, err := blob.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return store, nil
}
