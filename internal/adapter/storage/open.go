package storage

import (
	"context"
	"fmt"

	"github.com/rl1809/armory-atlas/internal/config"
	"github.com/rl1809/armory-atlas/internal/port"
)

// Store is one backend serving writes, reads and schema management.
type Store interface {
	port.TxManager
	port.QueryRepository
	port.SchemaManager
}

// Open connects the backend selected by cfg.Storage. The returned close
// function releases its connections.
func Open(ctx context.Context, cfg config.Config) (Store, func() error, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return NewMemoryStore(), func() error { return nil }, nil
	case config.StorageMySQL:
		db, err := OpenMySQL(ctx, cfg.DSN())
		if err != nil {
			return nil, nil, err
		}
		return NewMySQLAdapter(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}
