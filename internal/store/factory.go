package store

import (
	"context"
	"fmt"

	"refledger.app/bot/core/db"
)

const (
	BackendBolt     = "bolt"
	BackendJSON     = "json"
	BackendPostgres = "postgres"
)

type Config struct {
	Backend string
	// Path is the bbolt file for the bolt backend and the directory holding
	// data.json/report.json for the json backend.
	Path string
	DB   db.Config
}

// Open builds the configured ledger store.
func Open(ctx context.Context, cfg Config) (LedgerStore, error) {
	switch cfg.Backend {
	case BackendBolt, "":
		return NewBoltStore(cfg.Path)
	case BackendJSON:
		return NewJSONFileStore(cfg.Path)
	case BackendPostgres:
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		s, err := NewPostgresStore(ctx, database)
		if err != nil {
			database.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
