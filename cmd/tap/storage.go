package main

import (
	"fmt"

	"mercator-hq/tap/pkg/config"
	"mercator-hq/tap/pkg/report"
	"mercator-hq/tap/pkg/report/storage"
)

// openStorage opens the record store selected by cfg.Storage.Backend.
func openStorage(cfg *config.Config) (report.Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite", "":
		store, err := storage.NewSQLiteStorage(cfg.SQLiteOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storage: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported storage backend: %s (supported: sqlite, memory)", cfg.Storage.Backend)
}
