package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deusflow/newswire/internal/config"
)

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*Store, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Backend {
	case config.BackendCSV, "":
		backend = NewCSVBackend(cfg.Path, cfg.BackupDir, logger)
	case config.BackendSQLite:
		backend, err = OpenSQLite(ctx, cfg.Path)
	case config.BackendPostgres:
		backend, err = OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(backend, cfg.Lock(), cfg.LockTimeout, logger), nil
}
