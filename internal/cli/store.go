package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/lazypower/memkeeper/internal/config"
	"github.com/lazypower/memkeeper/internal/store"
	"github.com/lazypower/memkeeper/internal/store/pgstore"
)

// sqlitePath resolves the configured SQLite file, defaulting to
// ~/.memkeeper/memkeeper.db.
func sqlitePath(cfg config.Config) (string, error) {
	if cfg.Database.Path != "" {
		return cfg.Database.Path, nil
	}
	p, err := store.DefaultDBPath()
	if err != nil {
		return "", fmt.Errorf("resolve db path: %w", err)
	}
	return p, nil
}

// uploadDir resolves the local image directory, defaulting to an uploads
// directory next to the SQLite file.
func uploadDir(cfg config.Config) (string, error) {
	if cfg.Images.Local.Dir != "" {
		return cfg.Images.Local.Dir, nil
	}
	p, err := store.DefaultDBPath()
	if err != nil {
		return "", fmt.Errorf("resolve upload dir: %w", err)
	}
	return filepath.Join(filepath.Dir(p), "uploads"), nil
}

// openStore opens the configured database driver.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		st, err := pgstore.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return st, nil
	default:
		path, err := sqlitePath(cfg)
		if err != nil {
			return nil, err
		}
		db, err := store.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		return db, nil
	}
}
