// Package storage persists the goal watchlist. Three backends satisfy
// domain.WatchlistRepository: a flat JSON file, SQLite and Redis.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"nepse_watch/internal/domain"
	"nepse_watch/internal/infra"
)

// Repository is a watchlist backend that may hold resources.
type Repository interface {
	domain.WatchlistRepository
	io.Closer
}

// New opens the backend selected by cfg.Storage.Driver.
func New(cfg *infra.Config) (Repository, error) {
	switch cfg.Storage.Driver {
	case infra.StorageJSON:
		return nopCloser{NewJSONFileStore(cfg.Storage.Path)}, nil

	case infra.StorageSQLite:
		return NewSQLiteStore(cfg.Storage.SQLite.Path)

	case infra.StorageRedis:
		r := cfg.Storage.Redis
		rdb := NewRedisClient(r.Addr, r.Password, r.DB)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis %s: %w", r.Addr, err)
		}
		return NewRedisStore(rdb, r.KeyPrefix), nil

	default:
		return nil, &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unknown driver %q", cfg.Storage.Driver)}
	}
}

type nopCloser struct {
	*JSONFileStore
}

func (nopCloser) Close() error { return nil }
