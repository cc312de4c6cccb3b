package redisearch

import (
	"context"
	"fmt"
	"time"

	"github.com/n-kats/lazy-rag/internal/db"
	dbredis "github.com/n-kats/lazy-rag/internal/db/redis"
)

const defaultReadinessTimeout = 10 * time.Second

// StoreConfig holds connection parameters for OpenStore.
type StoreConfig struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// OpenStore connects to Redis and waits for it to become ready. The
// returned store can be shared by any number of redisearch servers.
func OpenStore(ctx context.Context, cfg StoreConfig) (db.Store, error) {
	store, err := dbredis.NewStore(dbredis.Config{
		Addrs:    cfg.Addrs,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redisearch: create store: %w", err)
	}
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("redisearch: store not ready: %w", err)
	}
	return store, nil
}
