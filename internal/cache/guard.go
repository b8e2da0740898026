package cache

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// CacheVersion is bumped whenever the persisted settings shape or the remote
// schema changes in a way that makes cached state unusable.
const CacheVersion = "3"

// Guard invalidates locally persisted state after a cache-format change.
type Guard struct {
	store *Store
}

func NewGuard(store *Store) *Guard {
	return &Guard{store: store}
}

// Ensure compares the persisted version marker against CacheVersion. On
// mismatch it clears the named cache keys, writes the new marker, and
// returns true so the caller forces a full remote reload. A matching marker
// is a no-op, so repeated checks are safe.
func (g *Guard) Ensure(ctx context.Context) (bool, error) {
	stored, err := g.store.client.Get(ctx, keyVersion).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("read cache version: %w", err)
	}
	if stored == CacheVersion {
		return false, nil
	}

	log.Printf("cache: version %q != %q, invalidating local state", stored, CacheVersion)
	if err := g.store.client.Del(ctx, keySettings, keyRole, keyView).Err(); err != nil {
		return false, fmt.Errorf("clear cache keys: %w", err)
	}
	if err := g.store.client.Set(ctx, keyVersion, CacheVersion, 0).Err(); err != nil {
		return false, fmt.Errorf("write cache version: %w", err)
	}
	return true, nil
}
