package idempotency

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryGuard keeps guard keys in process memory.
type MemoryGuard struct {
	cache *cache.Cache
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{cache: cache.New(DefaultTTL, time.Hour)}
}

func (g *MemoryGuard) Seen(_ context.Context, key string) (bool, error) {
	_, found := g.cache.Get(key)

	return found, nil
}

func (g *MemoryGuard) MarkSeen(_ context.Context, key string, ttl time.Duration) error {
	g.cache.Set(key, struct{}{}, ttl)

	return nil
}

// Clear forgets every key.
func (g *MemoryGuard) Clear() {
	g.cache.Flush()
}
