package cache

import (
	"context"
	"time"
)

// BytesCache is the TTL byte cache port the enrichment layer stores its
// entries through. Implementations: rediscache (agent co-located with a
// local redis) and kvcache (fully offline, backed by the durable store).
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
