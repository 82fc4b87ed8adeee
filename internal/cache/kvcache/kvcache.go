// Package kvcache implements the BytesCache port on the durable store, so
// the enrichment cache keeps working with no redis around (the common case
// in the field). Expiry is checked on read; a stale value corrupts nothing,
// it is just treated as a miss and overwritten.
package kvcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/BearBump/FieldSync/internal/cache"
	"github.com/BearBump/FieldSync/internal/storage/kvstore"
)

type KVCache struct {
	store *kvstore.Store
	now   func() time.Time
}

var _ cache.BytesCache = (*KVCache)(nil)

type envelope struct {
	ExpiresAt time.Time       `json:"expiresAt"`
	Data      json.RawMessage `json:"data"`
}

func New(store *kvstore.Store) *KVCache {
	return &KVCache{store: store, now: time.Now}
}

func (c *KVCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		// Битая запись: сбрасываем ключ и считаем промахом.
		slog.Warn("kvcache: corrupt entry, resetting", "key", key, "error", err.Error())
		_ = c.store.Remove(ctx, key)
		return nil, false, nil
	}
	if !env.ExpiresAt.IsZero() && c.now().UTC().After(env.ExpiresAt) {
		return nil, false, nil
	}
	return env.Data, true, nil
}

func (c *KVCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	env := envelope{Data: value}
	if ttl > 0 {
		env.ExpiresAt = c.now().UTC().Add(ttl)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal cache envelope")
	}
	return c.store.Set(ctx, key, b)
}

func (c *KVCache) Delete(ctx context.Context, key string) error {
	return c.store.Remove(ctx, key)
}
