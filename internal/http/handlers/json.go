package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dropDatabas3/portero/internal/cache"
)

// Helpers para payloads JSON en cache (codes, verificaciones).

func cacheSetJSON(ctx context.Context, c cache.Client, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(b), ttl)
}

func cacheGetJSON(ctx context.Context, c cache.Client, key string, v any) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}
