package stream

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherXAdd(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	p := NewRedisPublisher(client, "audit:test", 1000)

	ctx := context.Background()
	err := p.PutEvent(ctx, map[string]any{
		"event_type": "login",
		"user_id":    "u-1",
		"site_id":    "7",
	})
	require.NoError(t, err)

	entries, err := client.XRange(ctx, "audit:test", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "login", entries[0].Values["event_type"])
	require.Equal(t, "u-1", entries[0].Values["user_id"])
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	require.NoError(t, p.PutEvent(context.Background(), map[string]any{"k": "v"}))
}
