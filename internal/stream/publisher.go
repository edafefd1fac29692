// Package stream publica eventos de auditoría hacia un Redis Stream.
//
// El consumidor (pipeline de auditoría) vive fuera de este servicio;
// acá sólo se hace XADD con MAXLEN aproximado para acotar memoria.
package stream

import (
	"context"

	rdb "github.com/redis/go-redis/v9"
)

// Publisher acepta eventos ya serializados como field-map.
type Publisher interface {
	PutEvent(ctx context.Context, fields map[string]any) error
}

type redisPublisher struct {
	client *rdb.Client
	stream string
	maxLen int64
}

func NewRedisPublisher(client *rdb.Client, streamName string, maxLen int64) Publisher {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &redisPublisher{client: client, stream: streamName, maxLen: maxLen}
}

func (p *redisPublisher) PutEvent(ctx context.Context, fields map[string]any) error {
	return p.client.XAdd(ctx, &rdb.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: fields,
	}).Err()
}

// NopPublisher descarta eventos. Para dev sin Redis.
type NopPublisher struct{}

func (NopPublisher) PutEvent(ctx context.Context, fields map[string]any) error { return nil }
