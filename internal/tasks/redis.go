package tasks

import (
	"context"
	"encoding/json"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// redisQueue: lista Redis con LPUSH/BRPOP. Varios workers pueden consumir
// la misma key; BRPOP reparte de a una task por worker.
type redisQueue struct {
	client *rdb.Client
	key    string
}

func NewRedisQueue(client *rdb.Client, key string) Queue {
	if key == "" {
		key = "portero:tasks"
	}
	return &redisQueue{client: client, key: key}
}

func (q *redisQueue) Enqueue(ctx context.Context, t Task) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, string(b)).Err()
}

func (q *redisQueue) Dequeue(ctx context.Context) (Task, error) {
	for {
		// Timeout corto para poder observar ctx.Done() entre pops.
		res, err := q.client.BRPop(ctx, 2*time.Second, q.key).Result()
		if err == rdb.Nil {
			select {
			case <-ctx.Done():
				return Task{}, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			return Task{}, err
		}
		// res = [key, value]
		var t Task
		if uerr := json.Unmarshal([]byte(res[1]), &t); uerr != nil {
			// Task corrupta: descartarla y seguir.
			continue
		}
		return t, nil
	}
}

func (q *redisQueue) Close() error { return nil }
