package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(8)
	defer q.Close()
	ctx := context.Background()

	task, err := NewTask("audit.publish", map[string]any{"event_type": "login"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got.Type != "audit.publish" || got.ID != task.ID {
		t.Fatalf("task inesperada: %+v", got)
	}
	var payload map[string]any
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["event_type"] != "login" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemoryQueue(1)
	q.Close()
	if err := q.Enqueue(context.Background(), Task{}); err != ErrClosed {
		t.Fatalf("esperaba ErrClosed, got %v", err)
	}
}

func TestRedisQueueRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	q := NewRedisQueue(client, "test:tasks")
	ctx := context.Background()

	task, _ := NewTask("deletion.run", map[string]string{"user_id": "u1"})
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got.ID != task.ID || got.Type != "deletion.run" {
		t.Fatalf("task inesperada: %+v", got)
	}
}

func TestPoolRetriesThenGivesUp(t *testing.T) {
	q := NewMemoryQueue(8)
	p := NewPool(q, 1, RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond})
	p.retryNow = true

	var calls int32
	p.Register("always.fails", func(ctx context.Context, task Task) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("downstream caído")
	})

	task, _ := NewTask("always.fails", nil)
	_ = q.Enqueue(context.Background(), task)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() {
		// Darle tiempo a procesar intento + 2 reintentos y cortar.
		time.Sleep(300 * time.Millisecond)
		cancel()
	}()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	// 1 intento original + 2 reintentos
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestPoolShutdownReenqueuesPendingRetry(t *testing.T) {
	q := NewMemoryQueue(8)
	p := NewPool(q, 1, RetryPolicy{MaxRetries: 2, Backoff: time.Hour})

	failed := make(chan struct{})
	var calls int32
	p.Register("flaky", func(ctx context.Context, task Task) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(failed)
		}
		return errors.New("downstream caído")
	})

	task, _ := NewTask("flaky", nil)
	_ = q.Enqueue(context.Background(), task)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-failed:
		case <-time.After(2 * time.Second):
		}
		cancel()
	}()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	// El reintento estaba en backoff (1h); el apagado no lo pierde, lo
	// devuelve a la cola para el próximo proceso.
	dctx, dcancel := context.WithTimeout(context.Background(), time.Second)
	defer dcancel()
	got, err := q.Dequeue(dctx)
	if err != nil {
		t.Fatalf("el reintento no volvió a la cola: %v", err)
	}
	if got.ID != task.ID || got.Attempt != 1 {
		t.Fatalf("task = %+v", got)
	}
}

func TestPoolSuccessNoRetry(t *testing.T) {
	q := NewMemoryQueue(8)
	p := NewPool(q, 2, RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond})
	p.retryNow = true

	var calls int32
	done := make(chan struct{})
	p.Register("ok", func(ctx context.Context, task Task) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(done)
		}
		return nil
	})

	task, _ := NewTask("ok", nil)
	_ = q.Enqueue(context.Background(), task)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}
