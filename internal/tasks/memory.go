package tasks

import (
	"context"
	"sync"
)

// memoryQueue: canal buffered en proceso. Para dev y tests.
type memoryQueue struct {
	ch     chan Task
	mu     sync.Mutex
	closed bool
}

func NewMemoryQueue(size int) Queue {
	if size <= 0 {
		size = 1024
	}
	return &memoryQueue{ch: make(chan Task, size)}
}

func (q *memoryQueue) Enqueue(ctx context.Context, t Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.mu.Unlock()

	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *memoryQueue) Dequeue(ctx context.Context) (Task, error) {
	select {
	case t, ok := <-q.ch:
		if !ok {
			return Task{}, ErrClosed
		}
		return t, nil
	case <-ctx.Done():
		return Task{}, ctx.Err()
	}
}

func (q *memoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}
