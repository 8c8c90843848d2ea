package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue. It is not durable and only suits
// single-process deployments and tests.
type MemoryQueue struct {
	mu      sync.Mutex
	items   map[string][][]byte
	waiters map[string]chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		items:   make(map[string][][]byte),
		waiters: make(map[string]chan struct{}),
	}
}

func (q *MemoryQueue) Push(ctx context.Context, name string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := append([]byte(nil), payload...)

	q.mu.Lock()
	q.items[name] = append(q.items[name], cp)
	if ch, ok := q.waiters[name]; ok {
		close(ch)
		delete(q.waiters, name)
	}
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Pop(ctx context.Context, name string, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if items := q.items[name]; len(items) > 0 {
			payload := items[0]
			q.items[name] = items[1:]
			q.mu.Unlock()
			return payload, nil
		}
		ch, ok := q.waiters[name]
		if !ok {
			ch = make(chan struct{})
			q.waiters[name] = ch
		}
		q.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return nil, ErrEmpty
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports how many payloads wait in the named queue.
func (q *MemoryQueue) Len(_ context.Context, name string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items[name])), nil
}
