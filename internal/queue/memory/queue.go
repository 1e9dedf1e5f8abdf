// Package memory provides the in-process discovery queue feeding admission workers.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
)

// Queue is a bounded in-memory queue of discovered links with context-aware operations.
type Queue struct {
	ch      chan crawler.Discovery
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan crawler.Discovery, capacity),
	}
}

// Enqueue pushes a discovery into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item crawler.Discovery) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return fmt.Errorf("enqueue %s: %w", item.URL, crawler.ErrQueueClosed)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next discovery, respecting context cancellation. Items
// enqueued before Close are still delivered.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Discovery, error) {
	select {
	case <-ctx.Done():
		return crawler.Discovery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return crawler.Discovery{}, crawler.ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports the number of buffered discoveries.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops new enqueues and lets consumers drain what is buffered.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
