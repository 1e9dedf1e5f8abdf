// Package dispatcher manages worker fan-out over the discovery queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
	"github.com/JakeFAU/crawl-admission/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers. The pool size is the
// number of admission attempts allowed in flight at once.
type Dispatcher struct {
	queue   crawler.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// NewPool builds concurrency workers sharing one admitter. Values below one
// yield a single worker.
func NewPool(
	queue crawler.Queue,
	admitter crawler.Admitter,
	concurrency int,
	onOutcome worker.OutcomeHandler,
	logger *zap.Logger,
) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	workers := make([]*worker.Worker, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		workers = append(workers, worker.New(queue, admitter, worker.Config{ID: i, OnOutcome: onOutcome}, logger))
	}
	return New(queue, workers)
}

// Run starts all workers and blocks until every worker has returned, which
// happens when the context finishes or the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.Discovery) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Counters sums outcome tallies across workers.
func (d *Dispatcher) Counters() worker.Counters {
	var total worker.Counters
	for _, w := range d.workers {
		c := w.Counters()
		total.Added += c.Added
		total.Duplicate += c.Duplicate
		total.Denied += c.Denied
		total.Errored += c.Errored
	}
	return total
}

// Size reports the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}
