// Package worker implements the admission loop draining the discovery queue.
package worker

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
)

// OutcomeHandler receives every outcome a worker produces.
type OutcomeHandler func(d crawler.Discovery, o crawler.Outcome)

// Config controls Worker behavior.
type Config struct {
	ID        int
	OnOutcome OutcomeHandler
}

// Counters tallies the outcome kinds a worker has seen.
type Counters struct {
	Added     int64
	Duplicate int64
	Denied    int64
	Errored   int64
}

// Worker consumes discoveries and runs each through admission.
type Worker struct {
	queue    crawler.Queue
	admitter crawler.Admitter
	cfg      Config
	logger   *zap.Logger

	added, duplicate, denied, errored atomic.Int64
}

// New constructs a Worker.
func New(queue crawler.Queue, admitter crawler.Admitter, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		admitter: admitter,
		cfg:      cfg,
		logger:   logger.With(zap.Int("worker", cfg.ID)),
	}
}

// Run blocks, consuming discoveries until the context finishes or the queue
// is closed and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, item)
	}
}

// Counters returns a snapshot of this worker's outcome tallies.
func (w *Worker) Counters() Counters {
	return Counters{
		Added:     w.added.Load(),
		Duplicate: w.duplicate.Load(),
		Denied:    w.denied.Load(),
		Errored:   w.errored.Load(),
	}
}

func (w *Worker) process(ctx context.Context, item crawler.Discovery) {
	if w.admitter == nil {
		w.logger.Error("no admitter configured", zap.String("url", item.URL))
		return
	}
	o := w.admitter.TryAdmit(ctx, item.URL, item.Origin)
	switch o.Kind {
	case crawler.OutcomeAdded:
		w.added.Add(1)
		w.logger.Debug("discovery admitted", zap.String("url", item.URL), zap.String("item_id", o.Item.ID))
	case crawler.OutcomeDuplicate:
		w.duplicate.Add(1)
	case crawler.OutcomeDenied:
		w.denied.Add(1)
	case crawler.OutcomeError:
		w.errored.Add(1)
	}
	if w.cfg.OnOutcome != nil {
		w.cfg.OnOutcome(item, o)
	}
}
