// Package dispatcher contains tests for worker coordination.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
	"github.com/JakeFAU/crawl-admission/internal/queue/memory"
	"github.com/JakeFAU/crawl-admission/internal/worker"
)

// TestDispatcherRunStartsWorkers ensures workers begin processing and stop on cancel.
func TestDispatcherRunStartsWorkers(t *testing.T) {
	t.Parallel()

	queue := &blockingQueue{started: make(chan struct{}, 1)}
	w := worker.New(queue, nil, worker.Config{}, zap.NewNop())
	dispatch := New(queue, []*worker.Worker{w})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		dispatch.Run(ctx)
		close(done)
	}()

	select {
	case <-queue.started:
	case <-time.After(time.Second):
		t.Fatal("worker did not begin dequeuing")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	dispatch := New(&errorQueue{err: errors.New("boom")}, nil)

	err := dispatch.Enqueue(context.Background(), crawler.Discovery{URL: "http://example.org/"})
	require.EqualError(t, err, "queue enqueue: boom")
}

func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const limit = 3
	admitter := &gatedAdmitter{release: make(chan struct{})}
	q := memory.NewQueue(32)
	dispatch := NewPool(q, admitter, limit, nil, zap.NewNop())
	require.Equal(t, limit, dispatch.Size())

	for i := 0; i < 12; i++ {
		require.NoError(t, dispatch.Enqueue(context.Background(), crawler.Discovery{URL: fmt.Sprintf("http://example.org/%d", i)}))
	}
	q.Close()

	done := make(chan struct{})
	go func() {
		dispatch.Run(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return admitter.active.Load() == limit }, time.Second, 5*time.Millisecond)
	close(admitter.release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not finish draining")
	}
	require.LessOrEqual(t, admitter.peak.Load(), int32(limit))
	require.Equal(t, worker.Counters{Added: 12}, dispatch.Counters())
}

func TestNewPoolDefaultsToOneWorker(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1, NewPool(memory.NewQueue(1), nil, 0, nil, nil).Size())
}

type gatedAdmitter struct {
	active  atomic.Int32
	peak    atomic.Int32
	release chan struct{}
}

func (g *gatedAdmitter) TryAdmit(_ context.Context, raw string, _ *crawler.QueueItem) crawler.Outcome {
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-g.release
	g.active.Add(-1)
	return crawler.Added(crawler.QueueItem{ID: raw}, crawler.CandidateURL{Raw: raw})
}

type blockingQueue struct {
	started chan struct{}
}

func (q *blockingQueue) Enqueue(context.Context, crawler.Discovery) error {
	return nil
}

func (q *blockingQueue) Dequeue(ctx context.Context) (crawler.Discovery, error) {
	select {
	case q.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return crawler.Discovery{}, fmt.Errorf("blocking dequeue canceled: %w", ctx.Err())
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, crawler.Discovery) error {
	return q.err
}

func (q *errorQueue) Dequeue(context.Context) (crawler.Discovery, error) {
	return crawler.Discovery{}, q.err
}
