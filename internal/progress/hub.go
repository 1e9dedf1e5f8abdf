package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub. Zero values select the
// defaults below. MaxBatchWait bounds how long the oldest pending event waits
// before sinks see it.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	// BaseContext parents every sink call.
	BaseContext context.Context
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// HubStats counts hub activity since start.
type HubStats struct {
	Emitted      int64
	Dropped      int64
	Batches      int64
	SinkFailures int64
}

// Hub fans admission outcomes out to sinks in batches. Emit never blocks the
// admission path: a full buffer drops the event and counts it.
type Hub struct {
	cfg      Config
	sinks    []Sink
	events   chan Event
	flushReq chan chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *zap.Logger

	emitted      atomic.Int64
	dropped      atomic.Int64
	batches      atomic.Int64
	sinkFailures atomic.Int64
	unreported   atomic.Int64
	lastDropLog  atomic.Int64
	closed       atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the delivery goroutine and returns a ready Hub.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	h := &Hub{
		cfg:      cfg,
		sinks:    live,
		events:   make(chan Event, cfg.BufferSize),
		flushReq: make(chan chan struct{}),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
	go h.loop()
	return h
}

// Emit queues evt for the next batch. Invalid events are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid admission event", zap.Error(err), zap.String("stage", string(evt.Stage)))
		return
	}
	select {
	case h.events <- evt:
		h.emitted.Add(1)
	default:
		h.noteDrop(evt.Stage)
	}
}

// noteDrop counts a backpressure drop and logs at most once per interval.
func (h *Hub) noteDrop(stage Stage) {
	h.dropped.Add(1)
	h.unreported.Add(1)
	now := time.Now().UnixNano()
	last := h.lastDropLog.Load()
	if now-last < int64(dropLogInterval) || !h.lastDropLog.CompareAndSwap(last, now) {
		return
	}
	h.logger.Warn("admission events dropped due to backpressure",
		zap.Int64("dropped", h.unreported.Swap(0)),
		zap.String("last_stage", string(stage)),
	)
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() HubStats {
	if h == nil {
		return HubStats{}
	}
	return HubStats{
		Emitted:      h.emitted.Load(),
		Dropped:      h.dropped.Load(),
		Batches:      h.batches.Load(),
		SinkFailures: h.sinkFailures.Load(),
	}
}

// Flush delivers every event accepted so far and waits until sinks have
// consumed them.
func (h *Hub) Flush(ctx context.Context) error {
	if h == nil || h.closed.Load() {
		return nil
	}
	ack := make(chan struct{})
	select {
	case h.flushReq <- ack:
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub flush: %w", ctx.Err())
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub flush: %w", ctx.Err())
	}
}

// Close stops intake, delivers what is buffered, closes the sinks and waits
// for the delivery goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

// loop owns the pending batch. The deadline is armed by the first pending
// event and disarmed whenever the batch is delivered.
func (h *Hub) loop() {
	defer close(h.doneCh)
	pending := make([]Event, 0, h.cfg.MaxBatchEvents)
	deadline := time.NewTimer(h.cfg.MaxBatchWait)
	deadline.Stop()
	for {
		select {
		case evt := <-h.events:
			if len(pending) == 0 {
				deadline.Reset(h.cfg.MaxBatchWait)
			}
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents {
				pending = h.deliver(pending)
				deadline.Stop()
			}
		case <-deadline.C:
			pending = h.deliver(pending)
		case ack := <-h.flushReq:
			pending = h.deliver(h.drain(pending))
			deadline.Stop()
			close(ack)
		case <-h.stopCh:
			deadline.Stop()
			h.deliver(h.drain(pending))
			h.closeSinks()
			return
		}
	}
}

// drain moves buffered events into pending without blocking, delivering
// full batches along the way.
func (h *Hub) drain(pending []Event) []Event {
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents {
				pending = h.deliver(pending)
			}
		default:
			return pending
		}
	}
}

// deliver hands batch to every sink and returns it emptied for reuse.
func (h *Hub) deliver(batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	h.batches.Add(1)
	out := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, out); err != nil {
			h.sinkFailures.Add(1)
			h.logger.Warn("progress sink consume failed",
				zap.Error(err),
				zap.String("sink", fmt.Sprintf("%T", sink)),
				zap.Int("batch", len(out)),
			)
		}
		cancel()
	}
	return batch[:0]
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
