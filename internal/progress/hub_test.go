package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StageAdmitDuplicate)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageAdmitDuplicate))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWithoutConsumers asserts Emit never blocks callers, even without sinks.
func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageAdmitDuplicate))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestHubFlushOnClose ensures Close drains any buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	evt := sampleEvent(StageAdmitDuplicate)
	hub.Emit(evt)

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBatch := append([]Event(nil), batch...)
	s.batches = append(s.batches, copyBatch)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func sampleEvent(stage Stage) Event {
	evt := Event{
		TS:    time.Now(),
		Stage: stage,
		Host:  "example.com",
		URL:   "http://example.com/",
	}
	switch stage {
	case StageAdmitAdded:
		evt.Item = &crawler.QueueItem{ID: "item-1", Protocol: "http", Host: "example.com", Port: 80, Path: "/"}
	case StageAdmitDenied:
		evt.Reason = crawler.ReasonDomainInvalid
	case StageAdmitError:
		evt.Reason = crawler.ReasonStoreUnavailable
	}
	return evt
}

// TestHubDropsInvalidEvents keeps malformed events away from sinks.
func TestHubDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1}, sink)

	bad := sampleEvent(StageAdmitDenied)
	bad.Reason = ""
	hub.Emit(bad)
	hub.Emit(sampleEvent(StageAdmitDenied))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	stats := hub.Stats()
	require.Equal(t, int64(1), stats.Emitted)
	require.Equal(t, int64(0), stats.Dropped)
	require.Equal(t, int64(1), stats.Batches)
}

// TestHubCountsBackpressureDrops reports events rejected by a full buffer.
func TestHubCountsBackpressureDrops(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	hub.Emit(sampleEvent(StageAdmitAdded))
	hub.Emit(sampleEvent(StageAdmitAdded))
	stats := hub.Stats()
	require.Equal(t, int64(0), stats.Emitted)
	require.Equal(t, int64(2), stats.Dropped)
}

// TestHubFlushDeliversPending forces a small batch out before its deadline.
func TestHubFlushDeliversPending(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 100, MaxBatchWait: time.Hour}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageAdmitAdded))
	hub.Emit(sampleEvent(StageAdmitDuplicate))
	require.NoError(t, hub.Flush(context.Background()))

	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
}

// TestHubFlushAfterCloseIsNoop keeps late callers from blocking.
func TestHubFlushAfterCloseIsNoop(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{BufferSize: 1})
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Flush(context.Background()))
	hub.Emit(sampleEvent(StageAdmitAdded))
	require.Equal(t, int64(0), hub.Stats().Emitted)
}

type failingSink struct{ stubSink }

func (f *failingSink) Consume(ctx context.Context, batch []Event) error {
	_ = f.stubSink.Consume(ctx, batch)
	return errors.New("sink offline")
}

// TestHubCountsSinkFailures keeps delivering to healthy sinks when one fails.
func TestHubCountsSinkFailures(t *testing.T) {
	t.Parallel()

	bad := &failingSink{}
	good := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1}, bad, nil, good)

	hub.Emit(sampleEvent(StageAdmitDuplicate))
	require.NoError(t, hub.Close(context.Background()))

	require.Len(t, good.Batches(), 1)
	require.Equal(t, int64(1), hub.Stats().SinkFailures)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, sampleEvent(StageAdmitAdded).Validate())
	require.NoError(t, sampleEvent(StageFetchRecorded).Validate())

	noItem := sampleEvent(StageAdmitAdded)
	noItem.Item = nil
	require.ErrorContains(t, noItem.Validate(), "requires item")

	noTS := sampleEvent(StageAdmitDuplicate)
	noTS.TS = time.Time{}
	require.ErrorContains(t, noTS.Validate(), "timestamp")

	unknown := sampleEvent("BOGUS")
	require.ErrorContains(t, unknown.Validate(), "unknown stage")

	negative := sampleEvent(StageAdmitDuplicate)
	negative.Dur = -time.Second
	require.ErrorContains(t, negative.Validate(), "duration")
}

func TestFromOutcome(t *testing.T) {
	t.Parallel()

	c, err := crawler.Canonicalize("HTTP://Example.com:80/a?b=2&a=1#frag", nil)
	require.NoError(t, err)
	item := crawler.QueueItem{ID: "x", Protocol: c.Protocol, Host: c.Host, Port: c.Port, Path: c.Path}

	evt := FromOutcome(crawler.Added(item, c), time.Unix(10, 0), 5*time.Millisecond)
	require.Equal(t, StageAdmitAdded, evt.Stage)
	require.Equal(t, "http://example.com/a?a=1&b=2", evt.URL)
	require.Equal(t, "example.com", evt.Host)
	require.Equal(t, "x", evt.Item.ID)
	require.Equal(t, 5*time.Millisecond, evt.Dur)
	require.NoError(t, evt.Validate())

	bad := crawler.Failed(crawler.CandidateURL{Raw: "::nope"}, crawler.ReasonMalformedURL, crawler.ErrMalformedURL)
	evt = FromOutcome(bad, time.Unix(10, 0), 0)
	require.Equal(t, StageAdmitError, evt.Stage)
	require.Equal(t, "::nope", evt.URL)
	require.Equal(t, "malformed url", evt.Note)
	require.NoError(t, evt.Validate())
}
