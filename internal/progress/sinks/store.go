package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-admission/internal/progress"
	"github.com/JakeFAU/crawl-admission/internal/store"
)

// StoreSink persists per-host counters via a store.StatsRepository. It
// collapses each batch into one delta per host to reduce write amplification.
type StoreSink struct {
	repo   store.StatsRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.StatsRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume collapses host deltas and forwards them to the repository. It
// respects ctx deadlines and returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[string]*hostDelta)
	for _, evt := range batch {
		if evt.Host == "" {
			continue
		}
		d := deltas[evt.Host]
		if d == nil {
			d = &hostDelta{}
			deltas[evt.Host] = d
		}
		switch evt.Stage {
		case progress.StageAdmitAdded:
			d.delta.Added++
		case progress.StageAdmitDuplicate:
			d.delta.Duplicate++
		case progress.StageAdmitDenied:
			d.delta.Denied++
		case progress.StageAdmitError:
			d.delta.Errored++
		case progress.StageFetchRecorded:
			d.delta.Fetched++
		}
		if evt.TS.After(d.at) {
			d.at = evt.TS
		}
	}

	for host, d := range deltas {
		if d.delta.IsZero() {
			continue
		}
		if err := s.repo.UpsertHostStats(ctx, host, d.delta, d.at); err != nil {
			return fmt.Errorf("upsert host stats: %w", err)
		}
	}
	s.logger.Debug("host stats flushed", zap.Int("hosts", len(deltas)), zap.Int("events", len(batch)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type hostDelta struct {
	delta store.HostDelta
	at    time.Time
}
