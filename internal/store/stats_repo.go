// Package store declares interfaces for persisting admission statistics.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("host stats not found")

// HostDelta is the per-batch increment applied to one host's counters.
type HostDelta struct {
	Added     int64
	Duplicate int64
	Denied    int64
	Errored   int64
	Fetched   int64
}

// IsZero reports whether the delta changes nothing.
func (d HostDelta) IsZero() bool {
	return d == HostDelta{}
}

// HostStats aggregates admission outcomes for a single host.
type HostStats struct {
	// Host is the lowercased host label (e.g., www.abs.gov.au).
	Host string
	// LastUpdate captures the timestamp of the most recent aggregate.
	LastUpdate time.Time
	Added      int64
	Duplicate  int64
	Denied     int64
	Errored    int64
	Fetched    int64
}

// StatsRepository persists incremental admission counters.
type StatsRepository interface {
	// UpsertHostStats applies delta to host, creating the row on first use.
	UpsertHostStats(ctx context.Context, host string, delta HostDelta, at time.Time) error
	// GetHost loads one host or returns ErrNotFound.
	GetHost(ctx context.Context, host string) (HostStats, error)
	// ListHosts returns hosts ordered by most recent update.
	ListHosts(ctx context.Context, limit, offset int) ([]HostStats, error)
}
