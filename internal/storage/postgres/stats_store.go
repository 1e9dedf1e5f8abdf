package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/crawl-admission/internal/store"
)

// StatsStore implements store.StatsRepository using Postgres.
type StatsStore struct {
	pool  pgxPool
	table string
}

// NewStatsStore wraps an open pool. The pool is shared with the queue store
// and is not closed here.
func NewStatsStore(pool pgxPool, table string) (*StatsStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := checkTable(table, "host_stats")
	if err != nil {
		return nil, err
	}
	return &StatsStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the stats table when missing.
func (s *StatsStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	host        TEXT PRIMARY KEY,
	last_update TIMESTAMPTZ NOT NULL,
	added       BIGINT NOT NULL DEFAULT 0,
	duplicate   BIGINT NOT NULL DEFAULT 0,
	denied      BIGINT NOT NULL DEFAULT 0,
	errored     BIGINT NOT NULL DEFAULT 0,
	fetched     BIGINT NOT NULL DEFAULT 0
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// UpsertHostStats adds delta to the host's counters.
func (s *StatsStore) UpsertHostStats(ctx context.Context, host string, delta store.HostDelta, at time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s AS h (host, last_update, added, duplicate, denied, errored, fetched)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (host) DO UPDATE
SET last_update = GREATEST(h.last_update, EXCLUDED.last_update),
	added = h.added + EXCLUDED.added,
	duplicate = h.duplicate + EXCLUDED.duplicate,
	denied = h.denied + EXCLUDED.denied,
	errored = h.errored + EXCLUDED.errored,
	fetched = h.fetched + EXCLUDED.fetched`, s.table)
	_, err := s.pool.Exec(
		ctx,
		query,
		host,
		at.UTC(),
		delta.Added,
		delta.Duplicate,
		delta.Denied,
		delta.Errored,
		delta.Fetched,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert host stats: %w", err)
	}
	return nil
}

// GetHost retrieves the counters for one host.
func (s *StatsStore) GetHost(ctx context.Context, host string) (store.HostStats, error) {
	query := fmt.Sprintf(`
SELECT host, last_update, added, duplicate, denied, errored, fetched
FROM %s
WHERE host = $1`, s.table)
	var stat store.HostStats
	err := s.pool.QueryRow(ctx, query, host).Scan(
		&stat.Host,
		&stat.LastUpdate,
		&stat.Added,
		&stat.Duplicate,
		&stat.Denied,
		&stat.Errored,
		&stat.Fetched,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.HostStats{}, store.ErrNotFound
		}
		return store.HostStats{}, fmt.Errorf("failed to get host stats: %w", err)
	}
	return stat, nil
}

// ListHosts returns hosts ordered by most recent update.
func (s *StatsStore) ListHosts(ctx context.Context, limit, offset int) ([]store.HostStats, error) {
	query := fmt.Sprintf(`
SELECT host, last_update, added, duplicate, denied, errored, fetched
FROM %s
ORDER BY last_update DESC, host
LIMIT $1 OFFSET $2`, s.table)
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list host stats: %w", err)
	}
	defer rows.Close()

	var stats []store.HostStats
	for rows.Next() {
		var stat store.HostStats
		if err := rows.Scan(
			&stat.Host,
			&stat.LastUpdate,
			&stat.Added,
			&stat.Duplicate,
			&stat.Denied,
			&stat.Errored,
			&stat.Fetched,
		); err != nil {
			return nil, fmt.Errorf("failed to scan host stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate host stats: %w", err)
	}
	return stats, nil
}
