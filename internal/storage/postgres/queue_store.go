package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
)

const uniqueViolation = "23505"

// QueueStoreConfig tunes the queue table.
type QueueStoreConfig struct {
	Table           string
	RefetchCooldown time.Duration
}

// QueueStore implements crawler.EligibilityStore on a queue_items table whose
// url column is UNIQUE. The uniqueness constraint settles races between
// concurrent admitters, in this process or others.
type QueueStore struct {
	pool     pgxPool
	table    string
	cooldown time.Duration
	clock    crawler.Clock
	ids      crawler.IDGenerator
}

// NewQueueStore wraps an open pool.
func NewQueueStore(pool pgxPool, cfg QueueStoreConfig, clock crawler.Clock, ids crawler.IDGenerator) (*QueueStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if clock == nil || ids == nil {
		return nil, fmt.Errorf("clock and id generator are required")
	}
	table, err := checkTable(cfg.Table, "queue_items")
	if err != nil {
		return nil, err
	}
	return &QueueStore{
		pool:     pool,
		table:    table,
		cooldown: cfg.RefetchCooldown,
		clock:    clock,
		ids:      ids,
	}, nil
}

// EnsureSchema creates the queue table when missing.
func (s *QueueStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL UNIQUE,
	protocol        TEXT NOT NULL,
	host            TEXT NOT NULL,
	port            INTEGER NOT NULL,
	path            TEXT NOT NULL,
	depth           INTEGER NOT NULL DEFAULT 0,
	referrer        TEXT NOT NULL DEFAULT '',
	first_queued_at TIMESTAMPTZ NOT NULL,
	last_queued_at  TIMESTAMPTZ NOT NULL,
	last_fetched_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS %[1]s_host_idx ON %[1]s (host)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *QueueStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *QueueStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// IsEligibleForFetch reports false only while a fetch of the URL is younger
// than the refetch cooldown.
func (s *QueueStore) IsEligibleForFetch(ctx context.Context, canonicalURL string) (bool, error) {
	query := fmt.Sprintf(`
SELECT NOT EXISTS (
	SELECT 1 FROM %s
	WHERE url = $1 AND last_fetched_at IS NOT NULL AND last_fetched_at > $2
)`, s.table)
	var eligible bool
	if err := s.pool.QueryRow(ctx, query, canonicalURL, s.cutoff()).Scan(&eligible); err != nil {
		return false, fmt.Errorf("check eligibility: %w", err)
	}
	return eligible, nil
}

// Insert creates the queue item, or re-queues an existing row whose last fetch
// has aged past the cooldown and which is not already waiting. Any other
// existing row is a conflict.
func (s *QueueStore) Insert(ctx context.Context, req crawler.InsertRequest) (crawler.QueueItem, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return crawler.QueueItem{}, fmt.Errorf("insert queue item: %w", err)
	}
	now := s.clock.Now()
	query := fmt.Sprintf(`
INSERT INTO %s AS q (
	id, url, protocol, host, port, path, depth, referrer, first_queued_at, last_queued_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$9
)
ON CONFLICT (url) DO UPDATE
SET last_queued_at = EXCLUDED.last_queued_at,
	depth = EXCLUDED.depth,
	referrer = EXCLUDED.referrer
WHERE q.last_fetched_at IS NOT NULL
	AND q.last_fetched_at <= $10
	AND q.last_queued_at <= q.last_fetched_at
RETURNING id, protocol, host, port, path, depth, referrer, first_queued_at, last_queued_at, last_fetched_at`, s.table)

	args := []any{
		id,
		req.URL(),
		req.Protocol,
		req.Host,
		req.Port,
		req.Path,
		req.Depth,
		req.Referrer,
		now,
		s.cutoff(),
	}
	item, err := scanItem(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isConflict(err) {
			return crawler.QueueItem{}, fmt.Errorf("insert %s: %w", req.URL(), crawler.ErrConflict)
		}
		return crawler.QueueItem{}, fmt.Errorf("insert queue item: %w", err)
	}
	return item, nil
}

// MarkFetched records a completed fetch of canonicalURL at the given time.
func (s *QueueStore) MarkFetched(ctx context.Context, canonicalURL string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET last_fetched_at = $2 WHERE url = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, canonicalURL, at.UTC())
	if err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark fetched %s: %w", canonicalURL, crawler.ErrNotQueued)
	}
	return nil
}

// Get loads the queue item for canonicalURL.
func (s *QueueStore) Get(ctx context.Context, canonicalURL string) (crawler.QueueItem, error) {
	query := fmt.Sprintf(`
SELECT id, protocol, host, port, path, depth, referrer, first_queued_at, last_queued_at, last_fetched_at
FROM %s WHERE url = $1`, s.table)
	item, err := scanItem(s.pool.QueryRow(ctx, query, canonicalURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.QueueItem{}, fmt.Errorf("get %s: %w", canonicalURL, crawler.ErrNotQueued)
		}
		return crawler.QueueItem{}, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

func (s *QueueStore) cutoff() time.Time {
	return s.clock.Now().Add(-s.cooldown)
}

func scanItem(row pgx.Row) (crawler.QueueItem, error) {
	var item crawler.QueueItem
	err := row.Scan(
		&item.ID,
		&item.Protocol,
		&item.Host,
		&item.Port,
		&item.Path,
		&item.Depth,
		&item.Referrer,
		&item.FirstQueuedAt,
		&item.LastQueuedAt,
		&item.LastFetchedAt,
	)
	return item, err
}

// isConflict treats an empty RETURNING (the ON CONFLICT guard refused) and a
// unique violation the same way.
func isConflict(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
