// Package redis implements the eligibility store on Redis. Keys are derived
// from a SHA-256 of the canonical URL:
//
//	<prefix>pending:<hash>  set while an item is queued and not yet fetched
//	<prefix>fetched:<hash>  set on fetch, expires after the refetch cooldown
//	<prefix>item:<hash>     hash holding the queue item fields
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
	"github.com/JakeFAU/crawl-admission/internal/hash/sha256"
)

const defaultKeyPrefix = "admission:"

// Config describes the Redis connection and key layout.
type Config struct {
	Addr            string
	Password        string
	DB              int
	KeyPrefix       string
	RefetchCooldown time.Duration
}

// NewClient opens a client for cfg.
func NewClient(cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// insertScript claims the pending marker and writes the item atomically. It
// returns 0 when the URL is already queued or was fetched inside the cooldown.
var insertScript = goredis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 0 then
	return 0
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	redis.call('DEL', KEYS[1])
	return 0
end
if redis.call('HSETNX', KEYS[3], 'id', ARGV[1]) == 1 then
	redis.call('HSET', KEYS[3], 'first_queued_at', ARGV[9])
end
redis.call('HSET', KEYS[3],
	'url', ARGV[2], 'protocol', ARGV[3], 'host', ARGV[4], 'port', ARGV[5],
	'path', ARGV[6], 'depth', ARGV[7], 'referrer', ARGV[8], 'last_queued_at', ARGV[9])
return 1
`)

// QueueStore implements crawler.EligibilityStore.
type QueueStore struct {
	client   goredis.UniversalClient
	prefix   string
	cooldown time.Duration
	clock    crawler.Clock
	ids      crawler.IDGenerator
	hasher   *sha256.Hasher
}

// NewQueueStore wraps an existing client.
func NewQueueStore(client goredis.UniversalClient, cfg Config, clock crawler.Clock, ids crawler.IDGenerator) (*QueueStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if clock == nil || ids == nil {
		return nil, errors.New("clock and id generator are required")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &QueueStore{
		client:   client,
		prefix:   prefix,
		cooldown: cfg.RefetchCooldown,
		clock:    clock,
		ids:      ids,
		hasher:   sha256.New(),
	}, nil
}

func (s *QueueStore) keys(canonicalURL string) (pending, fetched, item string) {
	h := s.hasher.Sum(canonicalURL)
	return s.prefix + "pending:" + h, s.prefix + "fetched:" + h, s.prefix + "item:" + h
}

// Ping checks connectivity.
func (s *QueueStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *QueueStore) Close() {
	if s == nil || s.client == nil {
		return
	}
	_ = s.client.Close()
}

// IsEligibleForFetch reports false while the fetched marker is alive.
func (s *QueueStore) IsEligibleForFetch(ctx context.Context, canonicalURL string) (bool, error) {
	_, fetched, _ := s.keys(canonicalURL)
	n, err := s.client.Exists(ctx, fetched).Result()
	if err != nil {
		return false, fmt.Errorf("check eligibility: %w", err)
	}
	return n == 0, nil
}

// Insert claims the pending marker and stores the item.
func (s *QueueStore) Insert(ctx context.Context, req crawler.InsertRequest) (crawler.QueueItem, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return crawler.QueueItem{}, fmt.Errorf("insert queue item: %w", err)
	}
	canonical := req.URL()
	pending, fetched, item := s.keys(canonical)
	now := s.clock.Now().UTC().Format(time.RFC3339Nano)
	ok, err := insertScript.Run(ctx, s.client,
		[]string{pending, fetched, item},
		id, canonical, req.Protocol, req.Host, req.Port, req.Path, req.Depth, req.Referrer, now,
	).Int()
	if err != nil {
		return crawler.QueueItem{}, fmt.Errorf("insert queue item: %w", err)
	}
	if ok == 0 {
		return crawler.QueueItem{}, fmt.Errorf("insert %s: %w", canonical, crawler.ErrConflict)
	}
	return s.Get(ctx, canonical)
}

// MarkFetched records the fetch, clears the pending marker and starts the
// cooldown. The marker TTL counts from at, so late reports get shorter TTLs.
func (s *QueueStore) MarkFetched(ctx context.Context, canonicalURL string, at time.Time) error {
	pending, fetched, item := s.keys(canonicalURL)
	n, err := s.client.Exists(ctx, item).Result()
	if err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark fetched %s: %w", canonicalURL, crawler.ErrNotQueued)
	}
	ttl := s.cooldown - s.clock.Now().Sub(at)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, item, "last_fetched_at", at.UTC().Format(time.RFC3339Nano))
		pipe.Del(ctx, pending)
		if ttl > 0 {
			pipe.Set(ctx, fetched, "1", ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}
	return nil
}

// Get loads the queue item for canonicalURL.
func (s *QueueStore) Get(ctx context.Context, canonicalURL string) (crawler.QueueItem, error) {
	_, _, item := s.keys(canonicalURL)
	fields, err := s.client.HGetAll(ctx, item).Result()
	if err != nil {
		return crawler.QueueItem{}, fmt.Errorf("get queue item: %w", err)
	}
	if len(fields) == 0 {
		return crawler.QueueItem{}, fmt.Errorf("get %s: %w", canonicalURL, crawler.ErrNotQueued)
	}
	return decodeItem(fields)
}

func decodeItem(fields map[string]string) (crawler.QueueItem, error) {
	item := crawler.QueueItem{
		ID:       fields["id"],
		Protocol: fields["protocol"],
		Host:     fields["host"],
		Path:     fields["path"],
		Referrer: fields["referrer"],
	}
	var err error
	if item.Port, err = strconv.Atoi(fields["port"]); err != nil {
		return crawler.QueueItem{}, fmt.Errorf("decode port: %w", err)
	}
	if item.Depth, err = strconv.Atoi(fields["depth"]); err != nil {
		return crawler.QueueItem{}, fmt.Errorf("decode depth: %w", err)
	}
	if item.FirstQueuedAt, err = time.Parse(time.RFC3339Nano, fields["first_queued_at"]); err != nil {
		return crawler.QueueItem{}, fmt.Errorf("decode first_queued_at: %w", err)
	}
	if item.LastQueuedAt, err = time.Parse(time.RFC3339Nano, fields["last_queued_at"]); err != nil {
		return crawler.QueueItem{}, fmt.Errorf("decode last_queued_at: %w", err)
	}
	if raw := fields["last_fetched_at"]; raw != "" {
		at, perr := time.Parse(time.RFC3339Nano, raw)
		if perr != nil {
			return crawler.QueueItem{}, fmt.Errorf("decode last_fetched_at: %w", perr)
		}
		item.LastFetchedAt = &at
	}
	return item, nil
}
