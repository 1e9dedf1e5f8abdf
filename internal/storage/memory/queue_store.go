// Package memory holds in-process store implementations for development,
// single-node runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/crawl-admission/internal/crawler"
)

// QueueStore implements crawler.EligibilityStore on a mutex-guarded map. It
// follows the same conflict and cooldown rules as the Postgres store.
type QueueStore struct {
	mu       sync.RWMutex
	items    map[string]crawler.QueueItem
	cooldown time.Duration
	clock    crawler.Clock
	ids      crawler.IDGenerator
}

// NewQueueStore constructs an empty QueueStore.
func NewQueueStore(cooldown time.Duration, clock crawler.Clock, ids crawler.IDGenerator) *QueueStore {
	return &QueueStore{
		items:    make(map[string]crawler.QueueItem),
		cooldown: cooldown,
		clock:    clock,
		ids:      ids,
	}
}

// IsEligibleForFetch reports false only while the last fetch is younger than
// the cooldown.
func (s *QueueStore) IsEligibleForFetch(_ context.Context, canonicalURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[canonicalURL]
	if !ok || item.LastFetchedAt == nil {
		return true, nil
	}
	return !item.LastFetchedAt.After(s.cutoff()), nil
}

// Insert creates or re-queues the item. Existing items conflict unless their
// last fetch is past the cooldown and they have not been re-queued since.
func (s *QueueStore) Insert(_ context.Context, req crawler.InsertRequest) (crawler.QueueItem, error) {
	key := req.URL()
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if existing, ok := s.items[key]; ok {
		fetched := existing.LastFetchedAt
		if fetched == nil || fetched.After(s.cutoff()) || existing.LastQueuedAt.After(*fetched) {
			return crawler.QueueItem{}, fmt.Errorf("insert %s: %w", key, crawler.ErrConflict)
		}
		existing.LastQueuedAt = now
		existing.Depth = req.Depth
		existing.Referrer = req.Referrer
		s.items[key] = existing
		return copyItem(existing), nil
	}
	id, err := s.ids.NewID()
	if err != nil {
		return crawler.QueueItem{}, fmt.Errorf("insert queue item: %w", err)
	}
	item := crawler.QueueItem{
		ID:            id,
		Protocol:      req.Protocol,
		Host:          req.Host,
		Port:          req.Port,
		Path:          req.Path,
		Depth:         req.Depth,
		Referrer:      req.Referrer,
		FirstQueuedAt: now,
		LastQueuedAt:  now,
	}
	s.items[key] = item
	return copyItem(item), nil
}

// MarkFetched stamps the item's last fetch time.
func (s *QueueStore) MarkFetched(_ context.Context, canonicalURL string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[canonicalURL]
	if !ok {
		return fmt.Errorf("mark fetched %s: %w", canonicalURL, crawler.ErrNotQueued)
	}
	at = at.UTC()
	item.LastFetchedAt = &at
	s.items[canonicalURL] = item
	return nil
}

// Get returns a copy of the item for canonicalURL.
func (s *QueueStore) Get(_ context.Context, canonicalURL string) (crawler.QueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[canonicalURL]
	if !ok {
		return crawler.QueueItem{}, fmt.Errorf("get %s: %w", canonicalURL, crawler.ErrNotQueued)
	}
	return copyItem(item), nil
}

// Len returns the number of stored items.
func (s *QueueStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Ping always succeeds.
func (s *QueueStore) Ping(context.Context) error { return nil }

// Close implements crawler.EligibilityStore; it performs no action.
func (s *QueueStore) Close() {}

func (s *QueueStore) cutoff() time.Time {
	return s.clock.Now().Add(-s.cooldown)
}

func copyItem(item crawler.QueueItem) crawler.QueueItem {
	if item.LastFetchedAt != nil {
		at := *item.LastFetchedAt
		item.LastFetchedAt = &at
	}
	return item
}
