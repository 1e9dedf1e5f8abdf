package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/crawl-admission/internal/store"
)

// StatsStore implements store.StatsRepository in memory.
type StatsStore struct {
	mu    sync.RWMutex
	hosts map[string]store.HostStats
}

// NewStatsStore constructs an empty StatsStore.
func NewStatsStore() *StatsStore {
	return &StatsStore{hosts: make(map[string]store.HostStats)}
}

// UpsertHostStats adds delta to the host's counters.
func (s *StatsStore) UpsertHostStats(_ context.Context, host string, delta store.HostDelta, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat := s.hosts[host]
	stat.Host = host
	stat.Added += delta.Added
	stat.Duplicate += delta.Duplicate
	stat.Denied += delta.Denied
	stat.Errored += delta.Errored
	stat.Fetched += delta.Fetched
	if at.After(stat.LastUpdate) {
		stat.LastUpdate = at.UTC()
	}
	s.hosts[host] = stat
	return nil
}

// GetHost returns one host or store.ErrNotFound.
func (s *StatsStore) GetHost(_ context.Context, host string) (store.HostStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.hosts[host]
	if !ok {
		return store.HostStats{}, store.ErrNotFound
	}
	return stat, nil
}

// ListHosts returns hosts ordered by most recent update, then name.
func (s *StatsStore) ListHosts(_ context.Context, limit, offset int) ([]store.HostStats, error) {
	s.mu.RLock()
	out := make([]store.HostStats, 0, len(s.hosts))
	for _, stat := range s.hosts {
		out = append(out, stat)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdate.Equal(out[j].LastUpdate) {
			return out[i].LastUpdate.After(out[j].LastUpdate)
		}
		return out[i].Host < out[j].Host
	})
	if offset >= len(out) {
		return []store.HostStats{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
