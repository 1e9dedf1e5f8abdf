package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-admission/internal/store"
)

func TestStatsStoreAccumulates(t *testing.T) {
	t.Parallel()

	s := NewStatsStore()
	ctx := context.Background()
	t0 := time.Unix(1700000000, 0).UTC()

	require.NoError(t, s.UpsertHostStats(ctx, "a.com", store.HostDelta{Added: 1}, t0))
	require.NoError(t, s.UpsertHostStats(ctx, "a.com", store.HostDelta{Duplicate: 2}, t0.Add(-time.Minute)))
	require.NoError(t, s.UpsertHostStats(ctx, "b.com", store.HostDelta{Denied: 1}, t0.Add(time.Minute)))

	a, err := s.GetHost(ctx, "a.com")
	require.NoError(t, err)
	require.Equal(t, int64(1), a.Added)
	require.Equal(t, int64(2), a.Duplicate)
	require.True(t, a.LastUpdate.Equal(t0))

	_, err = s.GetHost(ctx, "c.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	list, err := s.ListHosts(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "b.com", list[0].Host)

	page, err := s.ListHosts(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "a.com", page[0].Host)

	empty, err := s.ListHosts(ctx, 10, 5)
	require.NoError(t, err)
	require.Empty(t, empty)
}
