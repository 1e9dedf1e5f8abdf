package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawl-admission/internal/store"
)

var statsColumns = []string{"host", "last_update", "added", "duplicate", "denied", "errored", "fetched"}

func TestStatsStoreUpsert(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stats, err := NewStatsStore(mock, "")
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO host_stats AS h").
		WithArgs("example.com", at, int64(2), int64(1), int64(0), int64(0), int64(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, stats.UpsertHostStats(context.Background(), "example.com", store.HostDelta{Added: 2, Duplicate: 1, Fetched: 3}, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsStoreGetHost(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stats, err := NewStatsStore(mock, "host_stats")
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("FROM host_stats\\s+WHERE host").
		WithArgs("example.com").
		WillReturnRows(pgxmock.NewRows(statsColumns).AddRow("example.com", at, int64(5), int64(1), int64(2), int64(0), int64(4)))
	mock.ExpectQuery("FROM host_stats\\s+WHERE host").
		WithArgs("unknown.com").
		WillReturnRows(pgxmock.NewRows(statsColumns))

	got, err := stats.GetHost(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, int64(5), got.Added)
	require.Equal(t, int64(4), got.Fetched)

	_, err = stats.GetHost(context.Background(), "unknown.com")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsStoreListHosts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	stats, err := NewStatsStore(mock, "")
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("FROM host_stats\\s+ORDER BY").
		WithArgs(10, 0).
		WillReturnRows(pgxmock.NewRows(statsColumns).
			AddRow("a.com", at, int64(1), int64(0), int64(0), int64(0), int64(0)).
			AddRow("b.com", at.Add(-time.Minute), int64(0), int64(2), int64(0), int64(0), int64(0)))

	list, err := stats.ListHosts(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "a.com", list[0].Host)
	require.Equal(t, int64(2), list[1].Duplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}
