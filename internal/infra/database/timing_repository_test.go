package database

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"linear_reminder_bot/internal/domain/tracking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 28, 5, 10, 45, 264000000, time.UTC)

func newSQLiteRepo(t *testing.T) tracking.Repository {
	t.Helper()
	db, err := NewSQLiteConnection(filepath.Join(t.TempDir(), "timing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db, "sqlite"))
	return NewSQLiteTimingRepository(db)
}

func newPostgresRepo(t *testing.T) tracking.Repository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := NewPostgresConnection(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(context.Background(), db, "postgres"))
	_, err = db.Exec(`TRUNCATE tracked_items`)
	require.NoError(t, err)
	return NewPostgresTimingRepository(db)
}

func forEachBackend(t *testing.T, fn func(t *testing.T, repo tracking.Repository)) {
	backends := map[string]func(*testing.T) tracking.Repository{
		"sqlite":   newSQLiteRepo,
		"postgres": newPostgresRepo,
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, open(t))
		})
	}
}

func assertTime(t *testing.T, want time.Time, got sql.NullTime) {
	t.Helper()
	require.True(t, got.Valid, "expected non-null time")
	assert.True(t, want.Equal(got.Time), "want %s, got %s", want, got.Time)
}

func TestUpsertEntered_SetsTimerAndIgnoresOlderEvents(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo tracking.Repository) {
		ctx := context.Background()

		applied, err := repo.UpsertEntered(ctx, "ISS-1", t0)
		require.NoError(t, err)
		assert.True(t, applied)

		item, err := repo.Get(ctx, "ISS-1")
		require.NoError(t, err)
		assertTime(t, t0, item.EnteredWatchAt)
		assert.False(t, item.RemindedAt.Valid)

		// replay with an earlier timestamp
		applied, err = repo.UpsertEntered(ctx, "ISS-1", t0.Add(-time.Minute))
		require.NoError(t, err)
		assert.False(t, applied)

		// exact duplicate
		applied, err = repo.UpsertEntered(ctx, "ISS-1", t0)
		require.NoError(t, err)
		assert.False(t, applied)

		item, err = repo.Get(ctx, "ISS-1")
		require.NoError(t, err)
		assertTime(t, t0, item.EnteredWatchAt)
	})
}

func TestUpsertEntered_NewerEntryResetsReminder(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo tracking.Repository) {
		ctx := context.Background()
		_, err := repo.UpsertEntered(ctx, "ISS-1", t0)
		require.NoError(t, err)
		claimed, err := repo.ClaimAndMark(ctx, "ISS-1", t0, t0.Add(time.Hour))
		require.NoError(t, err)
		require.True(t, claimed)

		applied, err := repo.UpsertEntered(ctx, "ISS-1", t0.Add(2*time.Hour))
		require.NoError(t, err)
		assert.True(t, applied)

		item, err := repo.Get(ctx, "ISS-1")
		require.NoError(t, err)
		assertTime(t, t0.Add(2*time.Hour), item.EnteredWatchAt)
		assert.False(t, item.RemindedAt.Valid)
	})
}

func TestClear_ResetsBothFieldsAndLeavesTombstone(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo tracking.Repository) {
		ctx := context.Background()
		_, err := repo.UpsertEntered(ctx, "ISS-1", t0)
		require.NoError(t, err)
		_, err = repo.ClaimAndMark(ctx, "ISS-1", t0, t0.Add(time.Hour))
		require.NoError(t, err)

		applied, err := repo.Clear(ctx, "ISS-1", t0.Add(2*time.Hour))
		require.NoError(t, err)
		assert.True(t, applied)

		item, err := repo.Get(ctx, "ISS-1")
		require.NoError(t, err)
		assert.False(t, item.Watching())
		assert.False(t, item.Reminded())
		assert.True(t, t0.Add(2*time.Hour).Equal(item.LastEventAt))

		// a late "entered" event older than the clear cannot re-arm the timer
		applied, err = repo.UpsertEntered(ctx, "ISS-1", t0.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, applied)
	})
}

func TestClear_UnknownItemBlocksOlderEntry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo tracking.Repository) {
		ctx := context.Background()

		// exit delivered before the entry it follows
		applied, err := repo.Clear(ctx, "ISS-2", t0.Add(5*time.Minute))
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = repo.UpsertEntered(ctx, "ISS-2", t0)
		require.NoError(t, err)
		assert.False(t, applied)

		watching, err := repo.ListWatching(ctx)
		require.NoError(t, err)
		assert.Empty(t, watching)
	})
}

func TestClear_OlderEventIgnored(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo tracking.Repository) {
		ctx := context.Background()
		_, err := repo.UpsertEntered(ctx, "ISS-1", t0)
		require.NoError(t, err)

		applied, err := repo.Clear(ctx, "ISS-1", t0.Add(-time.Second))
		require.NoError(t, err)
		assert.False(t, applied)

		item, err := repo.Get(ctx, "ISS-1")
		require.NoError(t, err)
		assert.True(t, item.Watching())
	})
}

func TestFindDue(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo tracking.Repository) {
		ctx := context.Background()
		dwell := 30 * time.Minute

		_, err := repo.UpsertEntered(ctx, "old", t0)
		require.NoError(t, err)
		_, err = repo.UpsertEntered(ctx, "older", t0.Add(-time.Hour))
		require.NoError(t, err)
		_, err = repo.UpsertEntered(ctx, "fresh", t0.Add(25*time.Minute))
		require.NoError(t, err)
		_, err = repo.Clear(ctx, "gone", t0)
		require.NoError(t, err)

		due, err := repo.FindDue(ctx, dwell, t0.Add(10*time.Minute), 0)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "older", due[0].ItemID)

		// boundary: exactly the dwell duration counts as due
		due, err = repo.FindDue(ctx, dwell, t0.Add(dwell), 0)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, "older", due[0].ItemID)
		assert.Equal(t, "old", due[1].ItemID)

		due, err = repo.FindDue(ctx, dwell, t0.Add(dwell), 1)
		require.NoError(t, err)
		assert.Len(t, due, 1)

		claimed, err := repo.ClaimAndMark(ctx, "older", due[0].EnteredWatchAt.Time, t0.Add(dwell))
		require.NoError(t, err)
		require.True(t, claimed)

		due, err = repo.FindDue(ctx, dwell, t0.Add(2*time.Hour), 0)
		require.NoError(t, err)
		ids := make([]string, 0, len(due))
		for _, it := range due {
			ids = append(ids, it.ItemID)
		}
		assert.ElementsMatch(t, []string{"old", "fresh"}, ids)
	})
}

func TestClaimAndMark(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo tracking.Repository) {
		ctx := context.Background()
		_, err := repo.UpsertEntered(ctx, "ISS-1", t0)
		require.NoError(t, err)

		claimed, err := repo.ClaimAndMark(ctx, "ISS-1", t0, t0.Add(31*time.Minute))
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = repo.ClaimAndMark(ctx, "ISS-1", t0, t0.Add(32*time.Minute))
		require.NoError(t, err)
		assert.False(t, claimed, "second claim must fail")

		item, err := repo.Get(ctx, "ISS-1")
		require.NoError(t, err)
		assertTime(t, t0.Add(31*time.Minute), item.RemindedAt)

		claimed, err = repo.ClaimAndMark(ctx, "missing", t0, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, claimed)
	})
}

func TestClaimAndMark_StalePeriodRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo tracking.Repository) {
		ctx := context.Background()
		_, err := repo.UpsertEntered(ctx, "ISS-1", t0)
		require.NoError(t, err)
		// item left and came back after the scan saw the first period
		_, err = repo.Clear(ctx, "ISS-1", t0.Add(time.Minute))
		require.NoError(t, err)
		_, err = repo.UpsertEntered(ctx, "ISS-1", t0.Add(2*time.Minute))
		require.NoError(t, err)

		claimed, err := repo.ClaimAndMark(ctx, "ISS-1", t0, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, claimed)
	})
}

func TestClaimAndMark_ConcurrentExactlyOneWins(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo tracking.Repository) {
		ctx := context.Background()
		_, err := repo.UpsertEntered(ctx, "ISS-1", t0)
		require.NoError(t, err)

		const workers = 16
		var (
			wg    sync.WaitGroup
			wins  atomic.Int32
			start = make(chan struct{})
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				ok, err := repo.ClaimAndMark(ctx, "ISS-1", t0, t0.Add(time.Hour+time.Duration(i)*time.Second))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestPruneIdle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo tracking.Repository) {
		ctx := context.Background()
		_, err := repo.Clear(ctx, "ancient", t0.Add(-48*time.Hour))
		require.NoError(t, err)
		_, err = repo.Clear(ctx, "recent", t0)
		require.NoError(t, err)
		_, err = repo.UpsertEntered(ctx, "watching", t0.Add(-72*time.Hour))
		require.NoError(t, err)

		n, err := repo.PruneIdle(ctx, t0.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = repo.Get(ctx, "ancient")
		assert.ErrorIs(t, err, tracking.ErrItemNotFound)
		_, err = repo.Get(ctx, "recent")
		assert.NoError(t, err)
		_, err = repo.Get(ctx, "watching")
		assert.NoError(t, err)
	})
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	assert.EqualError(t, err, "unknown database driver: mysql")

	_, err = NewTimingRepository(nil, "mysql")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := NewSQLiteConnection(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(context.Background(), db, "sqlite"))
	require.NoError(t, Migrate(context.Background(), db, "sqlite"))
	assert.Error(t, Migrate(context.Background(), db, "oracle"))
}
