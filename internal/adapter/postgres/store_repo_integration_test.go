package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/storewatch/internal/entity"
)

// setupTestDB connects to the database named by STOREWATCH_TEST_DATABASE_URL,
// migrates it and empties it. The test is skipped without one.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dsn := os.Getenv("STOREWATCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test: STOREWATCH_TEST_DATABASE_URL not set")
	}

	if err := MigrateUp(dsn, zap.NewNop()); err != nil {
		t.Skipf("Skipping integration test: could not run migrations: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Skipping integration test: could not ping test database: %v", err)
	}

	_, err = pool.Exec(ctx, "TRUNCATE TABLE check_history, stores RESTART IDENTITY CASCADE")
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "TRUNCATE TABLE check_history, stores RESTART IDENTITY CASCADE")
		pool.Close()
	})
	return pool
}

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestIntegration_LoadAndBulkDelete(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewStoreRepo(pool, "America/Los_Angeles")
	ctx := context.Background()

	n, err := repo.LoadURLs(ctx, []string{"u.example"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.LoadURLs(ctx, []string{"u.example"})
	require.NoError(t, err)
	assert.Zero(t, n)

	s, err := repo.Get(ctx, "u.example")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusUnchecked, s.Status)
	assert.Zero(t, s.CheckCount)
	assert.Nil(t, s.FirstCheck)
	assert.Nil(t, s.LastCheck)

	deleted, err := repo.BulkDeleteByStatus(ctx, []entity.Status{entity.StatusUnchecked})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	total, err := repo.TotalCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestIntegration_PassScenario(t *testing.T) {
	pool := setupTestDB(t)
	clock := &stepClock{t: time.Now().UTC().Add(-time.Hour).Truncate(time.Second)}
	repo := NewStoreRepo(pool, "America/Los_Angeles").WithClock(clock.now)
	ctx := context.Background()

	_, err := repo.LoadURLs(ctx, []string{"a.example", "b.example", "c.example"})
	require.NoError(t, err)

	counts, err := repo.CountsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[entity.Status]int{entity.StatusUnchecked: 3}, counts)

	for url, status := range map[string]entity.Status{
		"a.example": entity.StatusLive,
		"b.example": entity.StatusDead,
		"c.example": entity.StatusUnpaid,
	} {
		require.NoError(t, repo.UpdateStatus(ctx, url, entity.StatusUpdate{Label: entity.LabelOf(status), Region: "America/Denver"}))
	}
	deadAt := clock.t

	counts, err = repo.CountsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[entity.Status]int{entity.StatusLive: 1, entity.StatusDead: 1, entity.StatusUnpaid: 1}, counts)

	b, err := repo.Get(ctx, "b.example")
	require.NoError(t, err)
	require.NotNil(t, b.FirstDeadDate)
	assert.True(t, deadAt.Equal(*b.FirstDeadDate))

	// A second DEAD keeps the original date.
	clock.advance(10 * time.Minute)
	require.NoError(t, repo.UpdateStatus(ctx, "b.example", entity.StatusUpdate{Label: entity.LabelOf(entity.StatusDead)}))
	b, err = repo.Get(ctx, "b.example")
	require.NoError(t, err)
	assert.True(t, deadAt.Equal(*b.FirstDeadDate))
	assert.Equal(t, 2, b.CheckCount)

	dead, err := repo.DeadSince(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "b.example", dead[0].URL)

	// Recovery clears it.
	clock.advance(10 * time.Minute)
	require.NoError(t, repo.UpdateStatus(ctx, "b.example", entity.StatusUpdate{Label: entity.LabelOf(entity.StatusLive)}))
	b, err = repo.Get(ctx, "b.example")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusLive, b.Status)
	assert.Nil(t, b.FirstDeadDate)
	assert.Equal(t, 3, b.CheckCount)

	history, err := repo.History(ctx, "b.example", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, entity.StatusLive, history[0].Status)

	changes, err := repo.StatusChanges(ctx, 2*time.Hour)
	require.NoError(t, err)
	// Only b.example has adjacent differing entries: DEAD -> LIVE.
	require.Len(t, changes, 1)
	assert.Equal(t, entity.StatusChange{
		URL:        "b.example",
		FromStatus: entity.StatusDead,
		ToStatus:   entity.StatusLive,
		ChangedAt:  changes[0].ChangedAt,
	}, changes[0])

	newlyDead, err := repo.NewlyDead(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, newlyDead)
}

func TestIntegration_UnseenURLCreatesRow(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewStoreRepo(pool, "America/Los_Angeles")
	ctx := context.Background()
	code := 418

	require.NoError(t, repo.UpdateStatus(ctx, "new.example", entity.StatusUpdate{
		Label:      entity.Label{Status: entity.StatusUnknown, Code: 418},
		HTTPStatus: &code,
	}))

	s, err := repo.Get(ctx, "new.example")
	require.NoError(t, err)
	assert.Equal(t, 1, s.CheckCount)
	assert.Equal(t, "UNKNOWN (418)", s.Label().String())
	assert.NotNil(t, s.FirstCheck)

	history, err := repo.History(ctx, "new.example", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].StatusCode)
	assert.Equal(t, 418, *history[0].StatusCode)
}

func TestIntegration_FilterTimelineClear(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewStoreRepo(pool, "America/Los_Angeles")
	ctx := context.Background()

	_, err := repo.LoadURLs(ctx, []string{"Shop-One.example", "shop_two.example", "other.example"})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, "other.example", entity.StatusUpdate{Label: entity.LabelOf(entity.StatusLive)}))

	got, err := repo.Filtered(ctx, []entity.Status{entity.StatusUnchecked}, "SHOP")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.Filtered(ctx, []entity.Status{entity.StatusUnchecked}, "_two")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "shop_two.example", got[0].URL)

	got, err = repo.Filtered(ctx, []entity.Status{entity.StatusLive, entity.StatusUnchecked}, "")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	points, err := repo.Timeline(ctx, 7)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, entity.StatusLive, points[0].Status)
	assert.Equal(t, 1, points[0].Count)

	removed, err := repo.Remove(ctx, "other.example")
	require.NoError(t, err)
	assert.True(t, removed)

	require.NoError(t, repo.ClearAll(ctx))
	total, err := repo.TotalCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}
