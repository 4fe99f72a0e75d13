package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/repository"
	"github.com/user/storewatch/internal/usecase"
)

func newManager(repo *fakeRepo, cache *fakeCache) *usecase.StoreManager {
	return usecase.NewStoreManager(repo, cache, zap.NewNop())
}

func TestLoad_CleansAndInvalidates(t *testing.T) {
	repo, cache := newFakeRepo("a.com"), &fakeCache{}
	m := newManager(repo, cache)

	n, err := m.Load(context.Background(), []string{" a.com ", "b.com", "", "b.com"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a.com", "b.com"}, repo.urls)
	assert.Equal(t, 1, cache.invalidations)

	_, err = m.Load(context.Background(), []string{"  "})
	assert.ErrorIs(t, err, usecase.ErrNoURLs)
}

func TestList_DefaultsToAllStatuses(t *testing.T) {
	repo := newFakeRepo()
	m := newManager(repo, &fakeCache{})

	_, err := m.List(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, entity.AllStatuses, repo.filterStatuses)

	_, err = m.List(context.Background(), []entity.Status{entity.StatusDead}, "shop")
	require.NoError(t, err)
	assert.Equal(t, []entity.Status{entity.StatusDead}, repo.filterStatuses)
}

func TestStats_ConcurrentInvalidateNotCached(t *testing.T) {
	repo, cache := newFakeRepo(), &fakeCache{}
	repo.counts = map[entity.Status]int{entity.StatusLive: 2}
	repo.onCount = func() {
		repo.onCount = nil
		require.NoError(t, cache.Invalidate(context.Background()))
	}
	m := newManager(repo, cache)

	counts, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)
	assert.Nil(t, cache.counts)
	assert.Zero(t, cache.sets)

	_, err = m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.countCalls)
	assert.Equal(t, 1, cache.sets)
}

func TestCount_BypassesCache(t *testing.T) {
	repo, cache := newFakeRepo(), &fakeCache{counts: &entity.StatusCounts{Total: 99}}
	repo.counts = map[entity.Status]int{entity.StatusUnpaid: 3}
	m := newManager(repo, cache)

	n, err := m.Count(context.Background(), entity.StatusUnpaid)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStats_UsesCache(t *testing.T) {
	repo, cache := newFakeRepo(), &fakeCache{}
	repo.counts = map[entity.Status]int{entity.StatusLive: 2, entity.StatusDead: 1}
	m := newManager(repo, cache)

	counts, err := m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Total)
	assert.Equal(t, 2, counts.ByStatus[entity.StatusLive])
	assert.Contains(t, counts.ByStatus, entity.StatusUnchecked)
	assert.Equal(t, 1, cache.sets)

	_, err = m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.countCalls)

	_, err = m.Load(context.Background(), []string{"new.com"})
	require.NoError(t, err)
	_, err = m.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repo.countCalls)
}

func TestRemove(t *testing.T) {
	repo, cache := newFakeRepo("a.com"), &fakeCache{}
	m := newManager(repo, cache)

	require.NoError(t, m.Remove(context.Background(), "a.com"))
	assert.ErrorIs(t, m.Remove(context.Background(), "a.com"), repository.ErrStoreNotFound)
	assert.Equal(t, 1, cache.invalidations)
}

func TestDeleteByStatus(t *testing.T) {
	repo := newFakeRepo()
	m := newManager(repo, &fakeCache{})

	_, err := m.DeleteByStatus(context.Background(), nil)
	assert.ErrorIs(t, err, usecase.ErrNoStatuses)

	n, err := m.DeleteByStatus(context.Background(), []entity.Status{entity.StatusDead, entity.StatusUnpaid})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []entity.Status{entity.StatusDead, entity.StatusUnpaid}, repo.deleted)
}

func TestChanges_Window(t *testing.T) {
	repo := newFakeRepo()
	m := newManager(repo, &fakeCache{})

	_, err := m.Changes(context.Background(), 3, 15)
	require.NoError(t, err)
	assert.Equal(t, 15, repo.changeMinutes)
	assert.Zero(t, repo.changeDays)

	_, err = m.Changes(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, usecase.DefaultChangeDays, repo.changeDays)
}

func TestHistory_UnknownStore(t *testing.T) {
	m := newManager(newFakeRepo("a.com"), &fakeCache{})

	_, err := m.History(context.Background(), "missing.com", 10)
	assert.ErrorIs(t, err, repository.ErrStoreNotFound)

	entries, err := m.History(context.Background(), "a.com", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestClearAllAndHealth(t *testing.T) {
	repo, cache := newFakeRepo("a.com"), &fakeCache{pingErr: errors.New("redis down")}
	m := newManager(repo, cache)

	require.NoError(t, m.ClearAll(context.Background()))
	assert.True(t, repo.cleared)

	h := m.Health(context.Background())
	assert.NoError(t, h.Database)
	assert.Error(t, h.Cache)
	assert.False(t, h.OK())
}
