package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/repository"
	"github.com/user/storewatch/pkg/utils"
)

var (
	ErrNoURLs     = errors.New("no URLs given")
	ErrNoStatuses = errors.New("no statuses given")
)

// DefaultChangeDays is the lookback used when a change query names no window.
const DefaultChangeDays = 7

// Health is the reachability of the backing services.
type Health struct {
	Database error
	Cache    error
}

// OK reports whether every dependency answered.
func (h Health) OK() bool { return h.Database == nil && h.Cache == nil }

// StoreManager is the read/write façade over the store repository used by
// the API and the CLI. Writes invalidate the cached counts.
type StoreManager struct {
	repo   repository.StoreRepository
	cache  repository.CountCache
	logger *zap.Logger
}

func NewStoreManager(repo repository.StoreRepository, cache repository.CountCache, logger *zap.Logger) *StoreManager {
	return &StoreManager{repo: repo, cache: cache, logger: logger}
}

// Load registers new URLs and returns how many were not yet known.
func (uc *StoreManager) Load(ctx context.Context, urls []string) (int, error) {
	cleaned := utils.CleanURLs(urls)
	if len(cleaned) == 0 {
		return 0, ErrNoURLs
	}
	n, err := uc.repo.LoadURLs(ctx, cleaned)
	if err != nil {
		return 0, fmt.Errorf("failed to load stores: %w", err)
	}
	uc.invalidate(ctx)
	uc.logger.Info("Stores loaded", zap.Int("submitted", len(cleaned)), zap.Int("inserted", n))
	return n, nil
}

// List returns stores in statuses whose URL contains search. No statuses means all.
func (uc *StoreManager) List(ctx context.Context, statuses []entity.Status, search string) ([]entity.Store, error) {
	if len(statuses) == 0 {
		statuses = entity.AllStatuses
	}
	return uc.repo.Filtered(ctx, statuses, search)
}

func (uc *StoreManager) Get(ctx context.Context, url string) (*entity.Store, error) {
	return uc.repo.Get(ctx, url)
}

// History returns recent checks of one existing store.
func (uc *StoreManager) History(ctx context.Context, url string, limit int) ([]entity.CheckHistoryEntry, error) {
	if _, err := uc.repo.Get(ctx, url); err != nil {
		return nil, err
	}
	return uc.repo.History(ctx, url, limit)
}

// Stats returns the per-status counts, served from the cache when possible.
func (uc *StoreManager) Stats(ctx context.Context) (*entity.StatusCounts, error) {
	cached, ok, err := uc.cache.Get(ctx)
	if err != nil {
		uc.logger.Warn("Count cache read failed", zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	// Counts computed across a concurrent invalidation must not be cached.
	gen, genErr := uc.cache.Generation(ctx)
	if genErr != nil {
		uc.logger.Warn("Count cache generation read failed", zap.Error(genErr))
	}

	byStatus, err := uc.repo.CountsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count stores: %w", err)
	}
	total, err := uc.repo.TotalCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count stores: %w", err)
	}

	counts := &entity.StatusCounts{ByStatus: make(map[entity.Status]int, len(entity.AllStatuses)), Total: total}
	for _, s := range entity.AllStatuses {
		counts.ByStatus[s] = byStatus[s]
	}
	if genErr == nil {
		if err := uc.cache.Set(ctx, counts, gen); err != nil {
			uc.logger.Warn("Count cache write failed", zap.Error(err))
		}
	}
	return counts, nil
}

// Count returns the number of stores in one status, read past the cache.
func (uc *StoreManager) Count(ctx context.Context, status entity.Status) (int, error) {
	return uc.repo.CountByStatus(ctx, status)
}

func (uc *StoreManager) Timeline(ctx context.Context, days int) ([]entity.TimelinePoint, error) {
	return uc.repo.Timeline(ctx, days)
}

// Changes returns transitions within the last minutes when minutes > 0,
// otherwise within the last days (DefaultChangeDays when days <= 0).
func (uc *StoreManager) Changes(ctx context.Context, days, minutes int) ([]entity.StatusChange, error) {
	if minutes > 0 {
		return uc.repo.ChangesInMinutes(ctx, minutes)
	}
	if days <= 0 {
		days = DefaultChangeDays
	}
	return uc.repo.ChangesInDays(ctx, days)
}

func (uc *StoreManager) Dead(ctx context.Context) ([]entity.DeadStore, error) {
	return uc.repo.DeadSince(ctx)
}

// DeleteByStatus removes every store in statuses.
func (uc *StoreManager) DeleteByStatus(ctx context.Context, statuses []entity.Status) (int, error) {
	if len(statuses) == 0 {
		return 0, ErrNoStatuses
	}
	n, err := uc.repo.BulkDeleteByStatus(ctx, statuses)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stores: %w", err)
	}
	uc.invalidate(ctx)
	uc.logger.Info("Stores deleted by status", zap.Any("statuses", statuses), zap.Int("deleted", n))
	return n, nil
}

// Remove deletes one store, returning ErrStoreNotFound when it did not exist.
func (uc *StoreManager) Remove(ctx context.Context, url string) error {
	removed, err := uc.repo.Remove(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to remove store: %w", err)
	}
	if !removed {
		return repository.ErrStoreNotFound
	}
	uc.invalidate(ctx)
	return nil
}

func (uc *StoreManager) ClearAll(ctx context.Context) error {
	if err := uc.repo.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear stores: %w", err)
	}
	uc.invalidate(ctx)
	uc.logger.Warn("All stores cleared")
	return nil
}

// Health pings the database and the count cache.
func (uc *StoreManager) Health(ctx context.Context) Health {
	return Health{
		Database: uc.repo.Ping(ctx),
		Cache:    uc.cache.Ping(ctx),
	}
}

func (uc *StoreManager) invalidate(ctx context.Context) {
	if err := uc.cache.Invalidate(ctx); err != nil {
		uc.logger.Warn("Failed to invalidate count cache", zap.Error(err))
	}
}
