package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/repository"
	"github.com/user/storewatch/pkg/metrics"
)

// RecentWindow is how far back a pass looks for changes to announce.
const RecentWindow = 5 * time.Minute

const (
	passAll  = "all"
	passDead = "dead"
)

// Summary describes one batch of checks.
type Summary struct {
	PassID   string                `json:"pass_id"`
	Checked  int                   `json:"checked"`
	Failed   int                   `json:"failed"`
	ByStatus map[entity.Status]int `json:"by_status"`
	Duration time.Duration         `json:"duration"`
}

// Monitor runs batches of store checks: probe, record, announce.
type Monitor struct {
	repo     repository.StoreRepository
	prober   repository.StoreProber
	notifier repository.ChangeNotifier
	cache    repository.CountCache
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewMonitor wires a Monitor. Each pipeline (scheduled, manual) owns its own prober.
func NewMonitor(
	repo repository.StoreRepository,
	prober repository.StoreProber,
	notifier repository.ChangeNotifier,
	cache repository.CountCache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		repo:     repo,
		prober:   prober,
		notifier: notifier,
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}
}

// CheckAll verifies and records every known store, then announces recent changes.
// Only a failure to list the stores is returned as an error.
func (uc *Monitor) CheckAll(ctx context.Context) (*Summary, error) {
	urls, err := uc.repo.AllURLs(ctx)
	if err != nil {
		uc.metrics.ObservePass(passAll, "error", 0)
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	return uc.runPass(ctx, passAll, urls)
}

// RecheckDead runs the same pass over the stores currently DEAD.
func (uc *Monitor) RecheckDead(ctx context.Context) (*Summary, error) {
	urls, err := uc.repo.URLsByStatus(ctx, entity.StatusDead)
	if err != nil {
		uc.metrics.ObservePass(passDead, "error", 0)
		return nil, fmt.Errorf("failed to list dead stores: %w", err)
	}
	return uc.runPass(ctx, passDead, urls)
}

// ScheduledPass is the scheduler callback.
func (uc *Monitor) ScheduledPass(ctx context.Context) error {
	_, err := uc.CheckAll(ctx)
	return err
}

func (uc *Monitor) runPass(ctx context.Context, kind string, urls []string) (*Summary, error) {
	start := time.Now()
	sum := &Summary{PassID: uuid.NewString(), ByStatus: make(map[entity.Status]int)}
	logger := uc.logger.With(zap.String("pass_id", sum.PassID), zap.String("kind", kind))
	logger.Info("Check pass started", zap.Int("stores", len(urls)))

	var cancelled error
	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}

		res := uc.prober.Verify(ctx, url)
		if ctx.Err() != nil {
			// The result of an interrupted request says nothing about the store.
			cancelled = ctx.Err()
			break
		}
		if res.Err != nil {
			logger.Debug("Check ended with error", zap.String("url", url), zap.String("label", res.Label.String()), zap.Error(res.Err))
		}

		if err := uc.repo.UpdateStatus(ctx, url, res.Update()); err != nil {
			sum.Failed++
			logger.Error("Failed to record check", zap.String("url", url), zap.Error(err))
		} else {
			sum.Checked++
			sum.ByStatus[res.Label.Status]++
		}

		if i < len(urls)-1 {
			if err := uc.prober.Pause(ctx); err != nil {
				cancelled = err
				break
			}
		}
	}

	sum.Duration = time.Since(start)

	if err := uc.cache.Invalidate(ctx); err != nil {
		logger.Warn("Failed to invalidate count cache", zap.Error(err))
	}

	result := "success"
	if cancelled != nil {
		result = "cancelled"
	}
	uc.metrics.ObservePass(kind, result, sum.Duration)
	logger.Info("Check pass finished",
		zap.Int("checked", sum.Checked),
		zap.Int("failed", sum.Failed),
		zap.Any("by_status", sum.ByStatus),
		zap.Duration("took", sum.Duration),
		zap.String("result", result),
	)

	if cancelled != nil {
		return sum, cancelled
	}

	uc.refreshGauges(ctx)
	uc.NotifyRecent(ctx, RecentWindow)
	return sum, nil
}

// NotifyRecent announces stores that died and transitions that happened within window.
// Notification failures are logged and counted, never returned.
func (uc *Monitor) NotifyRecent(ctx context.Context, window time.Duration) {
	if window <= 0 {
		return
	}

	dead, err := uc.repo.NewlyDead(ctx, window)
	if err != nil {
		uc.logger.Error("Failed to load newly dead stores", zap.Error(err))
	} else if len(dead) > 0 {
		uc.record("dead", uc.notifier.NotifyDead(ctx, dead))
	}

	changes, err := uc.repo.ChangesInMinutes(ctx, int(window/time.Minute))
	if err != nil {
		uc.logger.Error("Failed to load recent changes", zap.Error(err))
	} else if len(changes) > 0 {
		uc.record("changes", uc.notifier.NotifyChanges(ctx, changes))
	}
}

func (uc *Monitor) record(kind string, err error) {
	switch {
	case err == nil:
		uc.metrics.IncNotification(kind, "sent")
	case errors.Is(err, repository.ErrNotConfigured):
		uc.metrics.IncNotification(kind, "skipped")
		uc.logger.Debug("Notifier not configured, alert skipped", zap.String("kind", kind))
	default:
		uc.metrics.IncNotification(kind, "error")
		uc.logger.Error("Failed to send alert", zap.String("kind", kind), zap.Error(err))
	}
}

func (uc *Monitor) refreshGauges(ctx context.Context) {
	counts, err := uc.repo.CountsByStatus(ctx)
	if err != nil {
		uc.logger.Warn("Failed to refresh store gauges", zap.Error(err))
		return
	}
	labels := make(map[string]int, len(entity.AllStatuses))
	for _, s := range entity.AllStatuses {
		labels[string(s)] = counts[s]
	}
	uc.metrics.SetStoreCounts(labels)
}
