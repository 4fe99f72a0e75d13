package repository

import (
	"context"
	"errors"
	"time"

	"github.com/user/storewatch/internal/entity"
)

// ErrStoreNotFound is returned when no store has the requested URL.
var ErrStoreNotFound = errors.New("store not found")

// StoreRepository defines the durable store of per-URL status and check history.
// Every method is atomic on its own; callers get errors back, nothing is retried.
type StoreRepository interface {
	// LoadURLs inserts UNCHECKED rows for URLs not yet known and returns how many were new.
	LoadURLs(ctx context.Context, urls []string) (int, error)
	// UpdateStatus records one classification and its history entry in one transaction.
	UpdateStatus(ctx context.Context, url string, update entity.StatusUpdate) error

	// AllURLs returns every known URL ordered by URL.
	AllURLs(ctx context.Context) ([]string, error)
	// Get returns one store or ErrStoreNotFound.
	Get(ctx context.Context, url string) (*entity.Store, error)
	// History returns the newest entries of one store, newest first.
	History(ctx context.Context, url string, limit int) ([]entity.CheckHistoryEntry, error)
	// URLsByStatus returns the URLs currently in status.
	URLsByStatus(ctx context.Context, status entity.Status) ([]string, error)
	// DeadSince returns DEAD stores with the start of their death episode.
	DeadSince(ctx context.Context) ([]entity.DeadStore, error)

	CountsByStatus(ctx context.Context) (map[entity.Status]int, error)
	TotalCount(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context, status entity.Status) (int, error)
	// Filtered returns stores in any of statuses whose URL contains search, case-insensitively.
	Filtered(ctx context.Context, statuses []entity.Status, search string) ([]entity.Store, error)
	// Timeline counts history entries per display-timezone day and status. days <= 0 means all.
	Timeline(ctx context.Context, days int) ([]entity.TimelinePoint, error)

	// StatusChanges returns transitions that happened within window, newest first.
	StatusChanges(ctx context.Context, window time.Duration) ([]entity.StatusChange, error)
	ChangesInDays(ctx context.Context, days int) ([]entity.StatusChange, error)
	ChangesInMinutes(ctx context.Context, minutes int) ([]entity.StatusChange, error)
	// NewlyDead returns URLs whose transition into DEAD happened within window.
	NewlyDead(ctx context.Context, window time.Duration) ([]string, error)

	// BulkDeleteByStatus removes every store in statuses and returns the count.
	BulkDeleteByStatus(ctx context.Context, statuses []entity.Status) (int, error)
	// Remove deletes one store and reports whether it existed.
	Remove(ctx context.Context, url string) (bool, error)
	ClearAll(ctx context.Context) error
	Ping(ctx context.Context) error
}
