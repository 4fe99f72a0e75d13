package repository

import (
	"context"

	"github.com/user/storewatch/internal/entity"
)

// CountCache holds the latest status counts for dashboard reads.
type CountCache interface {
	// Get returns the cached counts; ok is false on a miss.
	Get(ctx context.Context) (counts *entity.StatusCounts, ok bool, err error)
	// Generation identifies the current cache epoch. Read it before
	// counting and hand it to Set.
	Generation(ctx context.Context) (int64, error)
	// Set stores counts unless an Invalidate has happened since gen was read.
	Set(ctx context.Context, counts *entity.StatusCounts, gen int64) error
	// Invalidate drops the cached counts after a write and starts a new epoch.
	Invalidate(ctx context.Context) error
	Ping(ctx context.Context) error
}
