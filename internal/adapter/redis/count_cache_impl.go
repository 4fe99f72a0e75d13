package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/storewatch/internal/entity"
	"github.com/user/storewatch/internal/repository"
)

const (
	countsKey     = "storewatch:counts"
	generationKey = "storewatch:counts:gen"
)

var errStaleCounts = errors.New("counts generation changed")

// CountCacheImpl provides a concrete implementation for the CountCache interface using Redis.
type CountCacheImpl struct {
	client *redis.Client
	ttl    time.Duration
}

var _ repository.CountCache = (*CountCacheImpl)(nil)

// NewCountCache creates a new instance of CountCacheImpl.
func NewCountCache(client *redis.Client, ttl time.Duration) *CountCacheImpl {
	return &CountCacheImpl{client: client, ttl: ttl}
}

// Get returns the cached counts. A missing key is a miss, not an error.
func (c *CountCacheImpl) Get(ctx context.Context) (*entity.StatusCounts, bool, error) {
	raw, err := c.client.Get(ctx, countsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached counts: %w", err)
	}

	var counts entity.StatusCounts
	if err := json.Unmarshal(raw, &counts); err != nil {
		// A value we cannot read is as good as absent.
		return nil, false, nil
	}
	return &counts, true, nil
}

// Generation returns the current epoch; 0 before the first Invalidate.
func (c *CountCacheImpl) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counts generation: %w", err)
	}
	return gen, nil
}

// Set stores counts with the configured expiry. Counts read before an
// Invalidate are dropped silently.
func (c *CountCacheImpl) Set(ctx context.Context, counts *entity.StatusCounts, gen int64) error {
	raw, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, generationKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleCounts
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetEx(ctx, countsKey, raw, c.ttl)
			return nil
		})
		return err
	}, generationKey)

	switch {
	case err == nil, errors.Is(err, errStaleCounts), errors.Is(err, redis.TxFailedErr):
		return nil
	default:
		return fmt.Errorf("set cached counts: %w", err)
	}
}

// Invalidate drops the cached counts and bumps the generation in one transaction.
func (c *CountCacheImpl) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey)
		pipe.Del(ctx, countsKey)
		return nil
	})
	return err
}

// Ping checks the connection.
func (c *CountCacheImpl) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// NoopCountCache is used when Redis is not configured. It never hits.
type NoopCountCache struct{}

var _ repository.CountCache = NoopCountCache{}

func (NoopCountCache) Get(context.Context) (*entity.StatusCounts, bool, error) { return nil, false, nil }

func (NoopCountCache) Generation(context.Context) (int64, error) { return 0, nil }

func (NoopCountCache) Set(context.Context, *entity.StatusCounts, int64) error { return nil }

func (NoopCountCache) Invalidate(context.Context) error { return nil }

func (NoopCountCache) Ping(context.Context) error { return nil }
