package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"imgshelf/internal/models"
	"imgshelf/internal/store"
)

const (
	DefaultTTL = 30 * time.Second

	keyPrefix = "imgshelf:images:"
)

// CachedRecords serves ListAll from Redis and falls back to the wrapped store.
//
// Listings are keyed by a generation counter that Insert bumps after each
// successful write, so a cached listing never outlives the rows it was built from.
// Redis failures are logged and never surface to callers.
type CachedRecords struct {
	next   store.RecordStore
	client *Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ store.RecordStore = (*CachedRecords)(nil)

// NewCachedRecords wraps next with a Redis-backed listing cache.
func NewCachedRecords(next store.RecordStore, client *Client, ttl time.Duration, logger *slog.Logger) *CachedRecords {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRecords{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedRecords) Insert(ctx context.Context, name, locator string) (*models.Image, error) {
	image, err := c.next.Insert(ctx, name, locator)
	if err != nil {
		return nil, err
	}
	if err := c.client.Incr(context.WithoutCancel(ctx), generationKey()).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", "error", err)
	}
	return image, nil
}

func (c *CachedRecords) ListAll(ctx context.Context) ([]models.Image, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.Warn("cache generation read failed", "error", err)
		return c.next.ListAll(ctx)
	}

	key := listKey(gen)
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var images []models.Image
		if err := json.Unmarshal(data, &images); err == nil && images != nil {
			return images, nil
		}
		c.logger.Warn("cache entry unreadable", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return c.next.ListAll(ctx)
	}

	images, err := c.next.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(images)
	if err != nil {
		return images, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
	return images, nil
}

func (c *CachedRecords) GetByID(ctx context.Context, id int64) (*models.Image, error) {
	return c.next.GetByID(ctx, id)
}

func (c *CachedRecords) Ping(ctx context.Context) error {
	return c.next.Ping(ctx)
}

func (c *CachedRecords) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func generationKey() string {
	return keyPrefix + "gen"
}

func listKey(gen int64) string {
	return fmt.Sprintf("%slist:%d", keyPrefix, gen)
}
