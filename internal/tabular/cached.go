package tabular

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"folio/internal/logging"
)

// CachedSource keeps the last snapshot of each sheet in Redis for TTL. A
// refresh is guarded by a Redis lock so concurrent instances fetch the sheet
// once; an instance that loses the lock fetches directly. Redis failures fall
// through to the wrapped source.
type CachedSource struct {
	Next   Source
	Redis  *redis.Client
	Locker *redislock.Client
	TTL    time.Duration
	Logger *logrus.Logger
}

func NewCachedSource(next Source, rdb *redis.Client, ttl time.Duration, logger *logrus.Logger) *CachedSource {
	return &CachedSource{Next: next, Redis: rdb, Locker: redislock.New(rdb), TTL: ttl, Logger: logger}
}

const lockTTL = 30 * time.Second

func cacheKey(sourceID string) string {
	sum := sha256.Sum256([]byte(sourceID))
	return "folio:tabular:" + hex.EncodeToString(sum[:8])
}

func (c *CachedSource) FetchRows(ctx context.Context, sourceID string) ([]Row, error) {
	key := cacheKey(sourceID)
	if rows, ok := c.lookup(ctx, key); ok {
		return rows, nil
	}
	lock, err := c.Locker.Obtain(ctx, key+":lock", lockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		c.warn(sourceID, "refresh lock held elsewhere; fetching without cache")
		return c.Next.FetchRows(ctx, sourceID)
	} else if err != nil {
		c.warn(sourceID, "error obtaining refresh lock: "+err.Error())
		return c.Next.FetchRows(ctx, sourceID)
	}
	defer func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			logging.LogError(c.Logger, "tabular", "CachedSource.FetchRows", releaseErr, logrus.Fields{"source": sourceID})
		}
	}()
	if rows, ok := c.lookup(ctx, key); ok {
		return rows, nil
	}
	rows, err := c.Next.FetchRows(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(rows); err == nil {
		if err := c.Redis.Set(ctx, key, data, c.TTL).Err(); err != nil {
			c.warn(sourceID, "cache write failed: "+err.Error())
		}
	}
	return rows, nil
}

func (c *CachedSource) lookup(ctx context.Context, key string) ([]Row, bool) {
	data, err := c.Redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn(key, "cache read failed: "+err.Error())
		}
		return nil, false
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

// Invalidate drops the snapshot for sourceID.
func (c *CachedSource) Invalidate(ctx context.Context, sourceID string) error {
	return c.Redis.Del(ctx, cacheKey(sourceID)).Err()
}

func (c *CachedSource) warn(source, msg string) {
	if c.Logger == nil {
		return
	}
	c.Logger.WithFields(logrus.Fields{"module": "tabular", "source": source}).Warn(msg)
}
