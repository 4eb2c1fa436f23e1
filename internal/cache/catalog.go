// Package cache provides a Redis-backed snapshot cache for the public
// campaign catalog.
//
// Pages are stored under a generation number. Invalidate bumps the
// generation with INCR, so every previously cached page becomes unreachable
// at once and simply expires; no key scans are needed.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-discount-backend/internal/domain"
)

// CatalogCache caches catalog pages in Redis.
type CatalogCache struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a CatalogCache.
type Option func(*CatalogCache)

// WithPrefix sets the key namespace (default "discount:catalog").
func WithPrefix(prefix string) Option {
	return func(c *CatalogCache) {
		if p := strings.Trim(prefix, ":"); p != "" {
			c.prefix = p
		}
	}
}

// WithTTL sets how long a cached page lives (default 5s).
func WithTTL(d time.Duration) Option {
	return func(c *CatalogCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// NewCatalogCache wraps an existing Redis client.
func NewCatalogCache(rdb redis.UniversalClient, opts ...Option) *CatalogCache {
	c := &CatalogCache{
		rdb:    rdb,
		prefix: "discount:catalog",
		ttl:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect parses a redis:// URL or host:port address and pings the server.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

type page struct {
	Items []domain.CampaignView `json:"items"`
	Total int64                 `json:"total"`
}

// Generation returns the current catalog generation. Readers take it before
// querying the database and hand it back to SetPage, so a page computed
// across an invalidation lands under the old generation and is never served.
func (c *CatalogCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetPage returns the page cached under gen. ok is false on a miss.
func (c *CatalogCache) GetPage(ctx context.Context, gen int64, pageNum, pageSize int) (items []domain.CampaignView, total int64, ok bool, err error) {
	raw, err := c.rdb.Get(ctx, c.pageKey(gen, pageNum, pageSize)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}
	var p page
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, 0, false, fmt.Errorf("decode cached page: %w", err)
	}
	return p.Items, p.Total, true, nil
}

// SetPage stores a page under gen.
func (c *CatalogCache) SetPage(ctx context.Context, gen int64, pageNum, pageSize int, items []domain.CampaignView, total int64) error {
	raw, err := json.Marshal(page{Items: items, Total: total})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.pageKey(gen, pageNum, pageSize), raw, c.ttl).Err()
}

// Invalidate makes every cached page stale.
func (c *CatalogCache) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, c.genKey()).Err()
}

func (c *CatalogCache) genKey() string { return c.prefix + ":gen" }

func (c *CatalogCache) pageKey(gen int64, pageNum, pageSize int) string {
	return fmt.Sprintf("%s:g%d:p%d:s%d", c.prefix, gen, pageNum, pageSize)
}
