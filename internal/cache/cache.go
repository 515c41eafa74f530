// Package cache holds rendered document artifacts (markdown, HTML, markmap
// JSON) keyed by document and kind, invalidated whenever the document is
// re-indexed or edited.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"lattice/api/internal/metrics"
	"lattice/api/internal/model"
)

const (
	KindMarkdown = "markdown"
	KindHTML     = "html"
	KindMarkmap  = "markmap"
)

type Cache interface {
	Get(ctx context.Context, docID model.DocumentID, kind string) ([]byte, bool, error)
	Set(ctx context.Context, docID model.DocumentID, kind string, value []byte) error
	Invalidate(ctx context.Context, docID model.DocumentID) error
}

// RedisCache stores one key per document and kind, plus a set per document
// listing those keys so Invalidate can drop them together.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, prefix: "render:", ttl: ttl}
}

func (c *RedisCache) key(docID model.DocumentID, kind string) string {
	return c.prefix + docID.String() + ":" + kind
}

func (c *RedisCache) indexKey(docID model.DocumentID) string {
	return c.prefix + docID.String()
}

func (c *RedisCache) Get(ctx context.Context, docID model.DocumentID, kind string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.key(docID, kind)).Bytes()
	if err == redis.Nil {
		metrics.CacheResults.WithLabelValues(kindLabel(kind), "miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", kind, err)
	}
	metrics.CacheResults.WithLabelValues(kindLabel(kind), "hit").Inc()
	return value, true, nil
}

// PerUser scopes kind to one user, for artifacts that depend on user
// settings.
func PerUser(kind, userID string) string {
	return kind + ":" + userID
}

// kindLabel drops the user part of a kind so metric labels stay bounded.
func kindLabel(kind string) string {
	if i := strings.IndexByte(kind, ':'); i >= 0 {
		return kind[:i]
	}
	return kind
}

func (c *RedisCache) Set(ctx context.Context, docID model.DocumentID, kind string, value []byte) error {
	key := c.key(docID, kind)
	index := c.indexKey(docID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, c.ttl)
		pipe.SAdd(ctx, index, key)
		pipe.Expire(ctx, index, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", kind, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, docID model.DocumentID) error {
	index := c.indexKey(docID)
	keys, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	keys = append(keys, index)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Noop never stores anything; it stands in when Redis is not configured.
type Noop struct{}

func (Noop) Get(context.Context, model.DocumentID, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (Noop) Set(context.Context, model.DocumentID, string, []byte) error { return nil }

func (Noop) Invalidate(context.Context, model.DocumentID) error { return nil }
