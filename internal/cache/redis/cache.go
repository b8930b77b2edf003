// Package redis provides a description cache shared through Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
)

// DefaultPrefix namespaces description keys.
const DefaultPrefix = "epg:descr:"

// Config controls the Redis connection and key layout.
type Config struct {
	// URL is a redis:// connection string, e.g. "redis://localhost:6379/0".
	URL    string
	Prefix string
	TTL    time.Duration
}

// Cache stores event descriptions as plain strings with a TTL.
type Cache struct {
	client goredis.Cmdable
	closer func() error
	prefix string
	ttl    time.Duration
}

var _ crawler.DescriptionCache = (*Cache)(nil)

// New parses the URL and returns a cache backed by a new client. Call Ping
// to verify the connection.
func New(cfg Config) (*Cache, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	c := NewWithClient(client, cfg.Prefix, cfg.TTL)
	c.closer = client.Close
	return c, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client goredis.Cmdable, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key that holds the event's description.
func (c *Cache) Key(eventID int64) string {
	return c.prefix + strconv.FormatInt(eventID, 10)
}

// Get returns the cached description. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, eventID int64) (string, bool, error) {
	val, err := c.client.Get(ctx, c.Key(eventID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get description %d: %w", eventID, err)
	}
	return val, true, nil
}

// Set stores the description with the configured TTL.
func (c *Cache) Set(ctx context.Context, eventID int64, description string) error {
	if err := c.client.Set(ctx, c.Key(eventID), description, c.ttl).Err(); err != nil {
		return fmt.Errorf("set description %d: %w", eventID, err)
	}
	return nil
}

// Ping checks the connection to Redis.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close shuts down the client when this cache created it.
func (c *Cache) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}
