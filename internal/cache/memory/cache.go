// Package memory provides an in-process description cache backed by go-cache.
package memory

import (
	"context"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
)

// Cache keeps event descriptions in memory until they expire.
type Cache struct {
	store *gocache.Cache
}

var _ crawler.DescriptionCache = (*Cache)(nil)

// New creates a cache whose entries live for ttl. A non-positive ttl keeps
// entries until the process exits.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	cleanup := ttl
	if cleanup == gocache.NoExpiration || cleanup < time.Minute {
		cleanup = 10 * time.Minute
	}
	return &Cache{store: gocache.New(ttl, cleanup)}
}

// Get returns the cached description for the event.
func (c *Cache) Get(_ context.Context, eventID int64) (string, bool, error) {
	v, ok := c.store.Get(key(eventID))
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

// Set stores the description using the default expiration.
func (c *Cache) Set(_ context.Context, eventID int64, description string) error {
	c.store.SetDefault(key(eventID), description)
	return nil
}

// Len reports how many unexpired entries are held.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

func key(eventID int64) string {
	return strconv.FormatInt(eventID, 10)
}
