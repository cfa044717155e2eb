// Package profilecache keeps recently read profiles in memory.
package profilecache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ersonp/kin-core/internal/domain/entities"
	"github.com/ersonp/kin-core/internal/domain/ports"
	"github.com/ersonp/kin-core/internal/infrastructure/config"
)

// Cache implements ports.Profiles in front of another Profiles source.
// Propagation reads the same few profiles many times per pass; entries
// expire after the configured TTL so gender updates are picked up.
type Cache struct {
	next  ports.Profiles
	cache *expirable.LRU[string, *entities.Person]
}

// New wraps next. A zero size or TTL falls back to 1024 entries for one minute.
func New(next ports.Profiles, cfg config.ProfilesConfig) *Cache {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{
		next:  next,
		cache: expirable.NewLRU[string, *entities.Person](size, nil, ttl),
	}
}

// FindPersonByID returns a copy of the cached profile, loading it on a miss.
// Missing persons are not cached.
func (c *Cache) FindPersonByID(ctx context.Context, id string) (*entities.Person, error) {
	if p, ok := c.cache.Get(id); ok {
		cp := *p
		return &cp, nil
	}
	p, err := c.next.FindPersonByID(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	stored := *p
	c.cache.Add(id, &stored)
	return p, nil
}

// Invalidate drops a profile so the next read goes to the source.
func (c *Cache) Invalidate(id string) {
	c.cache.Remove(id)
}

// Len returns the number of cached profiles.
func (c *Cache) Len() int {
	return c.cache.Len()
}
