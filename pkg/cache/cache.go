// Package cache is the response cache shared by the search and agent
// surfaces: TTL'd key-value storage with canonical key construction and
// request coalescing on miss.
package cache

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/owasp/nest-search/pkg/config"
)

const (
	// DefaultTTL applies when no namespace override is configured.
	DefaultTTL = 3600 * time.Second

	defaultMaxEntries = 4096
)

// KeyParams are the request attributes folded into a cache key. Their
// serialization is canonical: same logical request, same key.
type KeyParams struct {
	Query        string
	Page         int
	PageSize     int
	Filters      string
	ContentTypes []string
	Limit        int
}

// Key builds the cache key for one operation. IP is non-empty only for
// geo-sensitive operations, where two callers in different places see
// different orderings and must not share entries.
func Key(prefix, namespace, operation string, p KeyParams, ip string) string {
	types := append([]string(nil), p.ContentTypes...)
	sort.Strings(types)

	pairs := []string{
		"content_types=" + strings.Join(types, ","),
		"filters=" + p.Filters,
		"limit=" + strconv.Itoa(p.Limit),
		"page=" + strconv.Itoa(p.Page),
		"page_size=" + strconv.Itoa(p.PageSize),
		"query=" + p.Query,
	}

	parts := []string{prefix, namespace, operation, strings.Join(pairs, "&")}
	if ip != "" {
		parts = append(parts, ip)
	}
	return strings.Join(parts, ":")
}

// Cache holds one LRU per namespace so each namespace gets its own TTL.
type Cache struct {
	prefix     string
	defaultLRU *expirable.LRU[string, []byte]
	namespaces map[string]*expirable.LRU[string, []byte]
	group      singleflight.Group
}

// New builds the cache from configuration.
func New(cfg *config.CacheConfig, prefix string) *Cache {
	ttl := DefaultTTL
	if cfg.TTLSeconds > 0 {
		ttl = time.Duration(cfg.TTLSeconds) * time.Second
	}
	size := cfg.MaxEntries
	if size <= 0 {
		size = defaultMaxEntries
	}
	c := &Cache{
		prefix:     prefix,
		defaultLRU: expirable.NewLRU[string, []byte](size, nil, ttl),
		namespaces: make(map[string]*expirable.LRU[string, []byte], len(cfg.Namespaces)),
	}
	for ns, seconds := range cfg.Namespaces {
		nsTTL := ttl
		if seconds > 0 {
			nsTTL = time.Duration(seconds) * time.Second
		}
		c.namespaces[ns] = expirable.NewLRU[string, []byte](size, nil, nsTTL)
	}
	return c
}

// Prefix returns the key prefix this cache was built with.
func (c *Cache) Prefix() string {
	return c.prefix
}

func (c *Cache) lru(namespace string) *expirable.LRU[string, []byte] {
	if l, ok := c.namespaces[namespace]; ok {
		return l
	}
	return c.defaultLRU
}

// Get returns the cached payload for a key, if present and fresh.
func (c *Cache) Get(namespace, key string) ([]byte, bool) {
	return c.lru(namespace).Get(key)
}

// Set stores a payload under a key.
func (c *Cache) Set(namespace, key string, payload []byte) {
	c.lru(namespace).Add(key, payload)
}

// Remove drops one key.
func (c *Cache) Remove(namespace, key string) {
	c.lru(namespace).Remove(key)
}

// Purge drops every entry in a namespace.
func (c *Cache) Purge(namespace string) {
	c.lru(namespace).Purge()
}

// GetOrLoad returns the cached payload for key, or runs loader and
// stores its result. Concurrent misses on the same key are coalesced
// into a single loader call. Loader failures are not cached, and the
// returned payload is stored exactly as produced so a replayed response
// is byte-identical to the original. The bool reports whether the
// payload came from the cache or a coalesced in-flight call rather
// than a fresh loader run.
func (c *Cache) GetOrLoad(ctx context.Context, namespace, key string, loader func(ctx context.Context) ([]byte, error)) ([]byte, bool, error) {
	if payload, ok := c.Get(namespace, key); ok {
		return payload, true, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// Re-check: another caller may have stored while we queued.
		if payload, ok := c.Get(namespace, key); ok {
			return payload, nil
		}
		payload, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(namespace, key, payload)
		return payload, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), shared, nil
}
