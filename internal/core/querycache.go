package core

import (
	"context"
	"time"

	"github.com/coregx/dbal/internal/cache"
)

// DefaultCacheDuration selects Config.QueryCacheDuration in Cache calls.
const DefaultCacheDuration time.Duration = -1

// cacheScope is one entry of the query-cache scope stack. A disabled scope
// comes from NoCache.
type cacheScope struct {
	enabled  bool
	duration time.Duration
	tags     []string
}

// QueryCacheInfo tells a command where and for how long its result is cached.
type QueryCacheInfo struct {
	Cache    cache.Cache
	Duration time.Duration
	// Tags are attached to the cached entry; invalidating any of them drops it.
	Tags []string
}

// Cache runs fn with query caching enabled for every read command that does
// not choose its own duration. A zero duration caches without expiry;
// DefaultCacheDuration uses Config.QueryCacheDuration.
func (c *Connection) Cache(fn func(*Connection) error, duration time.Duration, tags ...string) error {
	if duration < 0 {
		duration = c.cfg.QueryCacheDuration
	}
	c.pushScope(cacheScope{enabled: true, duration: duration, tags: tags})
	defer c.popScope()
	return fn(c)
}

// NoCache runs fn with query caching disabled, including inside an enclosing
// Cache call.
func (c *Connection) NoCache(fn func(*Connection) error) error {
	c.pushScope(cacheScope{})
	defer c.popScope()
	return fn(c)
}

func (c *Connection) pushScope(s cacheScope) {
	c.mu.Lock()
	c.scopes = append(c.scopes, s)
	c.mu.Unlock()
}

func (c *Connection) popScope() {
	c.mu.Lock()
	if n := len(c.scopes); n > 0 {
		c.scopes = c.scopes[:n-1]
	}
	c.mu.Unlock()
}

// QueryCacheInfo resolves whether a query result may be cached. duration and
// tags are the command's own settings: a nil duration defers to the innermost
// Cache scope, a negative one disables caching. It reports false when query
// caching is disabled, no cache is configured, or no duration applies.
func (c *Connection) QueryCacheInfo(duration *time.Duration, tags []string) (QueryCacheInfo, bool) {
	if !c.cfg.EnableQueryCache || c.opts.queryCache == nil {
		return QueryCacheInfo{}, false
	}

	c.mu.Lock()
	if n := len(c.scopes); n > 0 && c.scopes[n-1].enabled {
		top := c.scopes[n-1]
		if duration == nil {
			duration = &top.duration
		}
		if tags == nil {
			tags = top.tags
		}
	}
	c.mu.Unlock()

	if duration == nil || *duration < 0 {
		return QueryCacheInfo{}, false
	}
	return QueryCacheInfo{Cache: c.opts.queryCache, Duration: *duration, Tags: tags}, true
}

// InvalidateQueryCache drops cached results stored with any of tags.
func (c *Connection) InvalidateQueryCache(ctx context.Context, tags ...string) error {
	if c.opts.queryCache == nil {
		return nil
	}
	return c.opts.queryCache.InvalidateTags(ctx, tags...)
}
