package action

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xjectro/actionkit/internal/constants"
	"github.com/xjectro/actionkit/pkg/tagcache"
)

// CacheOptions configures a cached action.
type CacheOptions struct {
	// TTL defaults to five minutes.
	TTL time.Duration
	// Tags are attached to stored results; invalidating any of them evicts
	// the result.
	Tags []string
}

// CachedAction is a read-through cache in front of an action. Results are
// stored as JSON keyed by action name and input. Concurrent misses for the
// same key share one round trip. Errors are never cached.
//
// With a tagcache.Versioned cache, a result whose tags were invalidated while
// its round trip was in flight is returned to callers but not stored.
type CachedAction[In, Out any] struct {
	action *Action[In, Out]
	cache  tagcache.Cache
	ttl    time.Duration
	tags   []string
	group  singleflight.Group
}

// Cached wraps action with cache.
func Cached[In, Out any](action *Action[In, Out], cache tagcache.Cache, opts CacheOptions) *CachedAction[In, Out] {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = constants.DefaultCacheTTL
	}

	return &CachedAction[In, Out]{
		action: action,
		cache:  cache,
		ttl:    ttl,
		tags:   slices.Clone(opts.Tags),
	}
}

// Action returns the wrapped action.
func (c *CachedAction[In, Out]) Action() *Action[In, Out] {
	return c.action
}

// Call returns the cached result for data or executes the action.
func (c *CachedAction[In, Out]) Call(ctx context.Context, data In) (Out, error) {
	return c.call(ctx, data, true)
}

// Invoke returns the cached result of a call without data or executes the
// action.
func (c *CachedAction[In, Out]) Invoke(ctx context.Context) (Out, error) {
	var data In

	return c.call(ctx, data, false)
}

// Key returns the cache key for data. The boolean is false when the input
// cannot be cached, such as multipart forms.
func (c *CachedAction[In, Out]) Key(data In) (string, bool) {
	return cacheKey(c.action.name, data)
}

func (c *CachedAction[In, Out]) call(ctx context.Context, data In, hasData bool) (Out, error) {
	var input any
	if hasData {
		input = data
	}

	key, ok := cacheKey(c.action.name, input)
	if !ok {
		return c.action.call(ctx, data, hasData)
	}

	if out, hit := c.lookup(ctx, key); hit {
		return out, nil
	}

	// The shared round trip outlives any single caller; each caller stops
	// waiting when its own context ends.
	results := c.group.DoChan(key, func() (interface{}, error) {
		shared := context.WithoutCancel(ctx)
		version := c.version(shared)

		out, err := c.action.call(shared, data, hasData)
		if err != nil {
			return nil, err
		}

		c.store(shared, key, out, version)

		return out, nil
	})

	var zero Out

	select {
	case <-ctx.Done():
		return zero, newError(KindNetwork, callMeta{name: c.action.name, method: c.action.method}, "request failed", ctx.Err())
	case result := <-results:
		if result.Err != nil {
			return zero, result.Err
		}

		out, _ := result.Val.(Out)

		return out, nil
	}
}

func (c *CachedAction[In, Out]) lookup(ctx context.Context, key string) (Out, bool) {
	var out Out

	entry, err := c.cache.Get(ctx, key)
	if err != nil {
		if !isCacheMiss(err) {
			c.action.factory.logger.Warn("Cache read failed", map[string]interface{}{
				"action": c.action.name,
				"key":    key,
				"error":  err.Error(),
			})
		}

		return out, false
	}

	err = json.Unmarshal(entry.Data, &out)
	if err != nil {
		return out, false
	}

	return out, true
}

// version reads the invalidation version of the cache tags when the cache
// supports it.
func (c *CachedAction[In, Out]) version(ctx context.Context) uint64 {
	if versioned, ok := c.cache.(tagcache.Versioned); ok {
		return versioned.Version(ctx, c.tags)
	}

	return 0
}

// store writes out unless one of the cache tags was invalidated after version
// was read, so a read racing a write cannot put stale data back.
func (c *CachedAction[In, Out]) store(ctx context.Context, key string, out Out, version uint64) {
	data, err := json.Marshal(out)
	if err != nil {
		return
	}

	entry := &tagcache.Entry{
		Data:      data,
		ExpiresAt: time.Now().Add(c.ttl),
		Tags:      slices.Clone(c.tags),
	}

	stored := true

	if versioned, ok := c.cache.(tagcache.Versioned); ok {
		stored, err = versioned.SetIfVersion(ctx, key, entry, version)
	} else {
		err = c.cache.Set(ctx, key, entry)
	}

	if err != nil {
		c.action.factory.logger.Warn("Cache write failed", map[string]interface{}{
			"action": c.action.name,
			"key":    key,
			"error":  err.Error(),
		})

		return
	}

	if !stored {
		c.action.factory.logger.Debug("Cache write skipped after invalidation", map[string]interface{}{
			"action": c.action.name,
			"key":    key,
		})
	}
}

func isCacheMiss(err error) bool {
	return errors.Is(err, tagcache.ErrKeyNotFound) ||
		errors.Is(err, tagcache.ErrEntryExpired) ||
		errors.Is(err, tagcache.ErrCacheDisabled)
}

// cacheKey hashes the action name with the JSON form of input.
func cacheKey(name string, input any) (string, bool) {
	if _, ok := input.(*Form); ok {
		return "", false
	}

	encoded, err := json.Marshal(input)
	if err != nil {
		return "", false
	}

	hash := sha256.New()
	hash.Write([]byte(name))
	hash.Write([]byte{0})
	hash.Write(encoded)

	return "action:" + name + ":" + hex.EncodeToString(hash.Sum(nil)[:constants.CacheKeyHashBytes]), true
}
