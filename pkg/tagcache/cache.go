package tagcache

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
)

// Sentinel errors for cache operations.
var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrEntryExpired = errors.New("entry expired")
	ErrInvalidTag   = errors.New("tag is invalid")
	ErrNilEntry     = errors.New("entry is nil")
)

// Entry is a cached value with its expiry and tags.
type Entry struct {
	Data []byte
	// ExpiresAt is the expiry instant. The zero value never expires.
	ExpiresAt time.Time
	ETag      string
	Tags      []string
}

// Expired reports whether the entry is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

func (e *Entry) clone() *Entry {
	return &Entry{
		Data:      slices.Clone(e.Data),
		ExpiresAt: e.ExpiresAt,
		ETag:      e.ETag,
		Tags:      slices.Clone(e.Tags),
	}
}

// Cache stores entries by key.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) bool
}

// Invalidator marks all data associated with a tag as stale.
type Invalidator interface {
	Invalidate(ctx context.Context, tag string) error
}

// Store is a Cache whose entries can be invalidated by tag.
type Store interface {
	Cache
	Invalidator
}

// Versioned is implemented by stores that count invalidations per tag.
//
// Version returns a number that grows whenever any of tags is invalidated or
// the store is cleared. SetIfVersion stores entry only when the version of
// entry.Tags still equals version, and reports whether it did. The check and
// the write are atomic with respect to invalidation.
type Versioned interface {
	Version(ctx context.Context, tags []string) uint64
	SetIfVersion(ctx context.Context, key string, entry *Entry, version uint64) (bool, error)
}

// InvalidatorFunc adapts a function to the Invalidator interface.
type InvalidatorFunc func(ctx context.Context, tag string) error

// Invalidate calls f(ctx, tag).
func (f InvalidatorFunc) Invalidate(ctx context.Context, tag string) error {
	return f(ctx, tag)
}

// ValidateTag checks that a tag is usable as an index key.
func ValidateTag(tag string) error {
	if strings.TrimSpace(tag) == "" || strings.ContainsAny(tag, "\n\r") {
		return ErrInvalidTag
	}

	return nil
}
