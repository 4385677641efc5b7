package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/xjectro/actionkit/internal/constants"
	"github.com/xjectro/actionkit/pkg/action"
	"github.com/xjectro/actionkit/pkg/tagcache"
)

// Caller is an untyped action, cached or not.
type Caller interface {
	Call(ctx context.Context, data any) (any, error)
	Invoke(ctx context.Context) (any, error)
}

var (
	_ Caller = (*action.Action[any, any])(nil)
	_ Caller = (*action.CachedAction[any, any])(nil)
)

// Registry holds the built actions of a catalog, keyed by name.
type Registry struct {
	entries map[string]*Entry
	callers map[string]Caller
}

// Build builds every catalog entry against factory. Entries with a cache
// section are wrapped with cache when cache is not nil.
func (c *Catalog) Build(factory *action.Factory, cache tagcache.Cache) (*Registry, error) {
	registry := &Registry{
		entries: make(map[string]*Entry, len(c.Actions)),
		callers: make(map[string]Caller, len(c.Actions)),
	}

	for i := range c.Actions {
		entry := &c.Actions[i]

		built, err := action.Build(factory, entry.Descriptor())
		if err != nil {
			return nil, err
		}

		var caller Caller = built

		if entry.Cache != nil && cache != nil {
			caller = action.Cached(built, cache, action.CacheOptions{
				TTL:  entry.Cache.TTL,
				Tags: entry.Cache.Tags,
			})
		}

		registry.entries[entry.Name] = entry
		registry.callers[entry.Name] = caller
	}

	return registry, nil
}

// Get returns the action called name.
func (r *Registry) Get(name string) (Caller, error) {
	caller, ok := r.callers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", constants.ErrActionNotFound, name)
	}

	return caller, nil
}

// Entry returns the catalog entry behind name.
func (r *Registry) Entry(name string) (*Entry, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", constants.ErrActionNotFound, name)
	}

	return entry, nil
}

// Call runs the action called name with data. A nil data calls the action
// without a payload.
func (r *Registry) Call(ctx context.Context, name string, data any) (any, error) {
	caller, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	if data == nil {
		return caller.Invoke(ctx)
	}

	return caller.Call(ctx, data)
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.callers))
	for name := range r.callers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
