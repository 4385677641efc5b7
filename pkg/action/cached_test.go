package action_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xjectro/actionkit/pkg/action"
	"github.com/xjectro/actionkit/pkg/tagcache"
)

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestCached(t *testing.T) {
	t.Parallel()

	newServer := func(t *testing.T, hits *atomic.Int32) *httptest.Server {
		t.Helper()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			hits.Add(1)

			switch request.Method {
			case http.MethodGet:
				writer.Header().Set("Content-Type", "application/json")
				_, _ = writer.Write([]byte(`[{"id":1,"name":"` + request.URL.Query().Get("name") + `"}]`))
			default:
				writer.WriteHeader(http.StatusNoContent)
			}
		}))
		t.Cleanup(server.Close)

		return server
	}

	t.Run("hit skips the round trip", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32

		server := newServer(t, &hits)
		store := tagcache.NewMemoryCache(10)
		factory := newFactory(t, server.URL, func(c *action.Config) { c.Invalidator = store })

		list := action.Cached(action.MustBuild(factory, action.Descriptor[map[string]string, []user]{
			Name:     "list-users",
			Endpoint: "/users",
			Method:   action.MethodGet,
		}), store, action.CacheOptions{Tags: []string{"users"}})

		ctx := context.Background()

		first, err := list.Call(ctx, map[string]string{"name": "a"})
		require.NoError(t, err)

		second, err := list.Call(ctx, map[string]string{"name": "a"})
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, []user{{ID: 1, Name: "a"}}, second)
		assert.Equal(t, int32(1), hits.Load())

		// Different input, different key.
		_, err = list.Call(ctx, map[string]string{"name": "b"})
		require.NoError(t, err)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("mutation tag invalidates cached reads", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32

		server := newServer(t, &hits)
		store := tagcache.NewMemoryCache(10)
		factory := newFactory(t, server.URL, func(c *action.Config) { c.Invalidator = store })

		list := action.Cached(action.MustBuild(factory, action.Descriptor[any, []user]{
			Endpoint: "/users",
			Method:   action.MethodGet,
		}), store, action.CacheOptions{Tags: []string{"users"}})

		remove := action.MustBuild(factory, action.Descriptor[any, any]{
			Endpoint: "/users/1",
			Method:   action.MethodDelete,
			Tags:     action.Tag("users"),
		})

		ctx := context.Background()

		_, err := list.Invoke(ctx)
		require.NoError(t, err)
		_, err = list.Invoke(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(1), hits.Load())

		_, err = remove.Invoke(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(2), hits.Load())

		_, err = list.Invoke(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("expired entries are refetched", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32

		server := newServer(t, &hits)
		store := tagcache.NewMemoryCache(10)
		list := action.Cached(action.MustBuild(newFactory(t, server.URL), action.Descriptor[any, []user]{
			Endpoint: "/users",
			Method:   action.MethodGet,
		}), store, action.CacheOptions{TTL: 10 * time.Millisecond})

		_, err := list.Invoke(context.Background())
		require.NoError(t, err)

		time.Sleep(30 * time.Millisecond)

		_, err = list.Invoke(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			writer.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		get := action.Cached(action.MustBuild(newFactory(t, server.URL), action.Descriptor[any, any]{
			Endpoint: "/flaky",
			Method:   action.MethodGet,
		}), tagcache.NewMemoryCache(10), action.CacheOptions{})

		for range 2 {
			_, err := get.Invoke(context.Background())
			requireKind(t, err, action.KindHTTP)
		}

		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("concurrent misses share one round trip", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			<-release
			writer.Header().Set("Content-Type", "application/json")
			_, _ = writer.Write([]byte(`{"id":5}`))
		}))
		defer server.Close()

		get := action.Cached(action.MustBuild(newFactory(t, server.URL), action.Descriptor[any, user]{
			Endpoint: "/users/5",
			Method:   action.MethodGet,
		}), tagcache.NewMemoryCache(10), action.CacheOptions{})

		const callers = 8

		var wg sync.WaitGroup

		for range callers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				result, err := get.Invoke(context.Background())
				assert.NoError(t, err)
				assert.Equal(t, user{ID: 5}, result)
			}()
		}

		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.LessOrEqual(t, hits.Load(), int32(callers))
		assert.GreaterOrEqual(t, hits.Load(), int32(1))
	})

	t.Run("invalidation during an in-flight read is not undone", func(t *testing.T) {
		t.Parallel()

		var (
			gets    atomic.Int32
			version atomic.Int32
		)

		version.Store(1)

		started := make(chan struct{})
		release := make(chan struct{})

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.Method != http.MethodGet {
				version.Store(2)
				writer.WriteHeader(http.StatusNoContent)

				return
			}

			current := version.Load()
			if gets.Add(1) == 1 {
				close(started)
				<-release
			}

			writer.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(writer, `{"v":%d}`, current)
		}))
		defer server.Close()

		type state struct {
			V int `json:"v"`
		}

		store := tagcache.NewMemoryCache(10)
		factory := newFactory(t, server.URL, func(c *action.Config) { c.Invalidator = store })

		read := action.Cached(action.MustBuild(factory, action.Descriptor[any, state]{
			Name:     "get-state",
			Endpoint: "/state",
			Method:   action.MethodGet,
		}), store, action.CacheOptions{Tags: []string{"x"}})

		write := action.MustBuild(factory, action.Descriptor[any, any]{
			Name:     "bump-state",
			Endpoint: "/state",
			Method:   action.MethodPost,
			Tags:     action.Tag("x"),
		})

		ctx := context.Background()
		first := make(chan state, 1)

		go func() {
			result, err := read.Invoke(ctx)
			assert.NoError(t, err)
			first <- result
		}()

		<-started

		_, err := write.Invoke(ctx)
		require.NoError(t, err)

		close(release)
		assert.Equal(t, state{V: 1}, <-first)

		second, err := read.Invoke(ctx)
		require.NoError(t, err)
		assert.Equal(t, state{V: 2}, second)
		assert.Equal(t, int32(2), gets.Load())

		// The fresh result is cached.
		third, err := read.Invoke(ctx)
		require.NoError(t, err)
		assert.Equal(t, state{V: 2}, third)
		assert.Equal(t, int32(2), gets.Load())
	})

	t.Run("leader cancellation does not fail other callers", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			<-release
			writer.Header().Set("Content-Type", "application/json")
			_, _ = writer.Write([]byte(`{"id":7}`))
		}))
		defer server.Close()

		get := action.Cached(action.MustBuild(newFactory(t, server.URL), action.Descriptor[any, user]{
			Endpoint: "/users/7",
			Method:   action.MethodGet,
		}), tagcache.NewMemoryCache(10), action.CacheOptions{})

		leaderCtx, cancel := context.WithCancel(context.Background())
		leaderErr := make(chan error, 1)

		go func() {
			_, err := get.Invoke(leaderCtx)
			leaderErr <- err
		}()

		require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

		follower := make(chan user, 1)

		go func() {
			result, err := get.Invoke(context.Background())
			assert.NoError(t, err)
			follower <- result
		}()

		cancel()

		err := <-leaderErr
		requireKind(t, err, action.KindNetwork)
		require.ErrorIs(t, err, context.Canceled)

		time.Sleep(20 * time.Millisecond)
		close(release)

		assert.Equal(t, user{ID: 7}, <-follower)
		assert.LessOrEqual(t, hits.Load(), int32(2))
	})

	t.Run("forms bypass the cache", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32

		server := newServer(t, &hits)
		upload := action.Cached(action.MustBuild(newFactory(t, server.URL), action.Descriptor[*action.Form, any]{
			Endpoint: "/uploads",
		}), tagcache.NewMemoryCache(10), action.CacheOptions{})

		_, ok := upload.Key(action.NewForm())
		assert.False(t, ok)

		for range 2 {
			form := action.NewForm()
			require.NoError(t, form.AddFile("f", "a.txt", strings.NewReader("a")))

			_, err := upload.Call(context.Background(), form)
			require.NoError(t, err)
		}

		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("keys depend on action and input", func(t *testing.T) {
		t.Parallel()

		factory := newFactory(t, "http://example.com")
		store := tagcache.NewMemoryCache(10)

		a := action.Cached(action.MustBuild(factory, action.Descriptor[map[string]int, any]{Name: "a", Endpoint: "/a"}), store, action.CacheOptions{})
		b := action.Cached(action.MustBuild(factory, action.Descriptor[map[string]int, any]{Name: "b", Endpoint: "/b"}), store, action.CacheOptions{})

		keyA1, ok := a.Key(map[string]int{"x": 1})
		require.True(t, ok)

		keyA1Again, _ := a.Key(map[string]int{"x": 1})
		keyA2, _ := a.Key(map[string]int{"x": 2})
		keyB1, _ := b.Key(map[string]int{"x": 1})

		assert.Equal(t, keyA1, keyA1Again)
		assert.NotEqual(t, keyA1, keyA2)
		assert.NotEqual(t, keyA1, keyB1)
		assert.True(t, strings.HasPrefix(keyA1, "action:a:"))
	})
}
