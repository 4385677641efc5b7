package tagcache_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xjectro/actionkit/pkg/tagcache"
)

var errPublishFailed = errors.New("publish failed")

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	messages [][]byte
	err      error
}

func (p *recordingPublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.subjects = append(p.subjects, subject)
	p.messages = append(p.messages, data)

	return nil
}

func (p *recordingPublisher) events(t *testing.T) []tagcache.InvalidationEvent {
	t.Helper()

	p.mu.Lock()
	defer p.mu.Unlock()

	events := make([]tagcache.InvalidationEvent, 0, len(p.messages))

	for _, msg := range p.messages {
		var event tagcache.InvalidationEvent
		require.NoError(t, json.Unmarshal(msg, &event))
		events = append(events, event)
	}

	return events
}

func TestNATSInvalidator_InvalidatePublishes(t *testing.T) {
	t.Parallel()

	local := tagcache.NewMemoryCache(10)
	pub := &recordingPublisher{}
	inv := tagcache.NewNATSInvalidator(local, pub, "", tagcache.WithSender("node-a"))

	ctx := context.Background()
	require.NoError(t, inv.Set(ctx, "users:list", &tagcache.Entry{Data: []byte("[]"), Tags: []string{"users"}}))
	assert.True(t, inv.Has(ctx, "users:list"))

	require.NoError(t, inv.Invalidate(ctx, "users"))

	assert.False(t, local.Has(ctx, "users:list"))
	assert.Equal(t, []string{"actionkit.invalidate"}, pub.subjects)
	assert.Equal(t, []tagcache.InvalidationEvent{
		{Tag: "users", Sender: "node-a", Action: tagcache.EventInvalidate},
	}, pub.events(t))
}

func TestNATSInvalidator_GeneratesSender(t *testing.T) {
	t.Parallel()

	a := tagcache.NewNATSInvalidator(tagcache.NewMemoryCache(1), &recordingPublisher{}, "custom.subject")
	b := tagcache.NewNATSInvalidator(tagcache.NewMemoryCache(1), &recordingPublisher{}, "custom.subject")

	assert.NotEmpty(t, a.Sender())
	assert.NotEqual(t, a.Sender(), b.Sender())
	assert.Equal(t, "custom.subject", a.Subject())
}

func TestNATSInvalidator_PublishFailure(t *testing.T) {
	t.Parallel()

	local := tagcache.NewMemoryCache(10)
	inv := tagcache.NewNATSInvalidator(local, &recordingPublisher{err: errPublishFailed}, "")

	ctx := context.Background()
	require.NoError(t, local.Set(ctx, "k", &tagcache.Entry{Tags: []string{"t"}}))

	err := inv.Invalidate(ctx, "t")
	require.ErrorIs(t, err, errPublishFailed)

	// The local invalidation still happened
	assert.False(t, local.Has(ctx, "k"))
}

func TestNATSInvalidator_CanceledContext(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	inv := tagcache.NewNATSInvalidator(tagcache.NewMemoryCache(10), pub, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := inv.Invalidate(ctx, "t")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.messages)
}

func TestNATSInvalidator_HandleMessage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	newNode := func(t *testing.T) (*tagcache.NATSInvalidator, *tagcache.MemoryCache, *[]error) {
		t.Helper()

		local := tagcache.NewMemoryCache(10)
		require.NoError(t, local.Set(ctx, "users:list", &tagcache.Entry{Data: []byte("[]"), Tags: []string{"users"}}))
		require.NoError(t, local.Set(ctx, "posts:list", &tagcache.Entry{Data: []byte("[]"), Tags: []string{"posts"}}))

		var errs []error

		inv := tagcache.NewNATSInvalidator(local, &recordingPublisher{}, "",
			tagcache.WithSender("node-b"),
			tagcache.WithEventErrorHandler(func(err error) { errs = append(errs, err) }),
		)

		return inv, local, &errs
	}

	message := func(t *testing.T, event tagcache.InvalidationEvent) *nats.Msg {
		t.Helper()

		data, err := json.Marshal(event)
		require.NoError(t, err)

		return &nats.Msg{Subject: "actionkit.invalidate", Data: data}
	}

	t.Run("remote invalidate", func(t *testing.T) {
		t.Parallel()

		inv, local, errs := newNode(t)
		inv.HandleMessage(message(t, tagcache.InvalidationEvent{Tag: "users", Sender: "node-a", Action: tagcache.EventInvalidate}))

		assert.False(t, local.Has(ctx, "users:list"))
		assert.True(t, local.Has(ctx, "posts:list"))
		assert.Empty(t, *errs)
	})

	t.Run("remote clear", func(t *testing.T) {
		t.Parallel()

		inv, local, errs := newNode(t)
		inv.HandleMessage(message(t, tagcache.InvalidationEvent{Sender: "node-a", Action: tagcache.EventClear}))

		assert.Equal(t, 0, local.Len())
		assert.Empty(t, *errs)
	})

	t.Run("own events are ignored", func(t *testing.T) {
		t.Parallel()

		inv, local, errs := newNode(t)
		inv.HandleMessage(message(t, tagcache.InvalidationEvent{Tag: "users", Sender: "node-b", Action: tagcache.EventInvalidate}))

		assert.True(t, local.Has(ctx, "users:list"))
		assert.Empty(t, *errs)
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()

		inv, local, errs := newNode(t)
		inv.HandleMessage(&nats.Msg{Data: []byte("{not json")})

		assert.Equal(t, 2, local.Len())
		require.Len(t, *errs, 1)
		assert.Contains(t, (*errs)[0].Error(), "failed to decode invalidation event")
	})

	t.Run("unknown action", func(t *testing.T) {
		t.Parallel()

		inv, _, errs := newNode(t)
		inv.HandleMessage(message(t, tagcache.InvalidationEvent{Sender: "node-a", Action: "explode"}))

		require.Len(t, *errs, 1)
		require.ErrorIs(t, (*errs)[0], tagcache.ErrUnknownEventAction)
	})
}

func TestNATSInvalidator_Clear(t *testing.T) {
	t.Parallel()

	local := tagcache.NewMemoryCache(10)
	pub := &recordingPublisher{}
	inv := tagcache.NewNATSInvalidator(local, pub, "", tagcache.WithSender("node-a"))

	ctx := context.Background()
	require.NoError(t, inv.Set(ctx, "k", &tagcache.Entry{Data: []byte("v")}))
	require.NoError(t, inv.Clear(ctx))

	assert.Equal(t, 0, local.Len())
	assert.Equal(t, []tagcache.InvalidationEvent{{Sender: "node-a", Action: tagcache.EventClear}}, pub.events(t))

	require.NoError(t, inv.Close())
}

func TestNewNATSCache_RequiresURL(t *testing.T) {
	t.Parallel()

	_, err := tagcache.NewNATSCache(&tagcache.NATSConfig{})
	require.ErrorIs(t, err, tagcache.ErrNATSConfigRequired)

	_, err = tagcache.NewNATSCache(nil)
	require.ErrorIs(t, err, tagcache.ErrNATSConfigRequired)
}

func TestNATSInvalidator_RemoteInvalidationBumpsVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	inv := tagcache.NewNATSInvalidator(tagcache.NewMemoryCache(10), &recordingPublisher{}, "", tagcache.WithSender("node-b"))

	version := inv.Version(ctx, []string{"users"})

	data, err := json.Marshal(tagcache.InvalidationEvent{Tag: "users", Sender: "node-a", Action: tagcache.EventInvalidate})
	require.NoError(t, err)
	inv.HandleMessage(&nats.Msg{Data: data})

	stored, err := inv.SetIfVersion(ctx, "users:list", &tagcache.Entry{Data: []byte("[]"), Tags: []string{"users"}}, version)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, inv.Has(ctx, "users:list"))

	stored, err = inv.SetIfVersion(ctx, "users:list", &tagcache.Entry{Data: []byte("[]"), Tags: []string{"users"}}, inv.Version(ctx, []string{"users"}))
	require.NoError(t, err)
	assert.True(t, stored)
}
