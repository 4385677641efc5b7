package tagcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/xjectro/actionkit/internal/constants"
)

// Invalidation event actions.
const (
	EventInvalidate = "invalidate"
	EventClear      = "clear"
)

// ErrUnknownEventAction is reported for events with an unrecognised action.
var ErrUnknownEventAction = errors.New("unknown invalidation event action")

// InvalidationEvent is the message broadcast on the invalidation subject.
type InvalidationEvent struct {
	Tag    string `json:"tag,omitempty"`
	Sender string `json:"sender"`
	Action string `json:"action"`
}

// NATSConfig configures NATS invalidation fan-out.
type NATSConfig struct {
	// URL of the NATS server, e.g. "nats://127.0.0.1:4222".
	URL string
	// Subject invalidation events are published on. Defaults to
	// "actionkit.invalidate".
	Subject string
	// Name is the client connection name reported to the server.
	Name string
	// MaxSize bounds the local memory cache.
	MaxSize int
}

// Publisher publishes raw messages. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSInvalidator is a Store backed by a local cache whose invalidations are
// broadcast to, and received from, other processes over NATS.
type NATSInvalidator struct {
	local   Store
	pub     Publisher
	subject string
	sender  string
	onError func(error)

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription
}

// NATSOption configures a NATSInvalidator.
type NATSOption func(*NATSInvalidator)

// WithEventErrorHandler receives errors from malformed or unknown remote events.
func WithEventErrorHandler(fn func(error)) NATSOption {
	return func(n *NATSInvalidator) {
		n.onError = fn
	}
}

// WithSender overrides the generated sender identifier.
func WithSender(sender string) NATSOption {
	return func(n *NATSInvalidator) {
		n.sender = sender
	}
}

// NewNATSInvalidator wraps local and publishes invalidations through pub.
func NewNATSInvalidator(local Store, pub Publisher, subject string, opts ...NATSOption) *NATSInvalidator {
	if subject == "" {
		subject = constants.DefaultInvalidationSubject
	}

	n := &NATSInvalidator{
		local:   local,
		pub:     pub,
		subject: subject,
		sender:  uuid.NewString(),
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// NewNATSCache connects to NATS, creates a local memory cache and starts
// listening for remote invalidations.
func NewNATSCache(config *NATSConfig, opts ...NATSOption) (*NATSInvalidator, error) {
	if config == nil || config.URL == "" {
		return nil, ErrNATSConfigRequired
	}

	natsOpts := []nats.Option{}
	if config.Name != "" {
		natsOpts = append(natsOpts, nats.Name(config.Name))
	}

	conn, err := nats.Connect(config.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", config.URL, err)
	}

	n := NewNATSInvalidator(NewMemoryCache(config.MaxSize), conn, config.Subject, opts...)
	n.conn = conn

	err = n.Listen(conn)
	if err != nil {
		conn.Close()

		return nil, err
	}

	return n, nil
}

// Sender returns the identifier stamped on published events.
func (n *NATSInvalidator) Sender() string {
	return n.sender
}

// Subject returns the subject events are published on.
func (n *NATSInvalidator) Subject() string {
	return n.subject
}

// Invalidate invalidates tag locally, then broadcasts it.
func (n *NATSInvalidator) Invalidate(ctx context.Context, tag string) error {
	err := n.local.Invalidate(ctx, tag)
	if err != nil {
		return err
	}

	return n.publish(ctx, InvalidationEvent{Tag: tag, Action: EventInvalidate})
}

// Clear clears the local cache, then broadcasts the clear.
func (n *NATSInvalidator) Clear(ctx context.Context) error {
	err := n.local.Clear(ctx)
	if err != nil {
		return err
	}

	return n.publish(ctx, InvalidationEvent{Action: EventClear})
}

// Get reads from the local cache.
func (n *NATSInvalidator) Get(ctx context.Context, key string) (*Entry, error) {
	return n.local.Get(ctx, key)
}

// Set writes to the local cache.
func (n *NATSInvalidator) Set(ctx context.Context, key string, entry *Entry) error {
	return n.local.Set(ctx, key, entry)
}

// Delete removes key from the local cache.
func (n *NATSInvalidator) Delete(ctx context.Context, key string) error {
	return n.local.Delete(ctx, key)
}

// Version reads the local cache's invalidation version. Remote invalidations
// applied by the listener count too. It is zero when the local cache is not
// Versioned.
func (n *NATSInvalidator) Version(ctx context.Context, tags []string) uint64 {
	if versioned, ok := n.local.(Versioned); ok {
		return versioned.Version(ctx, tags)
	}

	return 0
}

// SetIfVersion writes to the local cache when its version still matches.
// A local cache that is not Versioned always accepts the write.
func (n *NATSInvalidator) SetIfVersion(ctx context.Context, key string, entry *Entry, version uint64) (bool, error) {
	if versioned, ok := n.local.(Versioned); ok {
		return versioned.SetIfVersion(ctx, key, entry, version)
	}

	err := n.local.Set(ctx, key, entry)

	return err == nil, err
}

// Has checks the local cache.
func (n *NATSInvalidator) Has(ctx context.Context, key string) bool {
	return n.local.Has(ctx, key)
}

// Listen subscribes to the invalidation subject on conn.
func (n *NATSInvalidator) Listen(conn *nats.Conn) error {
	sub, err := conn.Subscribe(n.subject, n.HandleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", n.subject, err)
	}

	n.mu.Lock()
	n.sub = sub
	n.mu.Unlock()

	return nil
}

// HandleMessage applies a remote invalidation event to the local cache.
// Events published by this invalidator are ignored.
func (n *NATSInvalidator) HandleMessage(msg *nats.Msg) {
	err := n.apply(context.Background(), msg.Data)
	if err != nil && n.onError != nil {
		n.onError(err)
	}
}

// Close unsubscribes and, when the connection was opened by NewNATSCache,
// drains it.
func (n *NATSInvalidator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error

	if n.sub != nil {
		errs = append(errs, n.sub.Unsubscribe())
		n.sub = nil
	}

	if n.conn != nil {
		errs = append(errs, n.conn.Drain())
		n.conn = nil
	}

	return errors.Join(errs...)
}

func (n *NATSInvalidator) apply(ctx context.Context, data []byte) error {
	var event InvalidationEvent

	err := json.Unmarshal(data, &event)
	if err != nil {
		return fmt.Errorf("failed to decode invalidation event: %w", err)
	}

	if event.Sender == n.sender {
		return nil
	}

	switch event.Action {
	case EventInvalidate:
		return n.local.Invalidate(ctx, event.Tag)
	case EventClear:
		return n.local.Clear(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventAction, event.Action)
	}
}

func (n *NATSInvalidator) publish(ctx context.Context, event InvalidationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event.Sender = n.sender

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode invalidation event: %w", err)
	}

	err = n.pub.Publish(n.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish invalidation for %q: %w", event.Tag, err)
	}

	return nil
}

var (
	_ Store     = (*NATSInvalidator)(nil)
	_ Versioned = (*NATSInvalidator)(nil)
)
