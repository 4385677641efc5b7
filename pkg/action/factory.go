package action

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	actionhttp "github.com/xjectro/actionkit/internal/http"
	"github.com/xjectro/actionkit/internal/observe"
	"github.com/xjectro/actionkit/pkg/tagcache"
)

// Config holds configuration for a Factory.
type Config struct {
	// BaseURL is prepended to every descriptor endpoint. It is validated on
	// each call; an empty or malformed value fails with KindConfiguration.
	BaseURL string

	// Timeout bounds the round trip and parsing of each call. Zero means no
	// deadline beyond the caller's context. Invalidation signalling runs
	// after the deadline is released from cancellation.
	Timeout time.Duration

	// Invalidator receives the descriptor tags after every successful call.
	Invalidator tagcache.Invalidator

	// OnInvalidationError, when set, receives the joined invalidation
	// failures of a call. Failures are always logged at warn level.
	OnInvalidationError func(ctx context.Context, action string, err error)

	Logger    Logger
	Debug     bool
	UserAgent string

	// HTTPClient replaces the transport's underlying *http.Client.
	HTTPClient *http.Client

	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor

	// TracerProvider and MeterProvider default to the otel globals.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// transport performs one round trip.
type transport interface {
	Do(ctx context.Context, req *actionhttp.Request) (*actionhttp.Response, error)
}

// Factory builds actions that share a base URL, transport, invalidator and
// telemetry. A Factory is immutable and safe for concurrent use.
type Factory struct {
	baseURL             string
	timeout             time.Duration
	invalidator         tagcache.Invalidator
	onInvalidationError func(ctx context.Context, action string, err error)
	logger              Logger
	transport           transport
	chain               *InterceptorChain
	inst                *observe.Instrumentation
}

// NewFactory creates a factory from config.
func NewFactory(config *Config) (*Factory, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}

	logger := config.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	clientOpts := []actionhttp.Option{
		actionhttp.WithLogger(logger),
		actionhttp.WithDebug(config.Debug),
	}

	if config.UserAgent != "" {
		clientOpts = append(clientOpts, actionhttp.WithUserAgent(config.UserAgent))
	}

	if config.HTTPClient != nil {
		clientOpts = append(clientOpts, actionhttp.WithHTTPClient(config.HTTPClient))
	}

	chain := NewInterceptorChain()
	for _, interceptor := range config.RequestInterceptors {
		chain.AddRequestInterceptor(interceptor)
	}

	for _, interceptor := range config.ResponseInterceptors {
		chain.AddResponseInterceptor(interceptor)
	}

	inst, err := observe.New(config.TracerProvider, config.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation: %w", err)
	}

	return &Factory{
		baseURL:             config.BaseURL,
		timeout:             config.Timeout,
		invalidator:         config.Invalidator,
		onInvalidationError: config.OnInvalidationError,
		logger:              logger,
		transport:           actionhttp.NewClient(clientOpts...),
		chain:               chain,
		inst:                inst,
	}, nil
}

// BaseURL returns the configured base URL.
func (f *Factory) BaseURL() string {
	return f.baseURL
}

// Invalidator returns the configured invalidator, or nil.
func (f *Factory) Invalidator() tagcache.Invalidator {
	return f.invalidator
}

// Logger returns the factory logger.
func (f *Factory) Logger() Logger {
	return f.logger
}
