// Package observe records OpenTelemetry spans and metrics for action calls.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName identifies the tracer and meter.
const InstrumentationName = "github.com/xjectro/actionkit"

// Metric names.
const (
	MetricCalls         = "action.calls.total"
	MetricErrors        = "action.calls.errors"
	MetricDuration      = "action.call.duration_ms"
	MetricInvalidations = "action.invalidations.total"
)

// Meta describes the action being observed.
type Meta struct {
	Name     string
	Method   string
	Endpoint string
}

// SpanName returns the span name for the action.
func (m Meta) SpanName() string {
	return "action.call " + m.Name
}

func (m Meta) attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("action.name", m.Name),
		attribute.String("http.request.method", m.Method),
		attribute.String("action.endpoint", m.Endpoint),
	}
}

// Instrumentation owns the tracer and instruments.
//
// Safe for concurrent use.
type Instrumentation struct {
	tracer        trace.Tracer
	calls         metric.Int64Counter
	errors        metric.Int64Counter
	invalidations metric.Int64Counter
	duration      metric.Float64Histogram
}

// New creates instrumentation from the given providers. Nil providers fall
// back to the global ones, which are no-ops unless the application installed
// an SDK.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Instrumentation, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(InstrumentationName)

	calls, err := meter.Int64Counter(MetricCalls,
		metric.WithDescription("Total number of action calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(MetricErrors,
		metric.WithDescription("Total number of failed action calls"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	invalidations, err := meter.Int64Counter(MetricInvalidations,
		metric.WithDescription("Total number of cache tag invalidations signalled"),
		metric.WithUnit("{tag}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Action call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Instrumentation{
		tracer:        tp.Tracer(InstrumentationName),
		calls:         calls,
		errors:        errorCount,
		invalidations: invalidations,
		duration:      duration,
	}, nil
}

// Call tracks one in-flight action call.
type Call struct {
	inst   *Instrumentation
	span   trace.Span
	meta   Meta
	start  time.Time
	status int
}

// Start opens a span for the call.
func (i *Instrumentation) Start(ctx context.Context, meta Meta) (context.Context, *Call) {
	ctx, span := i.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attributes()...),
		trace.WithSpanKind(trace.SpanKindClient),
	)

	return ctx, &Call{inst: i, span: span, meta: meta, start: time.Now()}
}

// SetStatus records the HTTP status code of the round trip.
func (c *Call) SetStatus(status int) {
	c.status = status
	c.span.SetAttributes(attribute.Int("http.response.status_code", status))
}

// End closes the span and records metrics. errorKind is empty on success.
func (c *Call) End(ctx context.Context, errorKind string, err error) {
	attrs := c.meta.attributes()
	if c.status != 0 {
		attrs = append(attrs, attribute.Int("http.response.status_code", c.status))
	}

	if err != nil {
		attrs = append(attrs, attribute.String("error.type", errorKind))
		c.span.SetAttributes(attribute.String("error.type", errorKind))
		c.span.SetStatus(codes.Error, err.Error())
		c.span.RecordError(err)
	} else {
		c.span.SetStatus(codes.Ok, "")
	}

	opt := metric.WithAttributes(attrs...)

	c.inst.calls.Add(ctx, 1, opt)

	if err != nil {
		c.inst.errors.Add(ctx, 1, opt)
	}

	c.inst.duration.Record(ctx, float64(time.Since(c.start).Microseconds())/1000.0, opt)
	c.span.End()
}

// RecordInvalidation counts one tag invalidation signal.
func (c *Call) RecordInvalidation(ctx context.Context, tag string, err error) {
	c.span.AddEvent("invalidate", trace.WithAttributes(
		attribute.String("cache.tag", tag),
		attribute.Bool("cache.invalidation.failed", err != nil),
	))

	c.inst.invalidations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action.name", c.meta.Name),
		attribute.Bool("cache.invalidation.failed", err != nil),
	))
}
