package action_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xjectro/actionkit/pkg/action"
)

func TestAction_Telemetry(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(jsonHandler(t, http.StatusOK, `{"id":1}`))
	defer server.Close()

	recorder := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()

	factory := newFactory(t, server.URL, func(c *action.Config) {
		c.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
		c.MeterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		c.Invalidator = &recordingInvalidator{}
	})

	create := action.MustBuild(factory, action.Descriptor[any, user]{
		Name:     "create-user",
		Endpoint: "/users",
		Tags:     action.Tags{"users", "stats"},
	})

	_, err := create.Invoke(context.Background())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "action.call create-user", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.response.status_code", http.StatusOK))
	assert.Len(t, spans[0].Events(), 2)

	var data metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &data))

	totals := map[string]int64{}

	for _, scope := range data.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, point := range sum.DataPoints {
					totals[m.Name] += point.Value
				}
			}
		}
	}

	assert.Equal(t, int64(1), totals["action.calls.total"])
	assert.Equal(t, int64(2), totals["action.invalidations.total"])
	assert.Zero(t, totals["action.calls.errors"])
}
