package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"claims-portal/backend/internal/config"
)

const instrumentationName = "claims-portal/backend/internal/server/middleware"

// Telemetry returns middleware that wraps each request in a span and records a
// request counter and duration histogram. Providers come from the otel globals,
// so with no collector configured everything here is a no-op.
func Telemetry(serviceName string) gin.HandlerFunc {
	tracer := otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)

	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Count of handled HTTP requests"))
	if err != nil {
		config.LogError(config.GetLogger(), "middleware", "Telemetry", "Int64Counter", nil, err)
	}
	duration, err := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"))
	if err != nil {
		config.LogError(config.GetLogger(), "middleware", "Telemetry", "Float64Histogram", nil, err)
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("service.name", serviceName),
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
			),
		)
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		span.End()

		if requests != nil {
			requests.Add(c.Request.Context(), 1, metric.WithAttributes(attrs...))
		}
		if duration != nil {
			duration.Record(c.Request.Context(), float64(time.Since(start).Milliseconds()), metric.WithAttributes(attrs...))
		}
	}
}
