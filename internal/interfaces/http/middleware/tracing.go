// Package middleware provides HTTP middleware for the procurement service.
package middleware

import (
	"net/http"

	"github.com/erp/procurement/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxHeaderAttrLength caps header values copied into span attributes
const MaxHeaderAttrLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "procurement",
		Enabled:     true,
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig returns the otelgin middleware. Span names follow
// "METHOD route" (e.g. "POST /api/v1/orders/:id/receipts"). Use
// TracingAttributeInjector after it to add request attributes.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// TracingAttributeInjector adds request_id, order_id and idempotency_key to
// the span otelgin started. It must run after Tracing and RequestID.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpanWithAttributes(c, span)
		}
		c.Next()
	}
}

func enrichSpanWithAttributes(c *gin.Context, span trace.Span) {
	if requestID := truncate(GetRequestID(c)); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	// Only well-formed ids are recorded so arbitrary path text stays out of traces
	if id, err := uuid.Parse(c.Param("id")); err == nil {
		span.SetAttributes(attribute.String(telemetry.SpanAttrOrderID, id.String()))
	}
	if key := truncate(c.GetHeader(IdempotencyKeyHeader)); key != "" {
		span.SetAttributes(attribute.String(telemetry.SpanAttrIdempotencyKey, key))
	}
}

func truncate(v string) string {
	if len(v) > MaxHeaderAttrLength {
		return v[:MaxHeaderAttrLength]
	}
	return v
}

// SpanErrorMarker marks the span with error status for 4xx and 5xx
// responses. Receipt rejections (422) are recorded the same way so they
// can be found in traces. Place it after Tracing.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}

		var errorMessage string
		switch {
		case statusCode >= http.StatusInternalServerError:
			errorMessage = "Internal Server Error"
		case statusCode == http.StatusNotFound:
			errorMessage = "Not Found"
		case statusCode == http.StatusConflict:
			errorMessage = "Conflict"
		case statusCode == http.StatusUnprocessableEntity:
			errorMessage = "Rejected"
		default:
			errorMessage = "Client Error"
		}
		span.SetStatus(codes.Error, errorMessage)
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
}
