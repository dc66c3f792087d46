package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tsafe/backend/internal/infrastructure/telemetry"
)

// MaxRequestIDLength caps client supplied request ids before they reach
// span attributes or error bodies.
const MaxRequestIDLength = 128

// IdempotencyKeyHeader carries the client's retry key on mutating requests.
const IdempotencyKeyHeader = "Idempotency-Key"

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "tsafe-backend",
		Enabled:     true,
	}
}

// TracingWithConfig opens a server span per request through otelgin, named
// "METHOD route" (e.g. "GET /api/v1/tourists/:id"). The span carries
// request_id, caller_role, tourist.id for tourist routes, and whether an
// Idempotency-Key was sent. Claims set by later middleware are added by
// TracingAttributeInjector.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passThrough
	}

	otelMiddleware := otelgin.Middleware(cfg.ServiceName)
	return func(c *gin.Context) {
		otelMiddleware(c)
		annotateSpan(c)
	}
}

// TracingAttributeInjector re-annotates the request span once JWT auth has
// populated the caller. Register it after the auth middleware.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		annotateSpan(c)
		c.Next()
	}
}

func annotateSpan(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("caller_role", getCallerRole(c)),
		attribute.Bool(telemetry.SpanAttrIdempotency, c.GetHeader(IdempotencyKeyHeader) != ""),
	}
	if id := requestIDFrom(c); id != "" {
		attrs = append(attrs, attribute.String("request_id", id))
	}
	if userID := GetJWTUserID(c); userID != "" {
		attrs = append(attrs, attribute.String("user_id", userID))
	}
	if touristID := pathTouristID(c); touristID != "" {
		attrs = append(attrs, attribute.String(telemetry.SpanAttrTouristID, touristID))
	}
	span.SetAttributes(attrs...)
}

// requestIDFrom prefers the id stored by RequestID and falls back to the
// truncated header.
func requestIDFrom(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	id := c.GetHeader(RequestIDHeader)
	if len(id) > MaxRequestIDLength {
		id = id[:MaxRequestIDLength]
	}
	return id
}

// pathTouristID returns the :id of a tourist route when it is a canonical
// UUID, so arbitrary path input never lands in trace data.
func pathTouristID(c *gin.Context) string {
	if !strings.HasPrefix(c.FullPath(), "/api/v1/tourists/:id") {
		return ""
	}
	id := c.Param("id")
	if !isCanonicalUUID(id) {
		return ""
	}
	return id
}

func isCanonicalUUID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// SpanErrorMarker marks the request span as failed for 4xx and 5xx
// responses. It must run inside TracingWithConfig.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}
		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetStatus(codes.Error, spanErrorDescription(status))
		span.SetAttributes(attribute.Int("http.status_code", status))
	}
}

func spanErrorDescription(status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "Internal Server Error"
	case status == http.StatusUnauthorized:
		return "Unauthorized"
	case status == http.StatusForbidden:
		return "Forbidden"
	case status == http.StatusNotFound:
		return "Not Found"
	case status == http.StatusConflict:
		return "Conflict"
	case status == http.StatusTooManyRequests:
		return "Rate Limited"
	default:
		return "Client Error"
	}
}
