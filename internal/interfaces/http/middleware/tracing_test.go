package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

const sampleTouristID = "5f0c7a9e-3b1d-4c2a-9e8f-1a2b3c4d5e6f"

// recordSpans installs a recording tracer provider for the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(t.Context()) })
	return sr
}

func endedSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	t.Fatalf("span %q not recorded", name)
	return nil
}

func attrMap(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	sr := recordSpans(t)

	w := serve(TracingWithConfig(TracingConfig{Enabled: false}), http.MethodGet, "/api/v1/system/ping", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracingWithConfig_SpanAttributes(t *testing.T) {
	sr := recordSpans(t)

	router := gin.New()
	router.Use(RequestID(), TracingWithConfig(DefaultTracingConfig()), func(c *gin.Context) {
		c.Set(JWTUserIDKey, "7d1e0c55-0000-4000-8000-000000000001")
		c.Set(JWTIsAdminKey, true)
		c.Next()
	}, TracingAttributeInjector())
	router.POST("/api/v1/tourists/:id/panic", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tourists/"+sampleTouristID+"/panic", nil)
	req.Header.Set(RequestIDHeader, "trace-req-1")
	req.Header.Set(IdempotencyKeyHeader, "retry-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	attrs := attrMap(endedSpan(t, sr, "POST /api/v1/tourists/:id/panic"))
	assert.Equal(t, "trace-req-1", attrs["request_id"].AsString())
	assert.Equal(t, "7d1e0c55-0000-4000-8000-000000000001", attrs["user_id"].AsString())
	assert.Equal(t, CallerRoleAdmin, attrs["caller_role"].AsString())
	assert.Equal(t, sampleTouristID, attrs["tourist.id"].AsString())
	assert.True(t, attrs["idempotency.key_present"].AsBool())
}

func TestTracingWithConfig_AnonymousCaller(t *testing.T) {
	sr := recordSpans(t)

	w := serve(TracingWithConfig(DefaultTracingConfig()), http.MethodGet, "/api/v1/system/ping", nil)
	require.Equal(t, http.StatusOK, w.Code)

	attrs := attrMap(endedSpan(t, sr, "GET /api/v1/system/ping"))
	assert.Equal(t, CallerRoleAnonymous, attrs["caller_role"].AsString())
	assert.False(t, attrs["idempotency.key_present"].AsBool())
	assert.NotContains(t, attrs, attribute.Key("user_id"))
	assert.NotContains(t, attrs, attribute.Key("tourist.id"))
}

func TestSpanErrorMarker(t *testing.T) {
	tests := []struct {
		status      int
		wantError   bool
		description string
	}{
		{http.StatusOK, false, ""},
		{http.StatusCreated, false, ""},
		{http.StatusBadRequest, true, "Client Error"},
		{http.StatusUnauthorized, true, "Unauthorized"},
		{http.StatusForbidden, true, "Forbidden"},
		{http.StatusNotFound, true, "Not Found"},
		{http.StatusConflict, true, "Conflict"},
		{http.StatusTooManyRequests, true, "Rate Limited"},
		{http.StatusBadGateway, true, ""},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			sr := recordSpans(t)

			router := gin.New()
			router.Use(TracingWithConfig(TracingConfig{Enabled: true, ServiceName: "tsafe-test"}), SpanErrorMarker())
			router.POST("/api/v1/tourists", func(c *gin.Context) { c.JSON(tt.status, gin.H{}) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/tourists", nil))
			require.Equal(t, tt.status, w.Code)

			span := endedSpan(t, sr, "POST /api/v1/tourists")
			if !tt.wantError {
				assert.NotEqual(t, codes.Error, span.Status().Code)
				return
			}
			assert.Equal(t, codes.Error, span.Status().Code)
			// otelgin may overwrite the description for server errors
			if tt.description != "" {
				assert.Equal(t, tt.description, span.Status().Description)
			}
		})
	}
}

func TestSpanErrorDescription(t *testing.T) {
	assert.Equal(t, "Internal Server Error", spanErrorDescription(http.StatusServiceUnavailable))
	assert.Equal(t, "Client Error", spanErrorDescription(http.StatusUnprocessableEntity))
}

func TestMiddlewareWithoutRecordingSpan(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())

	router := gin.New()
	router.Use(SpanErrorMarker(), TracingAttributeInjector())
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestIDFrom(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, requestIDFrom(c))

	c.Request.Header.Set(RequestIDHeader, strings.Repeat("r", 300))
	assert.Len(t, requestIDFrom(c), MaxRequestIDLength)

	c.Set(RequestIDKey, "stored")
	assert.Equal(t, "stored", requestIDFrom(c))
}

func TestPathTouristID(t *testing.T) {
	tests := []struct {
		route string
		path  string
		want  string
	}{
		{"/api/v1/tourists/:id", "/api/v1/tourists/" + sampleTouristID, sampleTouristID},
		{"/api/v1/tourists/:id/score", "/api/v1/tourists/" + sampleTouristID + "/score", sampleTouristID},
		{"/api/v1/tourists/:id", "/api/v1/tourists/not-a-uuid", ""},
		{"/api/v1/incidents/:id", "/api/v1/incidents/" + sampleTouristID, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var got string
			router := gin.New()
			router.GET(tt.route, func(c *gin.Context) { got = pathTouristID(c) })
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsCanonicalUUID(t *testing.T) {
	tests := map[string]bool{
		sampleTouristID:                          true,
		strings.ToUpper(sampleTouristID):         true,
		"5f0c7a9e3b1d4c2a9e8f1a2b3c4d5e6f":       false,
		"{5f0c7a9e-3b1d-4c2a-9e8f-1a2b3c4d5e6f}": false,
		"<script>alert(1)</script>":              false,
		"5f0c7a9e-3b1d-4c2a-9e8f-1a2b3c4d5e6g":   false,
		"":                                       false,
	}
	for id, want := range tests {
		assert.Equal(t, want, isCanonicalUUID(id), id)
	}
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()

	assert.Equal(t, "tsafe-backend", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
}
