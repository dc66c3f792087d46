// Package middleware provides the gin middleware stack for the tourist safety API.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tsafe/backend/internal/infrastructure/telemetry"
)

// HTTPMetricsConfig holds configuration for HTTP metrics middleware.
type HTTPMetricsConfig struct {
	MeterProvider *telemetry.MeterProvider
	ServiceName   string
	Enabled       bool
}

// DefaultHTTPMetricsConfig returns default HTTP metrics configuration.
func DefaultHTTPMetricsConfig() HTTPMetricsConfig {
	return HTTPMetricsConfig{
		ServiceName: "tsafe-backend",
		Enabled:     true,
	}
}

// Caller roles recorded on the request counter. Bounded so the series count
// does not grow with the user base.
const (
	CallerRoleAnonymous = "anonymous"
	CallerRoleTourist   = "tourist"
	CallerRoleAdmin     = "admin"
)

// AttrCallerRole labels requests by the authenticated caller's role.
var AttrCallerRole = attribute.Key("caller_role")

var (
	requestSizeBuckets  = []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000}
	responseSizeBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 1000000, 5000000}
)

type httpMetrics struct {
	requests     *telemetry.Counter
	duration     *telemetry.Histogram
	requestSize  *telemetry.Histogram
	responseSize *telemetry.Histogram
	inFlight     metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	m := &httpMetrics{}
	var err error

	if m.requests, err = telemetry.NewCounter(meter,
		"http_server_request_total", "Total number of HTTP requests", "{request}"); err != nil {
		return nil, err
	}

	histograms := []struct {
		dst  **telemetry.Histogram
		opts telemetry.HistogramOpts
	}{
		{&m.duration, telemetry.HistogramOpts{
			Name: "http_server_request_duration_seconds", Description: "HTTP request latency in seconds",
			Unit: "s", Boundaries: telemetry.HTTPDurationBuckets,
		}},
		{&m.requestSize, telemetry.HistogramOpts{
			Name: "http_server_request_size_bytes", Description: "HTTP request body size in bytes",
			Unit: "By", Boundaries: requestSizeBuckets,
		}},
		{&m.responseSize, telemetry.HistogramOpts{
			Name: "http_server_response_size_bytes", Description: "HTTP response body size in bytes",
			Unit: "By", Boundaries: responseSizeBuckets,
		}},
	}
	for _, h := range histograms {
		if *h.dst, err = telemetry.NewHistogram(meter, h.opts); err != nil {
			return nil, err
		}
	}

	if m.inFlight, err = meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("Number of HTTP requests in flight"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func passThrough(c *gin.Context) { c.Next() }

// HTTPMetrics records request count, latency, body sizes and in-flight
// requests. Counts are labelled by method, route pattern, status and caller
// role; the histograms only by method and route.
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.MeterProvider == nil || !cfg.MeterProvider.IsEnabled() {
		return passThrough
	}
	return HTTPMetricsWithMeter(cfg.MeterProvider.Meter("http.server"), true)
}

// HTTPMetricsWithMeter is HTTPMetrics against an explicit meter.
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled {
		return passThrough
	}
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return passThrough
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		reqSize := getRequestSize(c)

		m.inFlight.Add(ctx, 1)
		c.Next()
		m.inFlight.Add(ctx, -1)

		method := telemetry.AttrHTTPMethod.String(c.Request.Method)
		route := telemetry.AttrHTTPRoute.String(getRoutePattern(c))

		m.requests.Inc(ctx, method, route,
			telemetry.AttrHTTPStatusCode.Int(c.Writer.Status()),
			AttrCallerRole.String(getCallerRole(c)),
		)
		m.duration.RecordDuration(ctx, time.Since(start), method, route)
		if reqSize > 0 {
			m.requestSize.Record(ctx, float64(reqSize), method, route)
		}
		if respSize := c.Writer.Size(); respSize > 0 {
			m.responseSize.Record(ctx, float64(respSize), method, route)
		}
	}
}

// getRoutePattern returns the matched route ("/api/v1/tourists/:id") so path
// parameters do not explode cardinality.
func getRoutePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

func getRequestSize(c *gin.Context) int64 {
	if cl := c.Request.ContentLength; cl > 0 {
		return cl
	}
	return 0
}

// getCallerRole derives the caller role from claims set by the JWT middleware.
func getCallerRole(c *gin.Context) string {
	switch {
	case GetJWTUserID(c) == "":
		return CallerRoleAnonymous
	case GetJWTIsAdmin(c):
		return CallerRoleAdmin
	default:
		return CallerRoleTourist
	}
}
