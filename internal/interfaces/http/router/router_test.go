package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func echo(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body+c.Param("code")) }
}

func call(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter_Defaults(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouter_MountsEveryVerb(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("/incidents").
		GET("/:code", echo("get ")).
		POST("", echo("post")).
		PUT("/:code", echo("put ")).
		PATCH("/:code/status", echo("patch ")).
		DELETE("/:code", echo("delete "))
	NewRouter(engine, WithAPIVersion("v2")).Register(g).Setup()

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v2/incidents/FIR-2026-000001", "get FIR-2026-000001"},
		{http.MethodPost, "/api/v2/incidents", "post"},
		{http.MethodPut, "/api/v2/incidents/FIR-2026-000002", "put FIR-2026-000002"},
		{http.MethodPatch, "/api/v2/incidents/FIR-2026-000003/status", "patch FIR-2026-000003"},
		{http.MethodDelete, "/api/v2/incidents/FIR-2026-000004", "delete FIR-2026-000004"},
	}
	for _, tt := range tests {
		w := call(engine, tt.method, tt.path)
		assert.Equal(t, http.StatusOK, w.Code, tt.path)
		assert.Equal(t, tt.want, w.Body.String())
	}
	assert.Equal(t, http.StatusNotFound, call(engine, http.MethodGet, "/api/v1/incidents/FIR-2026-000001").Code)
}

func TestRouter_MiddlewareScopes(t *testing.T) {
	mark := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			c.Writer.Header().Add("X-Seen", name)
			c.Next()
		}
	}

	engine := gin.New()
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	admin := NewDomainGroup("/admin").Use(mark("admin")).GET("/ping", echo("pong"))
	admin.Group("/worker").Use(mark("worker")).GET("/status", echo("running"))
	system := NewDomainGroup("/system").GET("/ping", echo("pong"))
	NewRouter(engine).Use(mark("api")).Register(admin).Register(system).Setup()

	tests := []struct {
		path string
		seen []string
	}{
		{"/health", nil},
		{"/api/v1/system/ping", []string{"api"}},
		{"/api/v1/admin/ping", []string{"api", "admin"}},
		{"/api/v1/admin/worker/status", []string{"api", "admin", "worker"}},
	}
	for _, tt := range tests {
		w := call(engine, http.MethodGet, tt.path)
		assert.Equal(t, http.StatusOK, w.Code, tt.path)
		assert.Equal(t, tt.seen, w.Header().Values("X-Seen"), tt.path)
	}
}

func TestDomainGroup_Routes(t *testing.T) {
	noop := func(c *gin.Context) {}
	g := NewDomainGroup("/admin").GET("/ping", noop)
	worker := g.Group("/worker").GET("/status", noop).POST("/start", noop)
	worker.Group("/items").GET("/:id", noop)

	assert.Equal(t, []string{
		"GET /admin/ping",
		"GET /admin/worker/status",
		"POST /admin/worker/start",
		"GET /admin/worker/items/:id",
	}, g.Routes())
}
