package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	incidentapp "github.com/tsafe/backend/internal/application/incident"
	touristapp "github.com/tsafe/backend/internal/application/tourist"
	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/auth"
	"github.com/tsafe/backend/internal/infrastructure/cache"
	"github.com/tsafe/backend/internal/infrastructure/config"
	"github.com/tsafe/backend/internal/infrastructure/logger"
	"github.com/tsafe/backend/internal/infrastructure/persistence"
	"github.com/tsafe/backend/internal/infrastructure/telemetry"
	"github.com/tsafe/backend/internal/interfaces/http/handler"
	"github.com/tsafe/backend/internal/interfaces/http/middleware"
	"github.com/tsafe/backend/internal/interfaces/http/router"

	_ "github.com/tsafe/backend/docs"
)

// Unauthenticated API paths.
var (
	publicPaths    = []string{"/api/v1/system/ping", "/api/v1/system/info"}
	publicPrefixes = []string{"/swagger"}
)

type serverDeps struct {
	tel       *telemetryStack
	db        *persistence.Database
	chain     tourist.Ledger
	stores    *cache.Stores
	tourists  *touristapp.Service
	incidents *incidentapp.Service
}

// newEngine assembles the middleware chain and mounts every route. Global
// middleware runs in this order: request id, recovery, access log, tracing,
// metrics, security headers, CORS, body limit. API routes add JWT auth, span
// attributes, profiling labels and the rate limiter, which keys on the
// authenticated caller.
func newEngine(cfg *config.Config, log *zap.Logger, deps serverDeps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Ignoring invalid trusted proxies", zap.Error(err))
		}
	}

	security := middleware.DefaultSecurityConfig()
	if cfg.IsProduction() {
		security = middleware.ProductionSecurityConfig()
	}
	engine.Use(
		middleware.RequestID(),
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
			MeterProvider: deps.tel.meter,
			ServiceName:   cfg.Telemetry.ServiceName,
			Enabled:       cfg.Telemetry.MetricsEnabled,
		}),
		middleware.SecureWithConfig(security),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
			AllowMethods:     cfg.HTTP.CORSAllowMethods,
			AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders:    middleware.DefaultCORSConfig().ExposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	health := handler.NewHealthHandler(0, healthChecks(deps))
	engine.GET("/health", health.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.tel.registry, promhttp.HandlerOpts{Registry: deps.tel.registry})))

	blacklist := auth.TokenBlacklist(auth.NewInMemoryTokenBlacklist())
	if client := deps.stores.Client(); client != nil {
		blacklist = auth.NewRedisTokenBlacklist(client)
	}
	jwtAuth := middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService:       auth.NewJWTService(cfg.JWT),
		TokenBlacklist:   blacklist,
		SkipPaths:        publicPaths,
		SkipPathPrefixes: publicPrefixes,
		Logger:           log,
	})

	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:     cfg.Swagger.Enabled,
			RequireAuth: cfg.Swagger.RequireAuth,
			AllowedIPs:  cfg.Swagger.AllowedIPs,
		}, jwtAuth),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	api := router.NewRouter(engine, router.WithAPIVersion("v1"))
	api.Use(jwtAuth, middleware.TracingAttributeInjector(), middleware.ProfilingWithConfig(middleware.ProfilingConfig{
		Enabled:          cfg.Profiling.Enabled,
		SkipPaths:        publicPaths[:1],
		SkipPathPrefixes: publicPrefixes,
	}))
	if cfg.HTTP.RateLimitEnabled {
		api.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	handlers := router.Handlers{
		System:   handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion),
		Tourist:  handler.NewTouristHandler(deps.tourists),
		KYC:      handler.NewKYCHandler(deps.tourists),
		Incident: handler.NewIncidentHandler(deps.incidents),
		Worker:   handler.NewWorkerHandler(deps.tourists),
	}
	guards := router.Guards{
		Admin:    middleware.RequireAdmin(log),
		KYCLimit: middleware.KYCRateLimit(middleware.NewRateLimiter(cfg.HTTP.KYCRateLimitRequests, cfg.HTTP.KYCRateLimitWindow)),
	}
	for _, g := range router.APIGroups(handlers, guards) {
		api.Register(g)
	}
	api.Setup()
	return engine
}

func healthChecks(deps serverDeps) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": deps.db.Ping,
		"ledger": func(ctx context.Context) error {
			_, err := deps.chain.NetworkIdentity(ctx)
			return err
		},
	}
	if client := deps.stores.Client(); client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}
