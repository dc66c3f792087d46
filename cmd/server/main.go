package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	incidentapp "github.com/tsafe/backend/internal/application/incident"
	touristapp "github.com/tsafe/backend/internal/application/tourist"
	"github.com/tsafe/backend/internal/infrastructure/config"
	"github.com/tsafe/backend/internal/infrastructure/event"
	"github.com/tsafe/backend/internal/infrastructure/ledger"
	"github.com/tsafe/backend/internal/infrastructure/logger"
	"github.com/tsafe/backend/internal/infrastructure/onchain"
	"github.com/tsafe/backend/internal/infrastructure/persistence"
	"github.com/tsafe/backend/internal/infrastructure/telemetry"
)

//	@title			Tourist Safety API
//	@version		1.0
//	@description	Tourist digital identity, KYC, SOS and incident reporting with on-chain anchoring.

//	@contact.name	API Support

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tsafe-backend:", err)
		os.Exit(1)
	}
}

// cleanupStack releases resources in reverse order of acquisition.
type cleanupStack struct {
	log   *zap.Logger
	names []string
	steps []func(context.Context) error
}

func (s *cleanupStack) push(name string, step func(context.Context) error) {
	s.names = append(s.names, name)
	s.steps = append(s.steps, step)
}

func (s *cleanupStack) run(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for i := len(s.steps) - 1; i >= 0; i-- {
		if err := s.steps[i](ctx); err != nil {
			s.log.Error("Shutdown step failed", zap.String("step", s.names[i]), zap.Error(err))
		}
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: time.RFC3339Nano,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting Tourist Safety backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	cleanup := &cleanupStack{log: log}
	defer cleanup.run(cfg.HTTP.ShutdownTimeout)

	// Components outlive the signal: in-flight passes still publish while
	// the worker drains.
	ctx := context.Background()

	tel, err := setupTelemetry(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	cleanup.push("telemetry", tel.shutdown)
	if tel.logs.IsEnabled() {
		log = tel.logs.Bridge(log, zapcore.InfoLevel)
	}

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level)))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	cleanup.push("database", func(context.Context) error { return db.Close() })
	log.Info("Database connected")

	err = telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log).RegisterOtelGorm(db.DB)
	if err != nil {
		log.Warn("Database tracing unavailable", zap.Error(err))
	}
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, tel.meter, telemetry.DBMetricsConfig{
		Enabled:            cfg.Telemetry.MetricsEnabled,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	switch {
	case err != nil:
		log.Warn("Database metrics unavailable", zap.Error(err))
	case dbMetrics != nil:
		cleanup.push("db metrics", func(context.Context) error { return dbMetrics.Close() })
	}

	touristRepo := persistence.NewGormTouristRepository(db.DB)
	incidentRepo := persistence.NewGormIncidentRepository(db.DB)

	vault, err := newVault(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("payload vault: %w", err)
	}
	stores, err := newStores(cfg, log)
	if err != nil {
		return fmt.Errorf("stores: %w", err)
	}
	cleanup.push("stores", func(context.Context) error { return stores.Close() })

	chain, err := ledger.New(ctx, cfg.Ledger, log)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if closer, ok := chain.(interface{ Close() }); ok {
		cleanup.push("ledger", func(context.Context) error { closer.Close(); return nil })
	}

	workerCfg, err := onchain.ConfigFromSettings(cfg.Worker, cfg.Ledger)
	if err != nil {
		return fmt.Errorf("worker configuration: %w", err)
	}
	bus := event.NewTransitionBus(ctx, cfg.Kafka, log)
	cleanup.push("event bus", func(context.Context) error { return bus.Close() })
	worker, err := onchain.NewWorker(touristRepo, chain, workerCfg, log,
		onchain.WithPublisher(bus),
		onchain.WithMetrics(onchain.NewMetrics(tel.registry)),
	)
	if err != nil {
		return fmt.Errorf("onchain worker: %w", err)
	}

	touristMetrics, err := telemetry.NewTouristMetrics(telemetry.TouristMetricsConfig{
		Meter:           tel.meter.Meter("tsafe.tourist"),
		Logger:          log,
		Source:          touristRepo,
		CollectInterval: cfg.Telemetry.MetricsInterval,
	})
	if err != nil {
		return fmt.Errorf("tourist metrics: %w", err)
	}
	if tel.meter.IsEnabled() {
		touristMetrics.StartPeriodicCollection(ctx)
	}
	cleanup.push("tourist metrics", func(context.Context) error { touristMetrics.Stop(); return nil })

	touristCfg := touristapp.DefaultConfig()
	touristCfg.OTPTTL = cfg.KYC.OTPTTL
	touristCfg.DemoMode = cfg.KYC.DemoMode
	touristCfg.IdempotencyTTL = cfg.Idempotency.TTL
	touristCfg.AutostartWorker = cfg.Worker.Enabled
	touristOpts := []touristapp.Option{touristapp.WithWorker(worker), touristapp.WithMetrics(touristMetrics)}
	if cfg.Idempotency.Enabled {
		touristOpts = append(touristOpts, touristapp.WithIdempotencyStore(stores.Idempotency))
	}
	touristService := touristapp.NewService(touristRepo, vault, stores.Challenges, touristCfg, log, touristOpts...)
	incidentService := incidentapp.NewService(incidentRepo, touristRepo, vault, log,
		incidentapp.WithPanicRecorder(touristService),
		incidentapp.WithMetrics(touristMetrics),
	)

	if cfg.Worker.Enabled {
		if err := worker.Start(ctx); err != nil {
			return fmt.Errorf("start onchain worker: %w", err)
		}
	} else {
		log.Info("Onchain worker autostart disabled; start it from the admin API")
	}
	// Stop is a no-op for a worker that never started.
	cleanup.push("onchain worker", worker.Stop)

	engine := newEngine(cfg, log, serverDeps{
		tel:       tel,
		db:        db,
		chain:     chain,
		stores:    stores,
		tourists:  touristService,
		incidents: incidentService,
	})
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}
	cleanup.push("http server", srv.Shutdown)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-sigCtx.Done():
		log.Info("Shutting down")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	}
}
