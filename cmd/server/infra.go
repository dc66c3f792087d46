package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/infrastructure/cache"
	"github.com/tsafe/backend/internal/infrastructure/config"
	"github.com/tsafe/backend/internal/infrastructure/crypto"
	"github.com/tsafe/backend/internal/infrastructure/storage"
	"github.com/tsafe/backend/internal/infrastructure/telemetry"
)

// telemetryStack holds the process-wide observability providers.
type telemetryStack struct {
	tracer   *telemetry.TracerProvider
	meter    *telemetry.MeterProvider
	logs     *telemetry.LoggerProvider
	profiler *telemetry.Profiler
	registry *prometheus.Registry
}

func setupTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) (*telemetryStack, error) {
	t := &telemetryStack{registry: prometheus.NewRegistry()}
	t.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var err error
	t.tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("tracer provider: %w", err)
	}
	t.meter, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("meter provider: %w", err)
	}
	t.logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("logger provider: %w", err)
	}
	t.profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("profiler: %w", err)
	}
	if t.profiler.IsEnabled() && t.tracer.IsEnabled() {
		t.tracer.EnableSpanProfiles()
	}
	return t, nil
}

// shutdown stops the profiler and flushes the exporters.
func (t *telemetryStack) shutdown(ctx context.Context) error {
	return errors.Join(
		t.profiler.Stop(),
		t.logs.Shutdown(ctx),
		t.meter.Shutdown(ctx),
		t.tracer.Shutdown(ctx),
	)
}

// newVault seals payloads before they reach the configured blob store.
func newVault(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage.Vault, error) {
	sealer, err := crypto.NewPayloadSealer(cfg.Crypto.PayloadSecret, cfg.Crypto.KeyID)
	if err != nil {
		return nil, err
	}
	blobs, err := storage.NewBlobStore(ctx, &cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	return storage.NewVault(blobs, sealer), nil
}

func newStores(cfg *config.Config, log *zap.Logger) (*cache.Stores, error) {
	factory := cache.NewStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.Idempotency.AllowInMemory),
	)
	return factory.CreateStores()
}
