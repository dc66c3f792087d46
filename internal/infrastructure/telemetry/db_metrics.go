package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSlowQueryThreshold = 200 * time.Millisecond

// DBMetricsConfig holds database metrics configuration.
type DBMetricsConfig struct {
	Enabled            bool
	SlowQueryThreshold time.Duration
}

// DBMetrics is a gorm plugin counting statements by verb and timing them.
// Pool state is observed on each metric collection rather than polled.
type DBMetrics struct {
	queries     *Counter
	slowQueries *Counter
	latency     *Histogram

	slowAfter time.Duration
	logger    *zap.Logger
	pool      metric.Registration
}

// NewDBMetrics creates the statement instruments on meter.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &DBMetrics{slowAfter: cfg.SlowQueryThreshold, logger: logger}
	if m.slowAfter <= 0 {
		m.slowAfter = defaultSlowQueryThreshold
	}

	var err error
	if m.queries, err = NewCounter(meter, "db_query_total", "Database statements by operation", "{query}"); err != nil {
		return nil, err
	}
	if m.slowQueries, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the slow query threshold", "{query}"); err != nil {
		return nil, err
	}
	m.latency, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// observePool reports sqlDB.Stats() whenever the reader collects.
func (m *DBMetrics) observePool(meter metric.Meter, sqlDB *sql.DB) error {
	conns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"), metric.WithUnit("{connection}"))
	if err != nil {
		return instrumentError("gauge", "db_pool_connections", err)
	}
	limit, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum open connections"), metric.WithUnit("{connection}"))
	if err != nil {
		return instrumentError("gauge", "db_pool_connections_max", err)
	}

	m.pool, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := sqlDB.Stats()
		o.ObserveInt64(limit, int64(s.MaxOpenConnections))
		o.ObserveInt64(conns, int64(s.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		o.ObserveInt64(conns, int64(s.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(conns, int64(s.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		return nil
	}, conns, limit)
	return err
}

// RecordQuery records one statement. operation is normalised to upper case
// and an empty table is reported as "unknown" on slow statements.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, took time.Duration) {
	op := AttrDBOperation.String("UNKNOWN")
	if operation != "" {
		op = AttrDBOperation.String(strings.ToUpper(operation))
	}
	m.queries.Inc(ctx, op)
	m.latency.RecordDuration(ctx, took, op)

	if took <= m.slowAfter {
		return
	}
	if table == "" {
		table = "unknown"
	}
	m.slowQueries.Inc(ctx, AttrDBTable.String(table))
}

// Close stops observing the pool.
func (m *DBMetrics) Close() error {
	if m.pool == nil {
		return nil
	}
	return m.pool.Unregister()
}

func (m *DBMetrics) Name() string {
	return "db_metrics"
}

func (m *DBMetrics) Initialize(db *gorm.DB) error {
	return registerAround(db, "db_metrics", markQueryStart, func(tx *gorm.DB, op string) {
		ctx := tx.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		if op == "" {
			op = DetectOperation(tx.Statement.SQL.String())
		}
		took, _ := queryElapsed(ctx)
		m.RecordQuery(ctx, op, tx.Statement.Table, took)
	})
}

// DetectOperation returns the leading SQL verb of a statement, or OTHER.
func DetectOperation(statement string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(statement), " ")
	switch verb := strings.ToUpper(head); verb {
	case "SELECT", "INSERT", "UPDATE", "DELETE":
		return verb
	}
	return "OTHER"
}

// RegisterDBMetrics installs the plugin on db and starts observing its pool.
// It returns nil when metrics are disabled.
func RegisterDBMetrics(db *gorm.DB, mp *MeterProvider, cfg DBMetricsConfig, logger *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled || mp == nil || !mp.IsEnabled() {
		return nil, nil
	}
	meter := mp.Meter("db.client")
	m, err := NewDBMetrics(meter, cfg, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := m.observePool(meter, sqlDB); err != nil {
		return nil, err
	}
	if err := db.Use(m); err != nil {
		return nil, err
	}
	m.logger.Info("Database metrics registered", zap.Duration("slow_query_threshold", m.slowAfter))
	return m, nil
}
