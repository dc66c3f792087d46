package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// maxSQLLength bounds the statement text attached to a log entry.
const maxSQLLength = 2048

// GormLogger routes GORM output through zap. Statements log at debug, slow
// statements at warn and failures at error, each carrying the request and
// tourist ids found on the context.
type GormLogger struct {
	logger       *zap.Logger
	logLevel     gormlogger.LogLevel
	slowAfter    time.Duration
	keepNotFound bool
}

type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the slow statement threshold; zero disables it.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slowAfter = threshold }
}

// WithIgnoreRecordNotFoundError drops gorm.ErrRecordNotFound failures when
// ignore is set, which is the default.
func WithIgnoreRecordNotFoundError(ignore bool) GormLoggerOption {
	return func(l *GormLogger) { l.keepNotFound = !ignore }
}

func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{
		logger:    zapLogger.Named("gorm").WithOptions(zap.AddCallerSkip(3)),
		logLevel:  level,
		slowAfter: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

func (l *GormLogger) Info(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(_ context.Context, msg string, data ...any) {
	l.printf(gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) printf(min gormlogger.LogLevel, lvl zapcore.Level, msg string, data []any) {
	if l.logLevel < min {
		return
	}
	if ce := l.logger.Check(lvl, fmt.Sprintf(msg, data...)); ce != nil {
		ce.Write()
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)

	var lvl zapcore.Level
	var msg string
	switch {
	case l.logLevel <= gormlogger.Silent:
		return
	case err != nil:
		if l.logLevel < gormlogger.Error || (!l.keepNotFound && errors.Is(err, gormlogger.ErrRecordNotFound)) {
			return
		}
		lvl, msg = zapcore.ErrorLevel, "Query failed"
	case l.slowAfter > 0 && elapsed > l.slowAfter:
		if l.logLevel < gormlogger.Warn {
			return
		}
		lvl, msg = zapcore.WarnLevel, "Slow query"
	default:
		if l.logLevel < gormlogger.Info {
			return
		}
		lvl, msg = zapcore.DebugLevel, "Query"
	}

	ce := l.logger.Check(lvl, msg)
	if ce == nil {
		return
	}
	sql, rows := fc()
	if len(sql) > maxSQLLength {
		sql = sql[:maxSQLLength] + "..."
	}
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	}
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetTouristID(ctx); id != "" {
		fields = append(fields, zap.String("tourist_id", id))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if lvl == zapcore.WarnLevel {
		fields = append(fields, zap.Duration("threshold", l.slowAfter))
	}
	ce.Write(fields...)
}

// MapGormLogLevel translates the application log level. Statement logging
// only happens at debug or info.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
