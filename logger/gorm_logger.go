package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger adapts the module logger to gorm's logger.Interface.
// All database logs go through the "sql" module logger.
type GormLogger struct {
	slowThreshold time.Duration
	logLevel      gormlogger.LogLevel
}

// GormLoggerConfig GORM logger configuration
type GormLoggerConfig struct {
	SlowThreshold time.Duration // slow query threshold, default 200ms
	LogLevel      gormlogger.LogLevel
}

// DefaultGormLoggerConfig returns the default configuration
func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		SlowThreshold: 200 * time.Millisecond,
		LogLevel:      gormlogger.Warn,
	}
}

// NewGormLogger creates a GORM logger adapter
func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{
		slowThreshold: cfg.SlowThreshold,
		logLevel:      cfg.LogLevel,
	}
}

// LogMode sets the log level (implements gorm logger.Interface)
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

// Info logs at Info level (implements gorm logger.Interface)
func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= gormlogger.Info {
		GetLogger("sql").InfoCtx(ctx, fmt.Sprintf(msg, data...))
	}
}

// Warn logs at Warn level (implements gorm logger.Interface)
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= gormlogger.Warn {
		GetLogger("sql").WarnCtx(ctx, fmt.Sprintf(msg, data...))
	}
}

// Error logs at Error level (implements gorm logger.Interface)
func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.logLevel >= gormlogger.Error {
		GetLogger("sql").ErrorCtx(ctx, fmt.Sprintf(msg, data...))
	}
}

// Trace records SQL execution (implements gorm logger.Interface)
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && l.logLevel >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		fields = append(fields, zap.Error(err))
		GetLogger("sql").ErrorCtx(ctx, "sql execution failed", fields...)

	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.logLevel >= gormlogger.Warn:
		fields = append(fields, zap.Duration("threshold", l.slowThreshold))
		GetLogger("sql").WarnCtx(ctx, "slow query", fields...)

	case l.logLevel >= gormlogger.Info:
		GetLogger("sql").DebugCtx(ctx, "sql executed", fields...)
	}
}
