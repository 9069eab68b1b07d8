package database

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ZapGormLogger implements gorm's logger.Interface on top of zap.
type ZapGormLogger struct {
	log           *zap.Logger
	LogLevel      gormlogger.LogLevel
	SlowThreshold time.Duration
}

func NewZapGormLogger(log *zap.Logger, level gormlogger.LogLevel, slowThreshold time.Duration) *ZapGormLogger {
	return &ZapGormLogger{log: log, LogLevel: level, SlowThreshold: slowThreshold}
}

func (z *ZapGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *z
	newLogger.LogLevel = level
	return &newLogger
}

func (z *ZapGormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if z.LogLevel >= gormlogger.Info {
		z.log.Sugar().Infof(msg, data...)
	}
}

func (z *ZapGormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if z.LogLevel >= gormlogger.Warn {
		z.log.Sugar().Warnf(msg, data...)
	}
}

func (z *ZapGormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if z.LogLevel >= gormlogger.Error {
		z.log.Sugar().Errorf(msg, data...)
	}
}

// Trace logs failed, slow and (at Info level) all queries. Record-not-found is never an error here.
func (z *ZapGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if z.LogLevel <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && z.LogLevel >= gormlogger.Error:
		sql, rows := fc()
		z.log.Error("query failed",
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
		)
	case z.SlowThreshold != 0 && elapsed > z.SlowThreshold && z.LogLevel >= gormlogger.Warn:
		sql, rows := fc()
		z.log.Warn("slow query",
			zap.Duration("elapsed", elapsed),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
		)
	case z.LogLevel >= gormlogger.Info:
		sql, rows := fc()
		z.log.Debug("query",
			zap.Duration("elapsed", elapsed),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
		)
	}
}
