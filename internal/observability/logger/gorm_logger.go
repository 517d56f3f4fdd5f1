package logger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures SQL logging for the settlement store.
type GormLoggerConfig struct {
	Base                 *zap.Logger
	Level                gormlogger.LogLevel
	SlowThreshold        time.Duration
	IgnoreRecordNotFound bool
}

// DefaultGormLoggerConfig logs failures and statements slower than a
// settlement batch normally takes.
func DefaultGormLoggerConfig(base *zap.Logger) GormLoggerConfig {
	return GormLoggerConfig{
		Base:                 base,
		Level:                gormlogger.Warn,
		SlowThreshold:        500 * time.Millisecond,
		IgnoreRecordNotFound: true,
	}
}

// GormLogger routes gorm output through zap, tagged with the run in context.
type GormLogger struct {
	base                 *zap.Logger
	level                gormlogger.LogLevel
	slowThreshold        time.Duration
	ignoreRecordNotFound bool
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	base := cfg.Base
	if base == nil {
		base = zap.L()
	}
	return &GormLogger{
		base:                 base.Named("gorm"),
		level:                cfg.Level,
		slowThreshold:        cfg.SlowThreshold,
		ignoreRecordNotFound: cfg.IgnoreRecordNotFound,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.level < min {
		return
	}
	fields := make([]zap.Field, 0, 1)
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := WithContext(ctx, l.base).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !(l.ignoreRecordNotFound && errors.Is(err, gormlogger.ErrRecordNotFound)):
		l.query(ctx, fc, elapsed, err, zapcore.ErrorLevel)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.query(ctx, fc, elapsed, nil, zapcore.WarnLevel)
	case l.level >= gormlogger.Info:
		l.query(ctx, fc, elapsed, nil, zapcore.DebugLevel)
	}
}

// ParamsFilter drops bound values; amounts and user ids stay out of logs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) query(ctx context.Context, fc func() (string, int64), elapsed time.Duration, err error, level zapcore.Level) {
	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	fields := []zap.Field{
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if ce := WithContext(ctx, l.base).Check(level, "gorm.query"); ce != nil {
		ce.Write(fields...)
	}
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "OTHER"
}

var tablePattern = regexp.MustCompile("(?i)\\b(?:from|into|update)\\s+[`\"]?([a-z_][a-z0-9_]*)")

func tableFromSQL(sql string) string {
	m := tablePattern.FindStringSubmatch(sql)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(m[1])
}

var _ gormlogger.Interface = (*GormLogger)(nil)
