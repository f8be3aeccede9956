package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures the GORM zap logger.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration

	// Retryable marks driver errors the ledger retries (serialization failures, lock
	// timeouts, busy databases). They are logged at warn so a retried post does not
	// page anyone.
	Retryable func(error) bool
}

func DefaultGormLoggerConfig() GormLoggerConfig {
	return GormLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// GormLogger routes GORM output through zap with tenant and request fields from ctx.
type GormLogger struct {
	cfg GormLoggerConfig
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
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

func (l *GormLogger) message(ctx context.Context, threshold gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < threshold {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Trace logs failed, slow and (at info level) all statements. Record-not-found is never
// an error here since lookups by code and source id rely on it.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && errors.Is(err, gormlogger.ErrRecordNotFound):
		if l.cfg.Level >= gormlogger.Info {
			l.logQuery(ctx, fc, elapsed, nil, zapcore.DebugLevel)
		}
	case err != nil && l.retryable(err) && l.cfg.Level >= gormlogger.Warn:
		l.logQuery(ctx, fc, elapsed, err, zapcore.WarnLevel, zap.Bool("retryable", true))
	case err != nil && l.cfg.Level >= gormlogger.Error:
		l.logQuery(ctx, fc, elapsed, err, zapcore.ErrorLevel)
	case l.cfg.SlowThreshold != 0 && elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn:
		l.logQuery(ctx, fc, elapsed, nil, zapcore.WarnLevel, zap.Bool("slow", true))
	case l.cfg.Level >= gormlogger.Info:
		l.logQuery(ctx, fc, elapsed, nil, zapcore.DebugLevel)
	}
}

// ParamsFilter drops bound values. Amounts and contact ids stay out of the logs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) retryable(err error) bool {
	return l.cfg.Retryable != nil && l.cfg.Retryable(err)
}

func (l *GormLogger) logQuery(ctx context.Context, fc func() (string, int64), elapsed time.Duration, err error, level zapcore.Level, extra ...zap.Field) {
	sql, rows := fc()
	stmt := describeSQL(sql)
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", stmt.operation),
		zap.String("table", stmt.table),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if stmt.forUpdate {
		fields = append(fields, zap.Bool("row_lock", true))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	fields = append(fields, extra...)

	if ce := FromContext(ctx).Check(level, "gorm.query"); ce != nil {
		ce.Write(fields...)
	}
}

type sqlSummary struct {
	operation string
	table     string
	forUpdate bool
}

// describeSQL pulls the verb, the first table touched and whether rows are locked.
func describeSQL(sql string) sqlSummary {
	summary := sqlSummary{operation: "UNKNOWN"}
	tokens := strings.Fields(strings.TrimSpace(sql))
	for i := 0; i < len(tokens); i++ {
		token := strings.ToUpper(strings.Trim(tokens[i], "();"))
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			if summary.operation == "UNKNOWN" {
				summary.operation = token
			}
			if token == "UPDATE" && summary.table == "" && i+1 < len(tokens) {
				summary.table = tableName(tokens[i+1])
			}
		case "FROM", "INTO":
			if summary.table == "" && i+1 < len(tokens) {
				summary.table = tableName(tokens[i+1])
			}
		case "FOR":
			if i+1 < len(tokens) && strings.EqualFold(strings.Trim(tokens[i+1], ";"), "UPDATE") {
				summary.forUpdate = true
			}
		}
	}
	return summary
}

func tableName(token string) string {
	return strings.ToLower(strings.Trim(token, "\"`();"))
}

var _ gormlogger.Interface = (*GormLogger)(nil)
