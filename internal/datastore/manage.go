package datastore

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/satwatch/satwatch-go/internal/errors"
	"github.com/satwatch/satwatch-go/internal/logging"
)

// slowQueryThreshold defines the duration after which a query is considered
// slow and logged at warn level.
const slowQueryThreshold = 1 * time.Second

// performAutoMigration runs gorm auto-migration for all models.
func performAutoMigration(db *gorm.DB, dbType, connectionInfo string, debug bool) error {
	if err := db.AutoMigrate(&Zone{}, &ZoneImage{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migration").
			Context("db_type", dbType).
			Build()
	}

	if debug {
		logging.Debug("Database initialized", "db_type", dbType, "connection", connectionInfo)
	}
	return nil
}

// createGormLogger returns a GORM logger that forwards to the application's
// structured logger.
func createGormLogger() gormlogger.Interface {
	return &slogGormLogger{
		logger: logging.ForService("datastore"),
		level:  gormlogger.Warn,
	}
}

// slogGormLogger bridges gorm's logger interface onto slog.
type slogGormLogger struct {
	logger *slog.Logger
	level  gormlogger.LogLevel
}

func (l *slogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return &slogGormLogger{logger: l.logger, level: level}
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Info(msg, "args", args)
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(msg, "args", args)
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Error(msg, "args", args)
	}
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.logger.Error("Query failed", "error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case elapsed > slowQueryThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.logger.Warn("Slow query", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger.Info("Query", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
