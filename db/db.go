package db

import (
	"context"
	"fmt"
	"time"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

// Options contains the configuration for the postgres handle
type Options struct {
	Logger *zap.Logger
	URI    string

	// pool settings; zero values fall back to defaults
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

func (o *Options) validate() error {
	if o.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if len(o.URI) == 0 {
		return fmt.Errorf("empty URI is invalid")
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 1
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 20
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = time.Hour
	}
	return nil
}

// quietLogger drops record-not-found noise: a missing row is an expected
// outcome that the managers translate themselves, not something to page on
type quietLogger struct {
	zapgorm2.Logger
}

func (l *quietLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if err == gorm.ErrRecordNotFound {
		return
	}
	l.Logger.Trace(ctx, begin, fc, err)
}

// New opens the postgres connection pool shared by all managers
func New(option Options) (*gorm.DB, error) {
	if err := option.validate(); err != nil {
		return nil, err
	}

	gLogger := zapgorm2.Logger{
		ZapLogger:     option.Logger,
		LogLevel:      gormlogger.Warn,
		SlowThreshold: time.Second,
	}
	database, err := gorm.Open(postgres.Open(option.URI), &gorm.Config{
		Logger: &quietLogger{
			Logger: gLogger,
		},
	})
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot open database connection")
	}

	pool, err := database.DB()
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot access the connection pool")
	}
	pool.SetMaxIdleConns(option.MaxIdleConns)
	pool.SetMaxOpenConns(option.MaxOpenConns)
	pool.SetConnMaxLifetime(option.ConnMaxLifetime)

	return database, nil
}
