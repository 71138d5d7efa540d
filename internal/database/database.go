package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/marketplace/internal/models"
)

// Options tunes the connection bootstrap.
type Options struct {
	Verbose        bool
	ConnectRetries uint64
	ConnectBackoff time.Duration
}

// Connect opens the Postgres database named by dsn, creating it when missing.
func Connect(ctx context.Context, dsn string, opts Options, log *zap.Logger) (*gorm.DB, error) {
	if opts.ConnectRetries == 0 {
		opts.ConnectRetries = 5
	}
	if opts.ConnectBackoff == 0 {
		opts.ConnectBackoff = 500 * time.Millisecond
	}

	var conn *gorm.DB
	backoff := retry.WithMaxRetries(opts.ConnectRetries, retry.NewExponential(opts.ConnectBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := ensureDatabase(ctx, dsn); err != nil {
			log.Warn("database not ready", zap.Error(err))
			return retry.RetryableError(err)
		}

		db, err := gorm.Open(postgres.Open(dsn), Config(opts.Verbose))
		if err != nil {
			log.Warn("database open failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		conn = db
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Warn("failed to ensure uuid-ossp extension", zap.Error(err))
	}

	return conn, nil
}

// Config returns the gorm settings shared by every dialect.
func Config(verbose bool) *gorm.Config {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	return &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate brings the schema up to date with the models.
func Migrate(conn *gorm.DB) error {
	for _, model := range models.All() {
		if err := conn.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return nil
}

// Ping checks the underlying connection pool.
func Ping(ctx context.Context, conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func ensureDatabase(ctx context.Context, dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	masterDSN := parsed.String()

	sqlDB, err := sql.Open("postgres", masterDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}

	if exists {
		return nil
	}

	_, err = sqlDB.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName))
	return err
}
