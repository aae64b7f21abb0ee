package db

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/pressly/goose/v3"
)

const migrationsDir = "clickhouse/migrations"

func CreateDatabase(ctx context.Context, log *slog.Logger, conn driver.Conn, database string) error {
	log.Info("creating ClickHouse database", "database", database)
	return conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database))
}

// MigrationConfig holds the configuration for running migrations
type MigrationConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Secure   bool
}

// slogGooseLogger adapts slog.Logger to goose.Logger interface
type slogGooseLogger struct {
	log *slog.Logger
}

func (l *slogGooseLogger) Fatalf(format string, v ...any) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// RunMigrations applies the page view timing schema using goose.
func RunMigrations(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	log.Info("running ClickHouse migrations with goose", "database", cfg.Database)

	db := newSQLDB(cfg)
	defer db.Close()

	if err := setupGoose(log); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("ClickHouse migrations completed successfully")
	return nil
}

// MigrationStatus logs the status of all migrations
func MigrationStatus(ctx context.Context, log *slog.Logger, cfg MigrationConfig) error {
	log.Info("checking ClickHouse migration status")

	db := newSQLDB(cfg)
	defer db.Close()

	if err := setupGoose(log); err != nil {
		return err
	}

	return goose.StatusContext(ctx, db, migrationsDir)
}

func setupGoose(log *slog.Logger) error {
	goose.SetLogger(&slogGooseLogger{log: log})
	goose.SetBaseFS(ClickHouseMigrationsFS)

	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// newSQLDB creates a database/sql compatible connection for goose
func newSQLDB(cfg MigrationConfig) *sql.DB {
	options := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	}

	if cfg.Secure {
		options.TLS = &tls.Config{}
	}

	return clickhouse.OpenDB(options)
}
