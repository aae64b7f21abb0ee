package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/malbeclabs/webvitals/api/db"
)

// ClickHouseConfig is the connection used for beacon storage, the clickhouse
// query backend and schema migrations.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	// Secure enables TLS, as ClickHouse Cloud requires on port 9440.
	Secure bool
}

var (
	// DB is the shared connection pool, set by Load.
	DB driver.Conn
	// ClickHouse is the configuration DB was opened with.
	ClickHouse ClickHouseConfig
)

// DefaultClickHouse returns a local single-node configuration.
func DefaultClickHouse() ClickHouseConfig {
	return ClickHouseConfig{
		Addr:     "localhost:9000",
		Database: "default",
		Username: "default",
	}
}

// WithEnv returns c with every CLICKHOUSE_* variable that is set applied
// over it.
func (c ClickHouseConfig) WithEnv() ClickHouseConfig {
	if v := os.Getenv("CLICKHOUSE_ADDR_TCP"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_DATABASE"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("CLICKHOUSE_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.Password = v
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		c.Secure = true
	}
	return c
}

// Options returns pooled driver options for c.
func (c ClickHouseConfig) Options() *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: []string{c.Addr},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
	if c.Secure {
		opts.TLS = &tls.Config{}
	}
	return opts
}

// Migration returns the goose settings for the same server and database.
func (c ClickHouseConfig) Migration() db.MigrationConfig {
	return db.MigrationConfig{
		Addr:     c.Addr,
		Database: c.Database,
		Username: c.Username,
		Password: c.Password,
		Secure:   c.Secure,
	}
}

// OpenClickHouse connects with c and pings the server.
func OpenClickHouse(ctx context.Context, log *slog.Logger, c ClickHouseConfig) (driver.Conn, error) {
	if c.Addr == "" {
		return nil, fmt.Errorf("clickhouse address is required")
	}
	log.Info("connecting to ClickHouse", "addr", c.Addr, "database", c.Database, "username", c.Username, "secure", c.Secure)

	conn, err := clickhouse.Open(c.Options())
	if err != nil {
		return nil, fmt.Errorf("failed to create clickhouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Load opens the shared pool from c.
func Load(ctx context.Context, log *slog.Logger, c ClickHouseConfig) error {
	conn, err := OpenClickHouse(ctx, log, c)
	if err != nil {
		return err
	}
	DB = conn
	ClickHouse = c
	log.Info("connected to ClickHouse")
	return nil
}

// Close closes the shared pool.
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
