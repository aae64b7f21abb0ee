package apitesting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/malbeclabs/webvitals/api/config"
	"github.com/malbeclabs/webvitals/api/db"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcch "github.com/testcontainers/testcontainers-go/modules/clickhouse"
)

// ClickHouseDBConfig holds the ClickHouse test container configuration.
type ClickHouseDBConfig struct {
	Database       string
	Username       string
	Password       string
	Port           string
	ContainerImage string
}

func (cfg *ClickHouseDBConfig) Validate() error {
	if cfg.Database == "" {
		cfg.Database = "test"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.Port == "" {
		cfg.Port = "9000"
	}
	if cfg.ContainerImage == "" {
		cfg.ContainerImage = "clickhouse/clickhouse-server:latest"
	}
	return nil
}

// ClickHouseDB is a running ClickHouse test container.
type ClickHouseDB struct {
	log       *slog.Logger
	cfg       *ClickHouseDBConfig
	addr      string
	container *tcch.ClickHouseContainer
}

// Addr returns the native protocol address (host:port).
func (db *ClickHouseDB) Addr() string {
	return db.addr
}

func (db *ClickHouseDB) Close() {
	if err := testcontainers.TerminateContainer(db.container, testcontainers.StopTimeout(10*time.Second)); err != nil {
		db.log.Error("failed to terminate ClickHouse container", "error", err)
	}
}

// NewClickHouseDB starts a ClickHouse testcontainer, retrying transient
// docker failures.
func NewClickHouseDB(ctx context.Context, log *slog.Logger, cfg *ClickHouseDBConfig) (*ClickHouseDB, error) {
	if cfg == nil {
		cfg = &ClickHouseDBConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate ClickHouse DB config: %w", err)
	}

	var container *tcch.ClickHouseContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = tcch.Run(ctx,
			cfg.ContainerImage,
			tcch.WithDatabase(cfg.Database),
			tcch.WithUsername(cfg.Username),
			tcch.WithPassword(cfg.Password),
		)
		if err == nil {
			break
		}
		lastErr = err
		if !isRetryableContainerStartErr(err) || attempt == 3 {
			return nil, fmt.Errorf("failed to start ClickHouse container after retries: %w", lastErr)
		}
		time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, nat.Port(cfg.Port+"/tcp"))
	if err != nil {
		return nil, fmt.Errorf("failed to get ClickHouse container mapped port: %w", err)
	}

	return &ClickHouseDB{
		log:       log,
		cfg:       cfg,
		addr:      fmt.Sprintf("%s:%s", host, mappedPort.Port()),
		container: container,
	}, nil
}

// SetupTestClickHouse creates a throwaway database, applies the schema
// migrations and points config.DB at it until the test ends.
func SetupTestClickHouse(t *testing.T, chdb *ClickHouseDB) driver.Conn {
	ctx := t.Context()
	log := slog.Default()

	databaseName := "test_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	adminCfg := config.ClickHouseConfig{
		Addr:     chdb.addr,
		Database: chdb.cfg.Database,
		Username: chdb.cfg.Username,
		Password: chdb.cfg.Password,
	}
	adminConn, err := createClickHouseConn(ctx, adminCfg)
	require.NoError(t, err, "failed to create ClickHouse admin connection")

	require.NoError(t, db.CreateDatabase(ctx, log, adminConn, databaseName), "failed to create test database")

	testCfg := adminCfg
	testCfg.Database = databaseName
	require.NoError(t, db.RunMigrations(ctx, log, testCfg.Migration()), "failed to run migrations")

	testConn, err := createClickHouseConn(ctx, testCfg)
	require.NoError(t, err, "failed to create ClickHouse test connection")

	oldDB, oldCfg := config.DB, config.ClickHouse
	config.DB, config.ClickHouse = testConn, testCfg

	t.Cleanup(func() {
		testConn.Close()
		_ = adminConn.Exec(context.Background(), fmt.Sprintf("DROP DATABASE IF EXISTS %s", databaseName))
		adminConn.Close()
		config.DB, config.ClickHouse = oldDB, oldCfg
	})

	return testConn
}

// createClickHouseConn retries the ping while a fresh container settles.
func createClickHouseConn(ctx context.Context, cfg config.ClickHouseConfig) (driver.Conn, error) {
	conn, err := clickhouse.Open(cfg.Options())
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		err = conn.Ping(ctx)
		if err == nil {
			return conn, nil
		}
		if attempt < 3 {
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}
	}
	return nil, fmt.Errorf("failed to ping ClickHouse after retries: %w", err)
}

func isRetryableContainerStartErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "wait until ready") ||
		strings.Contains(s, "mapped port") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "context deadline exceeded") ||
		strings.Contains(s, "/containers/") && strings.Contains(s, "json")
}
