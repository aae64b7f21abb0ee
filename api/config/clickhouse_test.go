package config

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearClickHouseEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CLICKHOUSE_ADDR_TCP", "CLICKHOUSE_DATABASE", "CLICKHOUSE_USERNAME", "CLICKHOUSE_PASSWORD", "CLICKHOUSE_SECURE"} {
		t.Setenv(k, "")
	}
}

func TestClickHouseConfig_WithEnv(t *testing.T) {
	clearClickHouseEnv(t)
	assert.Equal(t, DefaultClickHouse(), DefaultClickHouse().WithEnv())

	t.Setenv("CLICKHOUSE_ADDR_TCP", "ch.internal:9440")
	t.Setenv("CLICKHOUSE_PASSWORD", "secret")
	t.Setenv("CLICKHOUSE_SECURE", "true")

	got := ClickHouseConfig{Addr: "flag:9000", Database: "rum", Username: "writer"}.WithEnv()
	assert.Equal(t, ClickHouseConfig{
		Addr:     "ch.internal:9440",
		Database: "rum",
		Username: "writer",
		Password: "secret",
		Secure:   true,
	}, got)
}

func TestClickHouseConfig_Options(t *testing.T) {
	c := ClickHouseConfig{Addr: "localhost:9000", Database: "rum", Username: "u", Password: "p"}

	opts := c.Options()
	assert.Equal(t, []string{"localhost:9000"}, opts.Addr)
	assert.Equal(t, "rum", opts.Auth.Database)
	assert.Equal(t, "p", opts.Auth.Password)
	assert.Nil(t, opts.TLS)

	c.Secure = true
	assert.NotNil(t, c.Options().TLS)

	m := c.Migration()
	assert.Equal(t, c.Addr, m.Addr)
	assert.Equal(t, c.Database, m.Database)
	assert.True(t, m.Secure)
}

func TestOpenClickHouse_RequiresAddr(t *testing.T) {
	_, err := OpenClickHouse(context.Background(), slog.Default(), ClickHouseConfig{})
	require.Error(t, err)
}
