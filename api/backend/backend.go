// Package backend builds the vitals executor for a configured backend.
package backend

import (
	"fmt"
	"log/slog"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/malbeclabs/webvitals/api/backend/chquery"
	"github.com/malbeclabs/webvitals/api/backend/influxquery"
	"github.com/malbeclabs/webvitals/api/backend/nerdgraph"
	"github.com/malbeclabs/webvitals/api/config"
	"github.com/malbeclabs/webvitals/api/vitals"
)

// NewExecutor builds the executor for cfg.Backend. conn is only used by the
// clickhouse backend. The returned close function releases backend clients.
func NewExecutor(log *slog.Logger, cfg config.VitalsConfig, conn driver.Conn) (vitals.Executor, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendClickHouse:
		exec, err := chquery.NewExecutor(chquery.ExecutorConfig{Logger: log, Conn: conn})
		if err != nil {
			return nil, noop, err
		}
		return exec, noop, nil

	case config.BackendNewRelic:
		endpoint, err := nerdgraph.Endpoint(cfg.NewRelicRegion)
		if err != nil {
			return nil, noop, err
		}
		client, err := nerdgraph.NewClient(nerdgraph.ClientConfig{
			APIKey:      cfg.NewRelicAPIKey,
			Endpoint:    endpoint,
			NRQLTimeout: cfg.QueryTimeout,
		})
		if err != nil {
			return nil, noop, err
		}
		exec, err := nerdgraph.NewExecutor(nerdgraph.ExecutorConfig{Logger: log, Client: client})
		if err != nil {
			return nil, noop, err
		}
		return exec, noop, nil

	case config.BackendInflux:
		client, err := influxquery.NewSDKClient(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxDatabase)
		if err != nil {
			return nil, noop, err
		}
		exec, err := influxquery.NewExecutor(influxquery.ExecutorConfig{Logger: log, Client: client})
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return exec, client.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
