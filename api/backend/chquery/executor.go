package chquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/malbeclabs/webvitals/api/vitals"
)

type ExecutorConfig struct {
	Logger *slog.Logger
	Conn   driver.Conn
	Table  string
}

func (cfg *ExecutorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Conn == nil {
		return errors.New("clickhouse connection is required")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	return nil
}

// Executor runs the panel query against beacon samples stored in ClickHouse.
type Executor struct {
	log *slog.Logger
	cfg ExecutorConfig
}

func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Executor{log: cfg.Logger, cfg: cfg}, nil
}

func (e *Executor) Name() string {
	return "clickhouse"
}

func (e *Executor) Execute(ctx context.Context, req vitals.Request) (vitals.Results, error) {
	query, args := BuildQuery(e.cfg.Table, req.TargetURL, req.UseLike, req.AccountID, req.Begin, req.End)

	rows, err := e.cfg.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query page view timing: %w", err)
	}
	defer rows.Close()

	columnTypes := rows.ColumnTypes()
	row := make(map[string]any, len(columnTypes))

	if rows.Next() {
		values := make([]any, len(columnTypes))
		for i, ct := range columnTypes {
			values[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(values...); err != nil {
			return nil, fmt.Errorf("failed to scan page view timing: %w", err)
		}
		for i, ct := range columnTypes {
			row[ct.Name()] = reflect.ValueOf(values[i]).Elem().Interface()
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read page view timing: %w", err)
	}

	e.log.Debug("clickhouse vitals query", "url", req.TargetURL, "like", req.UseLike, "columns", len(row))

	return vitals.NewResultsFromRow(row)
}
