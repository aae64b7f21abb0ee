package influxquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/webvitals/api/vitals"
)

type ExecutorConfig struct {
	Logger      *slog.Logger
	Client      Client
	Measurement string
}

func (cfg *ExecutorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("influxdb client is required")
	}
	if cfg.Measurement == "" {
		cfg.Measurement = DefaultMeasurement
	}
	return nil
}

// Executor runs the panel query against page view timings in InfluxDB 3.
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
	return "influx"
}

func (e *Executor) Execute(ctx context.Context, req vitals.Request) (vitals.Results, error) {
	query, params := BuildQuery(e.cfg.Measurement, req.TargetURL, req.UseLike, req.AccountID, req.Begin, req.End)

	rows, err := e.cfg.Client.QuerySQL(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to query page view timing: %w", err)
	}

	e.log.Debug("influx vitals query", "url", req.TargetURL, "like", req.UseLike, "rows", len(rows))

	// No rows means no samples in range, which renders as no data.
	switch len(rows) {
	case 0:
		return vitals.NewResultsFromRow(map[string]any{vitals.TotalKey: 0})
	case 1:
		return vitals.NewResultsFromRow(rows[0])
	default:
		return nil, fmt.Errorf("%w: expected 1 row, got %d", vitals.ErrMalformedResult, len(rows))
	}
}
