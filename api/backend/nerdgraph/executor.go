package nerdgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/webvitals/api/vitals"
	"github.com/tidwall/gjson"
)

// NRQLRunner is the part of Client the executor needs.
type NRQLRunner interface {
	QueryNRQL(ctx context.Context, accountID int64, nrql string) (gjson.Result, error)
}

type ExecutorConfig struct {
	Logger *slog.Logger
	Client NRQLRunner
}

func (cfg *ExecutorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("nerdgraph client is required")
	}
	return nil
}

// Executor sends the panel NRQL to New Relic as-is.
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
	return "newrelic"
}

func (e *Executor) Execute(ctx context.Context, req vitals.Request) (vitals.Results, error) {
	query := req.Query
	if query == "" {
		query = vitals.BuildNRQL(req.TargetURL, req.UseLike)
	}

	results, err := e.cfg.Client.QueryNRQL(ctx, req.AccountID, query)
	if err != nil {
		return nil, err
	}

	e.log.Debug("newrelic vitals query", "account", req.AccountID, "nrql", query, "results", len(results.Array()))

	return ResultsFromJSON(results)
}

// ResultsFromJSON converts a NerdGraph results array into Results. A
// multi-expression NRQL SELECT returns one object keyed by alias; JSON null
// becomes NaN and a bare percentile({"75": v}) is unwrapped to v.
func ResultsFromJSON(results gjson.Result) (vitals.Results, error) {
	items := results.Array()
	if len(items) != 1 || !items[0].IsObject() {
		return nil, fmt.Errorf("%w: expected a single result object, got %d items", vitals.ErrMalformedResult, len(items))
	}

	row := make(map[string]any, vitals.ResultRowCount)
	for _, alias := range vitals.Aliases() {
		value := items[0].Get(alias)
		if !value.Exists() {
			continue
		}
		v, err := jsonNumber(alias, value)
		if err != nil {
			return nil, err
		}
		row[alias] = v
	}
	return vitals.NewResultsFromRow(row)
}

func jsonNumber(alias string, value gjson.Result) (any, error) {
	switch {
	case value.Type == gjson.Null:
		return nil, nil
	case value.Type == gjson.Number:
		return value.Num, nil
	case value.IsObject():
		var inner []gjson.Result
		value.ForEach(func(_, v gjson.Result) bool {
			inner = append(inner, v)
			return true
		})
		if len(inner) == 1 {
			return jsonNumber(alias, inner[0])
		}
	}
	return nil, fmt.Errorf("%w: field %q is %s", vitals.ErrMalformedResult, alias, value.Type)
}
