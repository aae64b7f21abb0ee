package nerdgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	EndpointUS = "https://api.newrelic.com/graphql"
	EndpointEU = "https://api.eu.newrelic.com/graphql"

	defaultNRQLTimeout = 30 * time.Second
	maxResponseBytes   = 4 << 20

	// NerdGraph must give up before the caller does so its own timeout error
	// reaches the caller.
	serverTimeoutMargin = 2 * time.Second
	minServerTimeout    = time.Second
)

const nrqlQuery = `query($accountId: Int!, $nrql: Nrql!, $timeout: Seconds) {
  actor {
    account(id: $accountId) {
      nrql(query: $nrql, timeout: $timeout) {
        results
      }
    }
  }
}`

// Endpoint returns the NerdGraph URL for a New Relic region ("US" or "EU").
func Endpoint(region string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(region)) {
	case "", "US":
		return EndpointUS, nil
	case "EU":
		return EndpointEU, nil
	default:
		return "", fmt.Errorf("unknown New Relic region %q", region)
	}
}

type ClientConfig struct {
	APIKey      string
	Endpoint    string
	HTTPClient  *http.Client
	NRQLTimeout time.Duration
}

func (cfg *ClientConfig) Validate() error {
	if cfg.APIKey == "" {
		return errors.New("api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = EndpointUS
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.NRQLTimeout <= 0 {
		cfg.NRQLTimeout = defaultNRQLTimeout
	}
	return nil
}

// Client runs NRQL through the NerdGraph API.
type Client struct {
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// QueryNRQL runs nrql for accountID and returns the raw results array.
func (c *Client) QueryNRQL(ctx context.Context, accountID int64, nrql string) (gjson.Result, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: nrqlQuery,
		Variables: map[string]any{
			"accountId": accountID,
			"nrql":      nrql,
			"timeout":   int(c.serverTimeout(ctx) / time.Second),
		},
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("API-Key", c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("nerdgraph request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("failed to read nerdgraph response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("nerdgraph returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, errors.New("nerdgraph returned invalid JSON")
	}

	root := gjson.ParseBytes(data)
	if msg := root.Get("errors.0.message"); msg.Exists() {
		return gjson.Result{}, fmt.Errorf("nerdgraph error: %s", msg.Str)
	}

	results := root.Get("data.actor.account.nrql.results")
	if !results.IsArray() {
		return gjson.Result{}, errors.New("nerdgraph response has no nrql results")
	}
	return results, nil
}

// serverTimeout is the NRQL timeout sent to NerdGraph: NRQLTimeout, capped
// to finish serverTimeoutMargin before ctx's deadline.
func (c *Client) serverTimeout(ctx context.Context) time.Duration {
	timeout := c.cfg.NRQLTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline)-serverTimeoutMargin)
	}
	return max(timeout, minServerTimeout)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
