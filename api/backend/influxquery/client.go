package influxquery

import (
	"context"
	"fmt"
	"strings"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"
)

// Client runs parameterized SQL against InfluxDB 3.
type Client interface {
	// QuerySQL executes a SQL query with bound parameters and returns rows as maps
	QuerySQL(ctx context.Context, sqlQuery string, params map[string]any) ([]map[string]any, error)
	Close() error
}

// SDKClient implements Client using the official InfluxDB 3 Go SDK
type SDKClient struct {
	client *influxdb3.Client
}

func NewSDKClient(host, token, database string) (*SDKClient, error) {
	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     host,
		Token:    token,
		Database: database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB client: %w", err)
	}
	return &SDKClient{client: client}, nil
}

func (c *SDKClient) QuerySQL(ctx context.Context, sqlQuery string, params map[string]any) ([]map[string]any, error) {
	iterator, err := c.client.QueryWithParameters(ctx, sqlQuery, influxdb3.QueryParameters(params))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	var results []map[string]any
	for iterator.Next() {
		value := iterator.Value()
		row := make(map[string]any, len(value))
		for k, v := range value {
			row[k] = v
		}
		results = append(results, row)
	}

	if err := iterator.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}

	return results, nil
}

func (c *SDKClient) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil && !isExpectedCloseError(err) {
		return err
	}
	return nil
}

func isExpectedCloseError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "connection is closing") ||
		strings.Contains(errStr, "code = Canceled")
}
