package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backends an executor can be built for.
const (
	BackendClickHouse = "clickhouse"
	BackendNewRelic   = "newrelic"
	BackendInflux     = "influx"
)

// VitalsConfig selects and configures the query backend.
type VitalsConfig struct {
	Backend        string
	QueryTimeout   time.Duration
	MaxConcurrency int

	NewRelicAPIKey string
	NewRelicRegion string

	InfluxURL      string
	InfluxToken    string
	InfluxDatabase string

	// BeaconEnabled accepts browser samples into ClickHouse.
	BeaconEnabled bool
}

// Vitals holds the parsed vitals configuration
var Vitals VitalsConfig

// LoadVitals reads the backend selection from the environment.
func LoadVitals() error {
	v := VitalsConfig{
		Backend:        strings.ToLower(strings.TrimSpace(os.Getenv("VITALS_BACKEND"))),
		QueryTimeout:   30 * time.Second,
		MaxConcurrency: 8,
		NewRelicAPIKey: os.Getenv("NEW_RELIC_API_KEY"),
		NewRelicRegion: os.Getenv("NEW_RELIC_REGION"),
		InfluxURL:      os.Getenv("INFLUX_URL"),
		InfluxToken:    os.Getenv("INFLUX_TOKEN"),
		InfluxDatabase: os.Getenv("INFLUX_DATABASE"),
		BeaconEnabled:  os.Getenv("VITALS_BEACON_DISABLED") != "true",
	}
	if v.Backend == "" {
		v.Backend = BackendClickHouse
	}

	if raw := os.Getenv("VITALS_QUERY_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid VITALS_QUERY_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid VITALS_QUERY_TIMEOUT: %q must be positive", raw)
		}
		v.QueryTimeout = d
	}
	if raw := os.Getenv("VITALS_MAX_CONCURRENCY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid VITALS_MAX_CONCURRENCY: %q", raw)
		}
		v.MaxConcurrency = n
	}

	if err := v.Validate(); err != nil {
		return err
	}
	Vitals = v
	return nil
}

func (v *VitalsConfig) Validate() error {
	switch v.Backend {
	case BackendClickHouse:
	case BackendNewRelic:
		if v.NewRelicAPIKey == "" {
			return fmt.Errorf("NEW_RELIC_API_KEY is required for backend %q", v.Backend)
		}
	case BackendInflux:
		if v.InfluxURL == "" || v.InfluxDatabase == "" {
			return fmt.Errorf("INFLUX_URL and INFLUX_DATABASE are required for backend %q", v.Backend)
		}
	default:
		return fmt.Errorf("unknown VITALS_BACKEND %q", v.Backend)
	}
	return nil
}
