package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"slices"

	appconfig "github.com/malbeclabs/webvitals/api/config"
	"github.com/malbeclabs/webvitals/api/vitals"
)

// PublicConfig holds configuration that is safe to expose to the frontend
type PublicConfig struct {
	SentryDSN         string              `json:"sentryDsn,omitempty"`
	SentryEnvironment string              `json:"sentryEnvironment,omitempty"`
	Backend           string              `json:"backend"`
	TimeRanges        []string            `json:"timeRanges"`
	Metrics           []PublicMetric      `json:"metrics"`
	Styles            []vitals.LevelStyle `json:"styles"`
	Features          map[string]bool     `json:"features"`
}

// PublicMetric describes one vital for the dashboard legend.
type PublicMetric struct {
	Name        vitals.Metric `json:"name"`
	Unit        string        `json:"unit"`
	Thresholds  [2]float64    `json:"thresholds"`
	Description string        `json:"description"`
}

// GetConfig returns public configuration for the frontend
func GetConfig(w http.ResponseWriter, r *http.Request) {
	sentryEnv := os.Getenv("SENTRY_ENVIRONMENT")
	if sentryEnv == "" {
		sentryEnv = "development"
	}

	timeRanges := make([]string, 0, len(vitalsTimeRanges))
	for k := range vitalsTimeRanges {
		timeRanges = append(timeRanges, k)
	}
	slices.SortFunc(timeRanges, func(a, b string) int {
		return int(vitalsTimeRanges[a] - vitalsTimeRanges[b])
	})

	metricsList := make([]PublicMetric, 0, len(vitals.Specs))
	for _, s := range vitals.Specs {
		metricsList = append(metricsList, PublicMetric{
			Name:        s.Name,
			Unit:        s.Unit,
			Thresholds:  s.Thresholds,
			Description: s.Description,
		})
	}

	styles := vitals.DefaultStyles
	backend := appconfig.Vitals.Backend
	if vitalsService != nil {
		styles = vitalsService.Styles()
		backend = vitalsService.Backend()
	}

	config := PublicConfig{
		SentryDSN:         os.Getenv("SENTRY_DSN_WEB"),
		SentryEnvironment: sentryEnv,
		Backend:           backend,
		TimeRanges:        timeRanges,
		Metrics:           metricsList,
		Styles:            styles[:],
		Features: map[string]bool{
			"beacon": beaconStore != nil,
			"batch":  vitalsService != nil,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(config)
}
