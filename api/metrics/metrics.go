package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "webvitals_api_build_info",
		Help: "Build information of the web vitals API",
	}, []string{"version", "commit", "date"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webvitals_api_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webvitals_api_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webvitals_api_query_duration_seconds",
		Help:    "Duration of vitals queries by backend",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"backend", "status"})

	PanelStatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webvitals_api_panel_states_total",
		Help: "Rendered panels by display state",
	}, []string{"state"})

	ReadingLevelsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webvitals_api_reading_levels_total",
		Help: "Rendered readings by metric and level",
	}, []string{"metric", "level"})

	BeaconSamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webvitals_api_beacon_samples_total",
		Help: "Page view timing samples received by the beacon endpoint",
	}, []string{"status"})
)

// Middleware records request counts and durations keyed by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordQuery records the duration and outcome of one backend query.
func RecordQuery(backend string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	QueryDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
}

func RecordPanelState(state string) {
	PanelStatesTotal.WithLabelValues(state).Inc()
}

func RecordReadingLevel(metric, level string) {
	ReadingLevelsTotal.WithLabelValues(metric, level).Inc()
}

func RecordBeaconSamples(status string, n int) {
	BeaconSamplesTotal.WithLabelValues(status).Add(float64(n))
}
