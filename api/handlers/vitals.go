package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/webvitals/api/beacon"
	"github.com/malbeclabs/webvitals/api/metrics"
	"github.com/malbeclabs/webvitals/api/vitals"
)

const (
	maxBatchPages       = 50
	maxBeaconSamples    = 500
	maxRequestBodyBytes = 1 << 20
)

var (
	vitalsService *vitals.Service
	beaconStore   *beacon.Store
)

// InitVitals installs the panel service and, optionally, the beacon store.
func InitVitals(svc *vitals.Service, store *beacon.Store) {
	vitalsService = svc
	beaconStore = store
}

// vitalsTimeRanges are the presets accepted by time_range.
var vitalsTimeRanges = map[string]time.Duration{
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"3h":  3 * time.Hour,
	"6h":  6 * time.Hour,
	"12h": 12 * time.Hour,
	"24h": 24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"14d": 14 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// parseVitalsTimeRange reads start_time/end_time (unix seconds) or a
// time_range preset. Neither means the default window.
func parseVitalsTimeRange(timeRange, startStr, endStr string) (vitals.TimeRange, error) {
	if startStr != "" || endStr != "" {
		start, err1 := strconv.ParseInt(startStr, 10, 64)
		end, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || end <= start {
			return vitals.TimeRange{}, errors.New("start_time and end_time must be unix seconds with end_time after start_time")
		}
		return vitals.TimeRange{Begin: time.Unix(start, 0).UTC(), End: time.Unix(end, 0).UTC()}, nil
	}
	if timeRange == "" {
		return vitals.TimeRange{}, nil
	}
	d, ok := vitalsTimeRanges[timeRange]
	if !ok {
		return vitals.TimeRange{}, fmt.Errorf("unknown time_range %q", timeRange)
	}
	return vitals.LastDuration(d), nil
}

func parseAccountID(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid account_id %q", s)
	}
	return id, nil
}

func vitalsInputs(q url.Values) (vitals.Inputs, error) {
	accountID, err := parseAccountID(q.Get("account_id"))
	if err != nil {
		return vitals.Inputs{}, err
	}
	tr, err := parseVitalsTimeRange(q.Get("time_range"), q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		return vitals.Inputs{}, err
	}
	like, _ := strconv.ParseBool(q.Get("like"))
	return vitals.Inputs{
		TargetURL: q.Get("url"),
		UseLike:   like,
		AccountID: accountID,
		TimeRange: tr,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetVitals renders the panel for one page.
func GetVitals(w http.ResponseWriter, r *http.Request) {
	if vitalsService == nil {
		http.Error(w, "vitals service not configured", http.StatusServiceUnavailable)
		return
	}
	in, err := vitalsInputs(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, vitalsService.Panel(r.Context(), in))
}

// VitalsBatchPage is one page of a batch request.
type VitalsBatchPage struct {
	URL  string `json:"url"`
	Like bool   `json:"like"`
}

type VitalsBatchRequest struct {
	AccountID int64             `json:"account_id"`
	TimeRange string            `json:"time_range"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Pages     []VitalsBatchPage `json:"pages"`
}

type VitalsBatchResponse struct {
	Panels []vitals.Panel `json:"panels"`
}

// PostVitalsBatch renders panels for several pages of one account.
func PostVitalsBatch(w http.ResponseWriter, r *http.Request) {
	if vitalsService == nil {
		http.Error(w, "vitals service not configured", http.StatusServiceUnavailable)
		return
	}

	var req VitalsBatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Pages) == 0 {
		http.Error(w, "pages is required", http.StatusBadRequest)
		return
	}
	if len(req.Pages) > maxBatchPages {
		http.Error(w, fmt.Sprintf("at most %d pages per batch", maxBatchPages), http.StatusBadRequest)
		return
	}
	tr, err := parseVitalsTimeRange(req.TimeRange, req.StartTime, req.EndTime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	inputs := make([]vitals.Inputs, len(req.Pages))
	for i, p := range req.Pages {
		inputs[i] = vitals.Inputs{TargetURL: p.URL, UseLike: p.Like, AccountID: req.AccountID, TimeRange: tr}
	}

	writeJSON(w, http.StatusOK, VitalsBatchResponse{Panels: vitalsService.Panels(r.Context(), inputs)})
}

type VitalsQueryResponse struct {
	Backend string `json:"backend"`
	NRQL    string `json:"nrql"`
}

// GetVitalsQuery returns the NRQL the panel would run, for copy-paste
// into New Relic.
func GetVitalsQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("url")) == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	tr, err := parseVitalsTimeRange(q.Get("time_range"), q.Get("start_time"), q.Get("end_time"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	like, _ := strconv.ParseBool(q.Get("like"))

	resp := VitalsQueryResponse{NRQL: vitals.BuildNRQLWithTimeRange(q.Get("url"), like, tr)}
	if vitalsService != nil {
		resp.Backend = vitalsService.Backend()
	}
	writeJSON(w, http.StatusOK, resp)
}

type BeaconRequest struct {
	Samples []beacon.PageViewTiming `json:"samples"`
}

type BeaconResponse struct {
	Accepted int `json:"accepted"`
}

// PostBeacon ingests page view timings sent by browsers.
func PostBeacon(w http.ResponseWriter, r *http.Request) {
	if beaconStore == nil {
		http.Error(w, "beacon ingestion not enabled", http.StatusNotFound)
		return
	}

	var req BeaconRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		metrics.RecordBeaconSamples("rejected", 0)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Samples) == 0 {
		http.Error(w, "samples is required", http.StatusBadRequest)
		return
	}
	if len(req.Samples) > maxBeaconSamples {
		metrics.RecordBeaconSamples("rejected", len(req.Samples))
		http.Error(w, fmt.Sprintf("at most %d samples per request", maxBeaconSamples), http.StatusRequestEntityTooLarge)
		return
	}

	if err := beaconStore.InsertPageViewTimings(r.Context(), req.Samples); err != nil {
		if errors.Is(err, beacon.ErrInvalidSample) {
			metrics.RecordBeaconSamples("rejected", len(req.Samples))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		metrics.RecordBeaconSamples("error", len(req.Samples))
		http.Error(w, internalError("failed to store samples", err), http.StatusInternalServerError)
		return
	}

	metrics.RecordBeaconSamples("accepted", len(req.Samples))
	writeJSON(w, http.StatusAccepted, BeaconResponse{Accepted: len(req.Samples)})
}
