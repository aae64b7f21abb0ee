package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/webvitals/api/backend/chquery"
	"github.com/malbeclabs/webvitals/api/beacon"
	"github.com/malbeclabs/webvitals/api/handlers"
	apitesting "github.com/malbeclabs/webvitals/api/testing"
	"github.com/malbeclabs/webvitals/api/vitals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	mu       sync.Mutex
	requests []vitals.Request
	rows     vitals.Results
	err      error
}

func (s *stubExecutor) Name() string { return "stub" }

func (s *stubExecutor) Execute(ctx context.Context, req vitals.Request) (vitals.Results, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.rows, s.err
}

func sampleRows() vitals.Results {
	return vitals.NewResults(map[string]float64{
		"LCP": 2000, "FID": 250, "CLS": 0.3,
		"LCP_0": 80, "LCP_1": 15, "LCP_2": 5,
		"FID_0": 40, "FID_1": 50, "FID_2": 10,
		"CLS_0": 20, "CLS_1": 30, "CLS_2": 50,
		"count": 100,
	})
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func installStub(t *testing.T, exec vitals.Executor) {
	t.Helper()
	svc, err := vitals.NewService(vitals.ServiceConfig{
		Logger:   slog.Default(),
		Clock:    clockwork.NewFakeClockAt(fixedNow),
		Executor: exec,
	})
	require.NoError(t, err)
	handlers.InitVitals(svc, nil)
	t.Cleanup(func() { handlers.InitVitals(nil, nil) })
}

func decodePanel(t *testing.T, rr *httptest.ResponseRecorder) vitals.Panel {
	t.Helper()
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var p vitals.Panel
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	return p
}

func TestGetVitals_Ready(t *testing.T) {
	exec := &stubExecutor{rows: sampleRows()}
	installStub(t, exec)

	q := url.Values{"url": {"https://example.com/"}, "account_id": {"42"}, "time_range": {"24h"}}
	req := httptest.NewRequest(http.MethodGet, "/api/vitals?"+q.Encode(), nil)
	rr := httptest.NewRecorder()
	handlers.GetVitals(rr, req)

	p := decodePanel(t, rr)
	assert.Equal(t, vitals.StateReady, p.State)
	assert.Equal(t, uint64(100), p.Total)
	require.Len(t, p.Readings, 3)
	assert.Equal(t, vitals.LevelGood, p.Readings[0].Level)
	assert.Equal(t, vitals.LevelNeedsImprovement, p.Readings[1].Level)
	assert.Equal(t, vitals.LevelPoor, p.Readings[2].Level)
	require.Len(t, p.Readings[1].Series, 3)
	assert.Equal(t, uint64(50), p.Readings[1].Series[1].Count)
	assert.Equal(t, "NEEDS IMPROVEMENT", p.Readings[1].Series[1].Name)

	require.Len(t, exec.requests, 1)
	got := exec.requests[0]
	assert.Equal(t, int64(42), got.AccountID)
	assert.Equal(t, fixedNow.Add(-24*time.Hour), got.Begin)
	assert.Equal(t, fixedNow, got.End)
	assert.Contains(t, got.Query, "WHERE pageUrl = 'https://example.com/'")
}

func TestGetVitals_InputsRequired(t *testing.T) {
	exec := &stubExecutor{rows: sampleRows()}
	installStub(t, exec)

	req := httptest.NewRequest(http.MethodGet, "/api/vitals?url=https%3A%2F%2Fexample.com%2F", nil)
	rr := httptest.NewRecorder()
	handlers.GetVitals(rr, req)

	p := decodePanel(t, rr)
	assert.Equal(t, vitals.StateInputsRequired, p.State)
	assert.Equal(t, vitals.MessageInputsRequired, p.Message)
	assert.Empty(t, exec.requests)
}

func TestGetVitals_ExecutorError(t *testing.T) {
	installStub(t, &stubExecutor{err: errors.New("backend down")})

	req := httptest.NewRequest(http.MethodGet, "/api/vitals?url=x&account_id=1", nil)
	rr := httptest.NewRecorder()
	handlers.GetVitals(rr, req)

	p := decodePanel(t, rr)
	assert.Equal(t, vitals.StateError, p.State)
	assert.Equal(t, vitals.MessageError, p.Message)
}

func TestGetVitals_BadParams(t *testing.T) {
	installStub(t, &stubExecutor{rows: sampleRows()})

	for name, query := range map[string]string{
		"account":     "url=x&account_id=abc",
		"preset":      "url=x&account_id=1&time_range=2y",
		"reversed":    "url=x&account_id=1&start_time=200&end_time=100",
		"missing end": "url=x&account_id=1&start_time=100",
		"non-numeric": "url=x&account_id=1&start_time=a&end_time=b",
	} {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handlers.GetVitals(rr, httptest.NewRequest(http.MethodGet, "/api/vitals?"+query, nil))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestGetVitals_AbsoluteRange(t *testing.T) {
	exec := &stubExecutor{rows: sampleRows()}
	installStub(t, exec)

	req := httptest.NewRequest(http.MethodGet, "/api/vitals?url=x&account_id=1&start_time=1717200000&end_time=1717203600", nil)
	rr := httptest.NewRecorder()
	handlers.GetVitals(rr, req)
	decodePanel(t, rr)

	require.Len(t, exec.requests, 1)
	assert.Equal(t, time.Unix(1717200000, 0).UTC(), exec.requests[0].Begin)
	assert.Equal(t, time.Unix(1717203600, 0).UTC(), exec.requests[0].End)
	assert.Contains(t, exec.requests[0].Query, "SINCE 1717200000000 UNTIL 1717203600000")
}

func TestGetVitals_NotConfigured(t *testing.T) {
	handlers.InitVitals(nil, nil)

	rr := httptest.NewRecorder()
	handlers.GetVitals(rr, httptest.NewRequest(http.MethodGet, "/api/vitals?url=x&account_id=1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestPostVitalsBatch(t *testing.T) {
	exec := &stubExecutor{rows: sampleRows()}
	installStub(t, exec)

	body := `{"account_id": 7, "time_range": "1h", "pages": [{"url": "https://a.example/"}, {"url": ""}, {"url": "%/b/%", "like": true}]}`
	rr := httptest.NewRecorder()
	handlers.PostVitalsBatch(rr, httptest.NewRequest(http.MethodPost, "/api/vitals/batch", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp handlers.VitalsBatchResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp.Panels, 3)
	assert.Equal(t, vitals.StateReady, resp.Panels[0].State)
	assert.Equal(t, vitals.StateInputsRequired, resp.Panels[1].State)
	assert.Equal(t, vitals.StateReady, resp.Panels[2].State)
	assert.Len(t, exec.requests, 2)
}

func TestPostVitalsBatch_Invalid(t *testing.T) {
	installStub(t, &stubExecutor{rows: sampleRows()})

	var many bytes.Buffer
	many.WriteString(`{"account_id": 1, "pages": [`)
	for i := range 51 {
		if i > 0 {
			many.WriteString(",")
		}
		many.WriteString(`{"url": "x"}`)
	}
	many.WriteString(`]}`)

	for name, body := range map[string]string{
		"not json": "{",
		"no pages": `{"account_id": 1}`,
		"too many": many.String(),
	} {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handlers.PostVitalsBatch(rr, httptest.NewRequest(http.MethodPost, "/api/vitals/batch", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestGetVitalsQuery(t *testing.T) {
	installStub(t, &stubExecutor{})

	rr := httptest.NewRecorder()
	handlers.GetVitalsQuery(rr, httptest.NewRequest(http.MethodGet, "/api/vitals/query?url=%25shop%25&like=true&time_range=1h", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp handlers.VitalsQueryResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "stub", resp.Backend)
	assert.Contains(t, resp.NRQL, "WHERE pageUrl LIKE '%shop%'")
	assert.Contains(t, resp.NRQL, "SINCE 3600 SECONDS AGO")

	rr = httptest.NewRecorder()
	handlers.GetVitalsQuery(rr, httptest.NewRequest(http.MethodGet, "/api/vitals/query", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPostBeacon_Disabled(t *testing.T) {
	handlers.InitVitals(nil, nil)

	rr := httptest.NewRecorder()
	handlers.PostBeacon(rr, httptest.NewRequest(http.MethodPost, "/api/vitals/beacon", strings.NewReader(`{"samples": []}`)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBeaconRoundTrip_ClickHouse(t *testing.T) {
	conn := apitesting.SetupTestClickHouse(t, testChDB)
	log := slog.Default()
	clock := clockwork.NewFakeClockAt(time.Now().UTC().Truncate(time.Second))

	store, err := beacon.NewStore(beacon.StoreConfig{Logger: log, Conn: conn, Clock: clock, WriteBatchSize: 2})
	require.NoError(t, err)
	exec, err := chquery.NewExecutor(chquery.ExecutorConfig{Logger: log, Conn: conn})
	require.NoError(t, err)
	svc, err := vitals.NewService(vitals.ServiceConfig{Logger: log, Clock: clock, Executor: exec})
	require.NoError(t, err)
	handlers.InitVitals(svc, store)
	t.Cleanup(func() { handlers.InitVitals(nil, nil) })

	body := `{"samples": [
		{"account_id": 9, "page_url": "https://shop.example/", "largest_contentful_paint": 1.2, "first_input_delay": 20, "cumulative_layout_shift": 0.01},
		{"account_id": 9, "page_url": "https://shop.example/", "largest_contentful_paint": 3.0, "first_input_delay": 150, "cumulative_layout_shift": 0.2},
		{"account_id": 9, "page_url": "https://shop.example/", "largest_contentful_paint": 5.5, "first_input_delay": 400},
		{"account_id": 9, "page_url": "https://other.example/", "largest_contentful_paint": 9.9}
	]}`
	rr := httptest.NewRecorder()
	handlers.PostBeacon(rr, httptest.NewRequest(http.MethodPost, "/api/vitals/beacon", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var accepted handlers.BeaconResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&accepted))
	assert.Equal(t, 4, accepted.Accepted)

	clock.Advance(time.Second)

	rr = httptest.NewRecorder()
	handlers.GetVitals(rr, httptest.NewRequest(http.MethodGet, "/api/vitals?url=https%3A%2F%2Fshop.example%2F&account_id=9", nil))
	p := decodePanel(t, rr)
	require.Equal(t, vitals.StateReady, p.State)
	assert.Equal(t, uint64(3), p.Total)
	require.Len(t, p.Readings, 3)
	assert.Equal(t, [3]uint64{1, 1, 1}, p.Readings[0].Buckets)
	assert.Equal(t, [3]uint64{1, 1, 1}, p.Readings[1].Buckets)
	assert.Equal(t, [3]uint64{1, 1, 0}, p.Readings[2].Buckets)

	rr = httptest.NewRecorder()
	handlers.GetVitals(rr, httptest.NewRequest(http.MethodGet, "/api/vitals?url=https%3A%2F%2Fnowhere.example%2F&account_id=9", nil))
	p = decodePanel(t, rr)
	assert.Equal(t, vitals.StateNoData, p.State)

	rr = httptest.NewRecorder()
	handlers.PostBeacon(rr, httptest.NewRequest(http.MethodPost, "/api/vitals/beacon", strings.NewReader(`{"samples": [{"account_id": 9, "page_url": "x"}]}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
