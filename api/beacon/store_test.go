package beacon_test

import (
	"context"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/webvitals/api/backend/chquery"
	"github.com/malbeclabs/webvitals/api/beacon"
	apitesting "github.com/malbeclabs/webvitals/api/testing"
	"github.com/malbeclabs/webvitals/api/vitals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testChDB *apitesting.ClickHouseDB

func TestMain(m *testing.M) {
	var err error
	testChDB, err = apitesting.NewClickHouseDB(context.Background(), slog.Default(), nil)
	if err != nil {
		slog.Error("failed to start ClickHouse container", "error", err)
		os.Exit(1)
	}

	code := m.Run()
	testChDB.Close()
	os.Exit(code)
}

func ptr(v float64) *float64 { return &v }

func TestPageViewTiming_Validate(t *testing.T) {
	t.Parallel()

	valid := beacon.PageViewTiming{AccountID: 1, PageURL: "https://example.com/", FirstInputDelay: ptr(12)}
	require.NoError(t, valid.Validate())

	cases := map[string]beacon.PageViewTiming{
		"no account":  {PageURL: "https://example.com/", FirstInputDelay: ptr(1)},
		"blank url":   {AccountID: 1, PageURL: "  ", FirstInputDelay: ptr(1)},
		"no metrics":  {AccountID: 1, PageURL: "https://example.com/"},
		"negative":    {AccountID: 1, PageURL: "https://example.com/", CumulativeLayoutShift: ptr(-0.1)},
		"nan":         {AccountID: 1, PageURL: "https://example.com/", LargestContentfulPaint: ptr(math.NaN())},
		"infinite":    {AccountID: 1, PageURL: "https://example.com/", LargestContentfulPaint: ptr(math.Inf(1))},
		"url too big": {AccountID: 1, PageURL: "https://example.com/" + string(make([]byte, 2048)), FirstInputDelay: ptr(1)},
	}
	for name, s := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Validate(), beacon.ErrInvalidSample)
		})
	}
}

func TestStoreConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := beacon.StoreConfig{}
	require.Error(t, cfg.Validate())

	cfg.Logger = slog.Default()
	require.Error(t, cfg.Validate())
}

func TestStore_InsertAndQuery(t *testing.T) {
	conn := apitesting.SetupTestClickHouse(t, testChDB)
	ctx := t.Context()
	log := slog.Default()
	now := time.Now().UTC().Truncate(time.Millisecond)
	clock := clockwork.NewFakeClockAt(now)

	store, err := beacon.NewStore(beacon.StoreConfig{Logger: log, Conn: conn, Clock: clock, WriteBatchSize: 3})
	require.NoError(t, err)

	var samples []beacon.PageViewTiming
	for i := range 10 {
		samples = append(samples, beacon.PageViewTiming{
			Timestamp:              now.Add(-time.Duration(i) * time.Minute),
			AccountID:              5,
			PageURL:                "https://example.com/checkout",
			LargestContentfulPaint: ptr(float64(i)),
			FirstInputDelay:        ptr(float64(i * 50)),
		})
	}
	// Outside the default one hour window.
	samples = append(samples, beacon.PageViewTiming{
		Timestamp:              now.Add(-2 * time.Hour),
		AccountID:              5,
		PageURL:                "https://example.com/checkout",
		LargestContentfulPaint: ptr(100),
	})
	require.NoError(t, store.InsertPageViewTimings(ctx, samples))

	var n uint64
	require.NoError(t, conn.QueryRow(ctx, "SELECT count() FROM page_view_timing").Scan(&n))
	assert.Equal(t, uint64(11), n)

	exec, err := chquery.NewExecutor(chquery.ExecutorConfig{Logger: log, Conn: conn})
	require.NoError(t, err)
	svc, err := vitals.NewService(vitals.ServiceConfig{Logger: log, Clock: clock, Executor: exec})
	require.NoError(t, err)

	clock.Advance(time.Second)
	p := svc.Panel(ctx, vitals.Inputs{TargetURL: "%/checkout", UseLike: true, AccountID: 5})
	require.Equal(t, vitals.StateReady, p.State)
	assert.Equal(t, uint64(10), p.Total)

	// LCP seconds 0..9: <=2.5 -> 0,1,2; (2.5,4] -> 3,4; >4 -> 5..9
	assert.Equal(t, [3]uint64{3, 2, 5}, p.Readings[0].Buckets)
	// FID ms 0..450 step 50: <=100 -> 3; (100,300] -> 4; >300 -> 3
	assert.Equal(t, [3]uint64{3, 4, 3}, p.Readings[1].Buckets)
	// CLS never reported.
	assert.False(t, p.Readings[2].Available)
	assert.Equal(t, [3]uint64{0, 0, 0}, p.Readings[2].Buckets)

	other := svc.Panel(ctx, vitals.Inputs{TargetURL: "%/checkout", UseLike: true, AccountID: 6})
	assert.Equal(t, vitals.StateNoData, other.State)
}

func TestStore_InsertRejectsInvalidBeforeWriting(t *testing.T) {
	conn := apitesting.SetupTestClickHouse(t, testChDB)
	ctx := t.Context()

	store, err := beacon.NewStore(beacon.StoreConfig{Logger: slog.Default(), Conn: conn})
	require.NoError(t, err)

	err = store.InsertPageViewTimings(ctx, []beacon.PageViewTiming{
		{AccountID: 1, PageURL: "https://example.com/", FirstInputDelay: ptr(1)},
		{AccountID: 1, PageURL: ""},
	})
	require.ErrorIs(t, err, beacon.ErrInvalidSample)

	var n uint64
	require.NoError(t, conn.QueryRow(ctx, "SELECT count() FROM page_view_timing").Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, store.InsertPageViewTimings(ctx, nil))
}
