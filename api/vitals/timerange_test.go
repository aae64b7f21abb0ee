package vitals_test

import (
	"testing"
	"time"

	"github.com/malbeclabs/webvitals/api/vitals"
	"github.com/stretchr/testify/assert"
)

func TestTimeRange_Bounds(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	begin := now.Add(-48 * time.Hour)
	end := now.Add(-24 * time.Hour)

	tests := []struct {
		name      string
		tr        vitals.TimeRange
		wantBegin time.Time
		wantEnd   time.Time
	}{
		{"relative", vitals.LastDuration(3 * time.Hour), now.Add(-3 * time.Hour), now},
		{"absolute", vitals.TimeRange{Begin: begin, End: end}, begin, end},
		{"open ended", vitals.TimeRange{Begin: begin}, begin, now},
		{"zero", vitals.TimeRange{}, now.Add(-vitals.DefaultWindow), now},
		{"duration wins", vitals.TimeRange{Begin: begin, End: end, Duration: time.Hour}, now.Add(-time.Hour), now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, e := tt.tr.Bounds(now)
			assert.Equal(t, tt.wantBegin, b)
			assert.Equal(t, tt.wantEnd, e)
		})
	}
}

func TestTimeRange_NRQL(t *testing.T) {
	begin := time.UnixMilli(1700000000000)

	assert.Equal(t, "SINCE 3600 SECONDS AGO", vitals.LastDuration(time.Hour).NRQL())
	assert.Equal(t, "SINCE 1700000000000 UNTIL 1700000060000", vitals.TimeRange{Begin: begin, End: begin.Add(time.Minute)}.NRQL())
	assert.Equal(t, "SINCE 1700000000000", vitals.TimeRange{Begin: begin}.NRQL())
	assert.Equal(t, "", vitals.TimeRange{}.NRQL())
}
