package vitals

import (
	"fmt"
	"time"
)

// DefaultWindow is used when no time range is given.
const DefaultWindow = time.Hour

// TimeRange is the panel's time window. A positive Duration means the
// window ending now; otherwise Begin and End are absolute bounds.
type TimeRange struct {
	Begin    time.Time     `json:"begin_time,omitzero"`
	End      time.Time     `json:"end_time,omitzero"`
	Duration time.Duration `json:"duration,omitempty"`
}

// LastDuration returns a relative time range.
func LastDuration(d time.Duration) TimeRange {
	return TimeRange{Duration: d}
}

// Bounds resolves tr against now.
func (tr TimeRange) Bounds(now time.Time) (time.Time, time.Time) {
	switch {
	case tr.Duration > 0:
		return now.Add(-tr.Duration), now
	case !tr.Begin.IsZero() && !tr.End.IsZero():
		return tr.Begin, tr.End
	case !tr.Begin.IsZero():
		return tr.Begin, now
	default:
		return now.Add(-DefaultWindow), now
	}
}

// NRQL renders tr as a SINCE/UNTIL clause, or "" to use the query engine's
// default window.
func (tr TimeRange) NRQL() string {
	switch {
	case tr.Duration > 0:
		return fmt.Sprintf("SINCE %d SECONDS AGO", int64(tr.Duration/time.Second))
	case !tr.Begin.IsZero() && !tr.End.IsZero():
		return fmt.Sprintf("SINCE %d UNTIL %d", tr.Begin.UnixMilli(), tr.End.UnixMilli())
	case !tr.Begin.IsZero():
		return fmt.Sprintf("SINCE %d", tr.Begin.UnixMilli())
	default:
		return ""
	}
}
