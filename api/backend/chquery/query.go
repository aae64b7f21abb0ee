package chquery

import (
	"fmt"
	"strings"
	"time"

	"github.com/malbeclabs/webvitals/api/vitals"
)

// DefaultTable holds beacon samples, one row per page view.
const DefaultTable = "page_view_timing"

// Columns maps each metric to its page_view_timing column.
var Columns = map[vitals.Metric]string{
	vitals.MetricLCP: "largest_contentful_paint",
	vitals.MetricFID: "first_input_delay",
	vitals.MetricCLS: "cumulative_layout_shift",
}

// BuildQuery returns the ClickHouse rendition of the panel query and its
// bind arguments. The URL, account and time bounds are bound, never
// interpolated.
func BuildQuery(table, targetURL string, useLike bool, accountID int64, begin, end time.Time) (string, []any) {
	exprs := make([]string, vitals.ResultRowCount)
	for _, s := range vitals.Specs {
		col := Columns[s.Name]
		pct := fmt.Sprintf("quantile(%s)(%s)", vitals.FormatNumber(float64(vitals.PercentileRank)/100), col)
		if s.Scale != 1 {
			pct += " * " + vitals.FormatNumber(s.Scale)
		}
		exprs[s.PercentileRow] = fmt.Sprintf("%s AS %s", pct, s.Name)
		for i, pred := range vitals.BucketPredicates(col, s.RawThresholds) {
			exprs[s.BucketStartRow+i] = fmt.Sprintf("countIf(%s) AS %s", pred, s.BucketKeys[i])
		}
	}
	exprs[vitals.TotalRow] = fmt.Sprintf("count() AS %s", vitals.TotalKey)

	op := "="
	if useLike {
		op = "LIKE"
	}

	query := fmt.Sprintf(`SELECT
	%s
FROM %s
WHERE account_id = ?
  AND page_url %s ?
  AND event_ts >= ?
  AND event_ts < ?`,
		strings.Join(exprs, ",\n\t"),
		table,
		op,
	)
	return query, []any{uint64(accountID), targetURL, begin.UTC(), end.UTC()}
}
