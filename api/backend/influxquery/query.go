package influxquery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/webvitals/api/vitals"
)

// DefaultMeasurement is where browser agents write page view timings.
const DefaultMeasurement = vitals.EventType

const (
	urlTag     = "pageUrl"
	accountTag = "accountId"
)

// BuildQuery returns the InfluxDB SQL rendition of the panel query. The URL
// and account are bound as $url and $account; the time bounds are literal
// RFC3339 timestamps.
func BuildQuery(measurement, targetURL string, useLike bool, accountID int64, begin, end time.Time) (string, map[string]any) {
	exprs := make([]string, vitals.ResultRowCount)
	for _, s := range vitals.Specs {
		col := quoteIdent(s.Attribute)
		pct := fmt.Sprintf("approx_percentile_cont(%s, %s)", col, vitals.FormatNumber(float64(vitals.PercentileRank)/100))
		if s.Scale != 1 {
			pct += " * " + vitals.FormatNumber(s.Scale)
		}
		exprs[s.PercentileRow] = fmt.Sprintf("%s AS %s", pct, quoteIdent(string(s.Name)))
		for i, pred := range vitals.BucketPredicates(col, s.RawThresholds) {
			exprs[s.BucketStartRow+i] = fmt.Sprintf("count(*) FILTER (WHERE %s) AS %s", pred, quoteIdent(s.BucketKeys[i]))
		}
	}
	exprs[vitals.TotalRow] = fmt.Sprintf("count(*) AS %s", quoteIdent(vitals.TotalKey))

	op := "="
	if useLike {
		op = "LIKE"
	}

	query := fmt.Sprintf(`SELECT
	%s
FROM %s
WHERE %s = $account
  AND %s %s $url
  AND time >= '%s'
  AND time < '%s'`,
		strings.Join(exprs, ",\n\t"),
		quoteIdent(measurement),
		quoteIdent(accountTag),
		quoteIdent(urlTag),
		op,
		begin.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
	)
	params := map[string]any{
		"account": strconv.FormatInt(accountID, 10),
		"url":     targetURL,
	}
	return query, params
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
