package vitals

import (
	"fmt"
	"strconv"
	"strings"
)

// PercentileRank is the percentile reported for every vital.
const PercentileRank = 75

// EventType is the telemetry event stream the panel aggregates.
const EventType = "PageViewTiming"

// URLAttribute is the event attribute the target URL is matched against.
const URLAttribute = "pageUrl"

// BuildNRQL returns the panel query for targetURL. The URL is compared with
// equality, or with LIKE when useLike is set, in which case any % wildcards
// in targetURL are kept.
func BuildNRQL(targetURL string, useLike bool) string {
	op := "="
	if useLike {
		op = "LIKE"
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s %s '%s'",
		strings.Join(nrqlExpressions(), ", "),
		EventType,
		URLAttribute,
		op,
		EscapeNRQL(targetURL),
	)
}

// BuildNRQLWithTimeRange appends the SINCE/UNTIL clause for tr.
func BuildNRQLWithTimeRange(targetURL string, useLike bool, tr TimeRange) string {
	q := BuildNRQL(targetURL, useLike)
	if clause := tr.NRQL(); clause != "" {
		q += " " + clause
	}
	return q
}

// EscapeNRQL escapes a value for use inside a single-quoted NRQL literal.
func EscapeNRQL(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}

func nrqlExpressions() []string {
	exprs := make([]string, ResultRowCount)
	for _, s := range Specs {
		pct := fmt.Sprintf("percentile(%s, %d)", s.Attribute, PercentileRank)
		if s.Scale != 1 {
			pct += " * " + FormatNumber(s.Scale)
		}
		exprs[s.PercentileRow] = fmt.Sprintf("%s AS '%s'", pct, s.Name)
		for i, pred := range BucketPredicates(s.Attribute, s.RawThresholds) {
			exprs[s.BucketStartRow+i] = fmt.Sprintf("filter(count(*), WHERE %s) AS '%s'", pred, s.BucketKeys[i])
		}
	}
	exprs[TotalRow] = fmt.Sprintf("count(*) AS '%s'", TotalKey)
	return exprs
}

// BucketPredicates returns the good, needs-improvement and poor predicates
// for column. The ranges do not overlap: (-inf, low], (low, high], (high, inf).
func BucketPredicates(column string, thresholds [2]float64) [3]string {
	low, high := FormatNumber(thresholds[0]), FormatNumber(thresholds[1])
	return [3]string{
		fmt.Sprintf("%s <= %s", column, low),
		fmt.Sprintf("%s > %s AND %s <= %s", column, low, column, high),
		fmt.Sprintf("%s > %s", column, high),
	}
}

// FormatNumber renders v with the fewest digits that round-trip.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
