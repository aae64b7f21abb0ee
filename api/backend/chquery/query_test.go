package chquery_test

import (
	"strings"
	"testing"
	"time"

	"github.com/malbeclabs/webvitals/api/backend/chquery"
	"github.com/malbeclabs/webvitals/api/vitals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	begin := time.Date(2024, 6, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	end := begin.Add(time.Hour)

	query, args := chquery.BuildQuery(chquery.DefaultTable, "https://example.com/?q=1'--", false, 42, begin, end)

	assert.Contains(t, query, "quantile(0.75)(largest_contentful_paint) * 1000 AS LCP")
	assert.Contains(t, query, "quantile(0.75)(first_input_delay) AS FID")
	assert.Contains(t, query, "countIf(largest_contentful_paint <= 2.5) AS LCP_0")
	assert.Contains(t, query, "countIf(first_input_delay > 100 AND first_input_delay <= 300) AS FID_1")
	assert.Contains(t, query, "countIf(cumulative_layout_shift > 0.25) AS CLS_2")
	assert.Contains(t, query, "count() AS count")
	assert.Contains(t, query, "page_url = ?")
	assert.NotContains(t, query, "example.com")

	require.Len(t, args, 4)
	assert.Equal(t, uint64(42), args[0])
	assert.Equal(t, "https://example.com/?q=1'--", args[1])
	assert.Equal(t, time.UTC, args[2].(time.Time).Location())
	assert.True(t, args[3].(time.Time).Equal(end))
}

func TestBuildQuery_ExpressionOrder(t *testing.T) {
	t.Parallel()

	query, _ := chquery.BuildQuery("t", "u", true, 1, time.Now(), time.Now())
	assert.Contains(t, query, "page_url LIKE ?")

	last := -1
	for _, alias := range vitals.Aliases() {
		idx := strings.Index(query, " AS "+alias+",")
		if idx < 0 {
			idx = strings.Index(query, " AS "+alias+"\n")
		}
		require.GreaterOrEqual(t, idx, 0, "alias %s missing", alias)
		assert.Greater(t, idx, last, "alias %s out of order", alias)
		last = idx
	}
}

func TestColumns_CoverAllMetrics(t *testing.T) {
	t.Parallel()

	for _, s := range vitals.Specs {
		assert.NotEmpty(t, chquery.Columns[s.Name], "metric %s", s.Name)
	}
}
