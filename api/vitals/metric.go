package vitals

// Metric names a Core Web Vital.
type Metric string

const (
	MetricLCP Metric = "LCP"
	MetricFID Metric = "FID"
	MetricCLS Metric = "CLS"
)

// Result row layout of the panel query. Percentile rows come first in
// metric order, followed by three bucket rows per metric and the total.
const (
	ResultRowCount = 13
	TotalRow       = 12
	TotalKey       = "count"
)

// MetricSpec describes how one vital is queried, extracted and classified.
type MetricSpec struct {
	Name Metric
	Unit string

	// Attribute is the PageViewTiming attribute holding raw samples.
	Attribute string

	// Scale converts the raw percentile into Unit. LCP is recorded in
	// seconds and reported in milliseconds.
	Scale float64

	// RawThresholds bound the bucket counts in the attribute's raw unit.
	RawThresholds [2]float64

	// Thresholds classify the scaled percentile.
	Thresholds [2]float64

	BucketKeys     [3]string
	PercentileRow  int
	BucketStartRow int

	Description string
}

// Specs is the fixed, ordered metric table. Row indices for the result
// extractor are defined here and nowhere else.
var Specs = [3]MetricSpec{
	{
		Name:           MetricLCP,
		Unit:           "MS",
		Attribute:      "largestContentfulPaint",
		Scale:          1000,
		RawThresholds:  [2]float64{2.5, 4},
		Thresholds:     [2]float64{2.5 * 1000, 4 * 1000},
		BucketKeys:     [3]string{"LCP_0", "LCP_1", "LCP_2"},
		PercentileRow:  0,
		BucketStartRow: 3,
		Description:    "Largest Contentful Paint. 75 percentile value shall be 2.5 sec or less.",
	},
	{
		Name:           MetricFID,
		Unit:           "MS",
		Attribute:      "firstInputDelay",
		Scale:          1,
		RawThresholds:  [2]float64{100, 300},
		Thresholds:     [2]float64{100, 300},
		BucketKeys:     [3]string{"FID_0", "FID_1", "FID_2"},
		PercentileRow:  1,
		BucketStartRow: 6,
		Description:    "First Input Delay. 75 percentile value shall be 100 ms or less.",
	},
	{
		Name:           MetricCLS,
		Unit:           "MS",
		Attribute:      "cumulativeLayoutShift",
		Scale:          1,
		RawThresholds:  [2]float64{0.1, 0.25},
		Thresholds:     [2]float64{0.1, 0.25},
		BucketKeys:     [3]string{"CLS_0", "CLS_1", "CLS_2"},
		PercentileRow:  2,
		BucketStartRow: 9,
		Description:    "Cumulative Layout Shift. 75 percentile value shall be 0.1 or less.",
	},
}

// Aliases returns the result aliases in query expression order, one per
// result row.
func Aliases() []string {
	aliases := make([]string, ResultRowCount)
	for _, s := range Specs {
		aliases[s.PercentileRow] = string(s.Name)
		for i, k := range s.BucketKeys {
			aliases[s.BucketStartRow+i] = k
		}
	}
	aliases[TotalRow] = TotalKey
	return aliases
}
