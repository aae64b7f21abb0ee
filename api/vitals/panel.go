package vitals

import (
	"log/slog"
	"math"
)

// Inputs are the panel settings supplied by the dashboard.
type Inputs struct {
	TargetURL string    `json:"target_url"`
	UseLike   bool      `json:"use_like"`
	AccountID int64     `json:"account_id"`
	TimeRange TimeRange `json:"time_range"`
}

// Ready reports whether the inputs are sufficient to issue a query.
func (in Inputs) Ready() bool {
	return in.TargetURL != "" && in.AccountID > 0
}

// QueryResult is the state of a query execution as seen by the panel.
type QueryResult struct {
	Loading bool
	Err     error
	Rows    Results
}

// State is the panel display state.
type State string

const (
	StateInputsRequired State = "inputs_required"
	StateLoading        State = "loading"
	StateError          State = "error"
	StateNoData         State = "no_data"
	StateReady          State = "ready"
)

// Static messages shown for the short-circuit states.
const (
	MessageInputsRequired = "Please provide PageUrl and Account ID"
	MessageError          = "Oops! Something went wrong."
	MessageNoData         = "No data matching provided PageUrl."
)

// BucketSeries is one segment of a metric's distribution bar.
type BucketSeries struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Unit  string `json:"unit"`
	Count uint64 `json:"count"`
}

// Reading is the rendered state of one vital. Series carries the bucket
// counts as the good, needs-improvement and poor segments of a stacked bar.
type Reading struct {
	Title       string         `json:"title"`
	Metric      Metric         `json:"metric"`
	Percentile  float64        `json:"percentile"`
	Unit        string         `json:"unit"`
	Available   bool           `json:"available"`
	Buckets     [3]uint64      `json:"buckets"`
	Series      []BucketSeries `json:"series"`
	Level       Level          `json:"level"`
	Style       LevelStyle     `json:"style"`
	Description string         `json:"description"`
}

func bucketSeries(buckets [3]uint64, styles Styles) []BucketSeries {
	series := make([]BucketSeries, len(buckets))
	for i, c := range buckets {
		st := styles.For(Level(i))
		series[i] = BucketSeries{Name: st.Label, Color: st.Color, Unit: "COUNT", Count: c}
	}
	return series
}

// Panel is what the dashboard draws.
type Panel struct {
	State    State     `json:"state"`
	Message  string    `json:"message,omitempty"`
	Total    uint64    `json:"total,omitempty"`
	Readings []Reading `json:"readings,omitempty"`
}

// Renderer turns inputs and a query result into a panel.
type Renderer struct {
	Logger *slog.Logger
	Styles Styles
}

// NewRenderer returns a renderer with DefaultStyles.
func NewRenderer(log *slog.Logger) *Renderer {
	return &Renderer{Logger: log, Styles: DefaultStyles}
}

// Render applies the short-circuit states in order: missing inputs,
// loading, query error, empty result. Otherwise it emits one reading per
// metric in Specs order. A malformed result renders as an error.
func (r *Renderer) Render(in Inputs, res QueryResult) Panel {
	if !in.Ready() {
		return Panel{State: StateInputsRequired, Message: MessageInputsRequired}
	}
	if res.Loading {
		return Panel{State: StateLoading}
	}
	if res.Err != nil {
		r.log().Error("vitals query failed", "error", res.Err.Error())
		return Panel{State: StateError, Message: MessageError}
	}

	if err := res.Rows.Validate(); err != nil {
		r.log().Error("vitals result malformed", "error", err.Error(), "rows", len(res.Rows))
		return Panel{State: StateError, Message: MessageError}
	}

	total, err := res.Rows.Total()
	if err != nil {
		r.log().Error("vitals result malformed", "error", err.Error(), "rows", len(res.Rows))
		return Panel{State: StateError, Message: MessageError}
	}
	if math.IsNaN(total) || total <= 0 {
		return Panel{State: StateNoData, Message: MessageNoData}
	}

	readings, err := r.Readings(res.Rows)
	if err != nil {
		r.log().Error("vitals result malformed", "error", err.Error(), "rows", len(res.Rows))
		return Panel{State: StateError, Message: MessageError}
	}

	return Panel{
		State:    StateReady,
		Total:    uint64(math.Round(total)),
		Readings: readings,
	}
}

// Readings extracts and classifies every metric from rows.
func (r *Renderer) Readings(rows Results) ([]Reading, error) {
	readings := make([]Reading, 0, len(Specs))
	for _, spec := range Specs {
		reading, err := r.reading(rows, spec)
		if err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

func (r *Renderer) reading(rows Results, spec MetricSpec) (Reading, error) {
	value, err := rows.Value(spec.PercentileRow, string(spec.Name))
	if err != nil {
		return Reading{}, err
	}
	counts, err := rows.Values(spec.BucketStartRow, spec.BucketKeys[:])
	if err != nil {
		return Reading{}, err
	}

	reading := Reading{
		Title:       string(spec.Name),
		Metric:      spec.Name,
		Unit:        spec.Unit,
		Description: spec.Description,
	}
	for i, c := range counts {
		n, err := toCount(c)
		if err != nil {
			return Reading{}, err
		}
		reading.Buckets[i] = n
	}

	// A metric with no samples in the window has no percentile.
	if !math.IsNaN(value) && !math.IsInf(value, 0) {
		reading.Percentile = value
		reading.Available = true
		reading.Level = Classify(value, spec.Thresholds)
	}
	reading.Style = r.Styles.For(reading.Level)
	reading.Series = bucketSeries(reading.Buckets, r.Styles)
	return reading, nil
}

func (r *Renderer) log() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
