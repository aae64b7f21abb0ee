package vitals

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedResult is returned when a result row or column the panel
// layout depends on is missing.
var ErrMalformedResult = errors.New("malformed query result")

// ResultRow is one selected expression of the panel query.
type ResultRow struct {
	Alias  string             `json:"alias"`
	Values map[string]float64 `json:"values"`
}

// Results holds the rows of one query execution in expression order.
type Results []ResultRow

// NewResults lays out a flat alias->value map, as returned by engines that
// answer with a single wide row, into the positional row layout. Aliases
// missing from values produce empty rows, which fail on extraction.
func NewResults(values map[string]float64) Results {
	aliases := Aliases()
	rows := make(Results, len(aliases))
	for i, alias := range aliases {
		rows[i] = ResultRow{Alias: alias, Values: map[string]float64{}}
		if v, ok := values[alias]; ok {
			rows[i].Values[alias] = v
		}
	}
	return rows
}

// Value returns column key of the row at index.
func (r Results) Value(index int, key string) (float64, error) {
	if index < 0 || index >= len(r) {
		return 0, fmt.Errorf("%w: row %d out of range (%d rows)", ErrMalformedResult, index, len(r))
	}
	v, ok := r[index].Values[key]
	if !ok {
		return 0, fmt.Errorf("%w: row %d has no %q", ErrMalformedResult, index, key)
	}
	return v, nil
}

// Values reads len(keys) consecutive rows starting at start, one key per row.
func (r Results) Values(start int, keys []string) ([]float64, error) {
	out := make([]float64, len(keys))
	for i, key := range keys {
		v, err := r.Value(start+i, key)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Total returns the total-count row.
func (r Results) Total() (float64, error) {
	return r.Value(TotalRow, TotalKey)
}

// Validate checks the row count and that every row is aliased as the panel
// query selects it.
func (r Results) Validate() error {
	if len(r) != ResultRowCount {
		return fmt.Errorf("%w: got %d rows, want %d", ErrMalformedResult, len(r), ResultRowCount)
	}
	for i, alias := range Aliases() {
		if r[i].Alias != "" && r[i].Alias != alias {
			return fmt.Errorf("%w: row %d is %q, want %q", ErrMalformedResult, i, r[i].Alias, alias)
		}
	}
	return nil
}

func toCount(v float64) (uint64, error) {
	if math.IsNaN(v) || v < 0 {
		return 0, fmt.Errorf("%w: invalid count %v", ErrMalformedResult, v)
	}
	return uint64(math.Round(v)), nil
}

// NewResultsFromRow converts a single wide row keyed by alias, as scanned
// from a SQL engine or decoded from JSON, into Results. NULL values become
// NaN.
func NewResultsFromRow(row map[string]any) (Results, error) {
	values := make(map[string]float64, len(row))
	for _, alias := range Aliases() {
		raw, ok := row[alias]
		if !ok {
			continue
		}
		v, ok := ToFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: column %q has type %T", ErrMalformedResult, alias, raw)
		}
		values[alias] = v
	}
	return NewResults(values), nil
}

// ToFloat converts a numeric driver value to float64. Nil values and nil
// pointers convert to NaN.
func ToFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return math.NaN(), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case *float64:
		if val == nil {
			return math.NaN(), true
		}
		return *val, true
	case *uint64:
		if val == nil {
			return math.NaN(), true
		}
		return float64(*val), true
	case *int64:
		if val == nil {
			return math.NaN(), true
		}
		return float64(*val), true
	default:
		return 0, false
	}
}
