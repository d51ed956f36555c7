// Package timeseries provides the quarterly series type shared by every
// stage of the evaluation pipeline, plus year-over-year growth derivation.
package timeseries

import (
	"fmt"
	"math"
	"time"

	"qeval/internal/errors"
)

// QuartersPerYear is the fixed seasonal period of the pipeline.
const QuartersPerYear = 4

// Observation is a single dated value on the quarterly grid.
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series is an immutable, regularly-spaced quarterly series. The constructor
// enforces strictly increasing dates with exact quarterly spacing; a gap is a
// fatal precondition violation, never silently tolerated.
type Series struct {
	dates  []time.Time
	values []float64
}

// FromObservations validates and builds a Series. Dates are normalized to the
// first day of their quarter before the spacing check.
func FromObservations(obs []Observation) (*Series, error) {
	if len(obs) == 0 {
		return nil, errors.NewDataIntegrityError("series is empty", nil)
	}

	dates := make([]time.Time, len(obs))
	values := make([]float64, len(obs))
	for i, o := range obs {
		if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return nil, errors.NewDataIntegrityError(
				fmt.Sprintf("non-finite value at %s", o.Date.Format("2006-01-02")), nil)
		}
		dates[i] = QuarterStart(o.Date)
		values[i] = o.Value
	}

	for i := 1; i < len(dates); i++ {
		want := AddQuarters(dates[i-1], 1)
		if !dates[i].Equal(want) {
			return nil, errors.NewDataIntegrityError(
				fmt.Sprintf("irregular quarterly spacing: %s followed by %s, expected %s",
					dates[i-1].Format("2006-01-02"),
					dates[i].Format("2006-01-02"),
					want.Format("2006-01-02")), nil)
		}
	}

	return &Series{dates: dates, values: values}, nil
}

// NewQuarterly builds a Series from a start quarter and consecutive values.
func NewQuarterly(start time.Time, values []float64) (*Series, error) {
	obs := make([]Observation, len(values))
	d := QuarterStart(start)
	for i, v := range values {
		obs[i] = Observation{Date: d, Value: v}
		d = AddQuarters(d, 1)
	}
	return FromObservations(obs)
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.values)
}

// Date returns the date at index i.
func (s *Series) Date(i int) time.Time {
	return s.dates[i]
}

// Value returns the value at index i.
func (s *Series) Value(i int) float64 {
	return s.values[i]
}

// Values returns a copy of the value slice.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Dates returns a copy of the date slice.
func (s *Series) Dates() []time.Time {
	out := make([]time.Time, len(s.dates))
	copy(out, s.dates)
	return out
}

// Window returns the sub-series covering indices [0, end]. The underlying
// storage is shared; the Series API keeps it read-only.
func (s *Series) Window(end int) *Series {
	return &Series{dates: s.dates[:end+1], values: s.values[:end+1]}
}

// Last returns the final observation.
func (s *Series) Last() Observation {
	n := len(s.values)
	return Observation{Date: s.dates[n-1], Value: s.values[n-1]}
}

// ValueAt looks up the value on an exact grid date.
func (s *Series) ValueAt(date time.Time) (float64, bool) {
	d := QuarterStart(date)
	if len(s.dates) == 0 || d.Before(s.dates[0]) {
		return 0, false
	}
	idx := QuartersBetween(s.dates[0], d)
	if idx < 0 || idx >= len(s.dates) || !s.dates[idx].Equal(d) {
		return 0, false
	}
	return s.values[idx], true
}

// Mean returns the arithmetic mean of the series.
func (s *Series) Mean() float64 {
	if len(s.values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range s.values {
		sum += v
	}
	return sum / float64(len(s.values))
}

// Variance returns the sample variance of the series.
func (s *Series) Variance() float64 {
	if len(s.values) < 2 {
		return 0
	}
	mean := s.Mean()
	sumSq := 0.0
	for _, v := range s.values {
		diff := v - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(s.values)-1)
}

// Regressor is a named covariate aligned one-to-one with a Series grid.
type Regressor struct {
	Name   string
	Values []float64
}

// Validate checks that the regressor matches the series grid length.
func (r *Regressor) Validate(s *Series) error {
	if len(r.Values) != s.Len() {
		return errors.NewDataIntegrityError(
			fmt.Sprintf("regressor %q has %d values, series has %d", r.Name, len(r.Values), s.Len()), nil)
	}
	for i, v := range r.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewDataIntegrityError(
				fmt.Sprintf("regressor %q has non-finite value at index %d", r.Name, i), nil)
		}
	}
	return nil
}

// Window returns the regressor values covering indices [0, end].
func (r *Regressor) Window(end int) *Regressor {
	return &Regressor{Name: r.Name, Values: r.Values[:end+1]}
}

// QuarterStart normalizes a date to the first day of its quarter (UTC).
func QuarterStart(t time.Time) time.Time {
	month := time.Month(((int(t.Month())-1)/3)*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
}

// AddQuarters advances a quarter-start date by n quarters.
func AddQuarters(t time.Time, n int) time.Time {
	return QuarterStart(t).AddDate(0, 3*n, 0)
}

// QuartersBetween returns the signed quarter count from a to b.
func QuartersBetween(a, b time.Time) int {
	a, b = QuarterStart(a), QuarterStart(b)
	years := b.Year() - a.Year()
	quarters := (int(b.Month()) - int(a.Month())) / 3
	return years*QuartersPerYear + quarters
}

// FormatQuarter renders a grid date as e.g. "2019Q3".
func FormatQuarter(t time.Time) string {
	q := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("%dQ%d", t.Year(), q)
}
