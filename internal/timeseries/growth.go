package timeseries

import "time"

// GrowthPoint is a year-over-year growth rate at one grid date.
type GrowthPoint struct {
	Date time.Time `json:"date"`
	Rate float64   `json:"rate"`
}

// GrowthPolicy controls where the four-quarter-lag denominator comes from
// when deriving growth for a forecast path. With PreferActual set, a realized
// value at the lag date wins over a forecast value for the same date, so
// forecast error does not compound into the denominator.
type GrowthPolicy struct {
	PreferActual bool
}

// DefaultGrowthPolicy prefers actuals for historical lag dates.
func DefaultGrowthPolicy() GrowthPolicy {
	return GrowthPolicy{PreferActual: true}
}

// YearOverYear computes v[t]/v[t-4] - 1 for every index where both values
// exist. The result has Len()-4 points (empty for shorter series).
func YearOverYear(s *Series) []GrowthPoint {
	n := s.Len()
	if n <= QuartersPerYear {
		return nil
	}
	out := make([]GrowthPoint, 0, n-QuartersPerYear)
	for t := QuartersPerYear; t < n; t++ {
		out = append(out, GrowthPoint{
			Date: s.Date(t),
			Rate: s.Value(t)/s.Value(t-QuartersPerYear) - 1,
		})
	}
	return out
}

// ForecastYearOverYear computes growth for a dated forecast path. The
// denominator for each point is the value four quarters earlier, resolved
// per policy: an actual from the realized series when available (and
// preferred), otherwise an earlier point of the same forecast path. Points
// whose lag value cannot be resolved are skipped.
func ForecastYearOverYear(path []Observation, actuals *Series, policy GrowthPolicy) []GrowthPoint {
	byDate := make(map[time.Time]float64, len(path))
	for _, p := range path {
		byDate[QuarterStart(p.Date)] = p.Value
	}

	out := make([]GrowthPoint, 0, len(path))
	for _, p := range path {
		lagDate := AddQuarters(p.Date, -QuartersPerYear)

		var lag float64
		var ok bool
		if policy.PreferActual {
			lag, ok = actuals.ValueAt(lagDate)
			if !ok {
				lag, ok = byDate[lagDate]
			}
		} else {
			lag, ok = byDate[lagDate]
			if !ok {
				lag, ok = actuals.ValueAt(lagDate)
			}
		}
		if !ok || lag == 0 {
			continue
		}

		out = append(out, GrowthPoint{Date: QuarterStart(p.Date), Rate: p.Value/lag - 1})
	}
	return out
}
