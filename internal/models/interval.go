package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"qeval/internal/statespace"
)

// IntervalForecaster is implemented by adapters that can attach prediction
// intervals to their point forecasts. Adapters without a usable error
// variance simply do not implement it.
type IntervalForecaster interface {
	// ForecastInterval returns point forecasts with symmetric bounds at the
	// given confidence level for horizons 1..steps.
	ForecastInterval(state State, steps int, futureExog []float64, confidence float64) (point, lower, upper []float64, err error)
}

// ForecastInterval widens the CSS residual standard error with the square
// root of the horizon, matching the variance growth of an integrated series.
func (m *SARIMA) ForecastInterval(state State, steps int, futureExog []float64, confidence float64) ([]float64, []float64, []float64, error) {
	st, ok := state.(*sarimaState)
	if !ok {
		return nil, nil, nil, fmt.Errorf("state %T does not belong to the SARIMA adapter", state)
	}

	point, err := m.Forecast(state, steps, futureExog)
	if err != nil {
		return nil, nil, nil, err
	}

	z := normalQuantile((1 + clampConfidence(confidence)) / 2)
	lower := make([]float64, steps)
	upper := make([]float64, steps)
	for h := 0; h < steps; h++ {
		se := math.Sqrt(st.variance) * math.Sqrt(float64(h+1))
		lower[h] = point[h] - z*se
		upper[h] = point[h] + z*se
	}
	return point, lower, upper, nil
}

// ForecastInterval derives bounds from the smoothed signal variance plus the
// estimated observation noise over the forecast range.
func (m *Structural) ForecastInterval(state State, steps int, futureExog []float64, confidence float64) ([]float64, []float64, []float64, error) {
	st, ok := state.(*structuralState)
	if !ok {
		return nil, nil, nil, fmt.Errorf("state %T does not belong to the structural adapter", state)
	}

	n := len(st.values)
	y := make([]statespace.Value, n+steps)
	for i, v := range st.values {
		y[i] = statespace.Observed(v)
	}
	for h := 0; h < steps; h++ {
		y[n+h] = statespace.Missing()
	}

	var x []float64
	if st.spec.HasRegressor {
		x = make([]float64, n+steps)
		copy(x, st.exog)
		for h := 0; h < steps; h++ {
			x[n+h] = futureExogValue(futureExog, h)
		}
	}

	res, err := statespace.Smooth(st.spec, y, x, st.variances)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("structural forecast: %w", err)
	}

	z := normalQuantile((1 + clampConfidence(confidence)) / 2)
	point := make([]float64, steps)
	lower := make([]float64, steps)
	upper := make([]float64, steps)
	for h := 0; h < steps; h++ {
		point[h] = res.Signal[n+h]
		se := math.Sqrt(math.Max(0, res.SignalVariance[n+h]) + st.variances.Observation)
		lower[h] = point[h] - z*se
		upper[h] = point[h] + z*se
	}
	return point, lower, upper, nil
}

func clampConfidence(c float64) float64 {
	if c <= 0 || c >= 1 {
		return 0.95
	}
	return c
}

// normalQuantile returns the standard normal quantile at p.
func normalQuantile(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return distuv.Normal{Mu: 0, Sigma: 1}.Quantile(p)
}
