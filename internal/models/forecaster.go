// Package models provides the uniform fit/forecast contract shared by the
// three competing forecasters: seasonal ARIMA, random-walk-with-drift, and
// the structural state-space model.
package models

import (
	"qeval/internal/timeseries"
)

// Canonical model names used throughout records, tables and logs.
const (
	NameKalman = "Kalman"
	NameARMA   = "ARMA"
	NameRW     = "RW"
)

// State is an opaque fitted-model snapshot. It is valid only for the window
// it was fitted on and is never reused across origins; every origin triggers
// a fresh Fit with no warm start.
type State interface{}

// Forecaster is the contract every model adapter satisfies. Fit estimates
// parameters on a window; Forecast extrapolates a fitted state a fixed
// number of quarters ahead. Implementations must be deterministic for
// identical inputs.
type Forecaster interface {
	// Name returns the canonical model name.
	Name() string

	// Fit estimates model parameters from the window and the optional
	// aligned exogenous regressor. A returned error marks the (model,
	// origin) pair as a recoverable fit failure.
	Fit(window *timeseries.Series, exog *timeseries.Regressor) (State, error)

	// Forecast produces point forecasts for horizons 1..steps. futureExog
	// supplies the regressor value per forecast step; nil means zero for
	// every step (the default for one-off indicator regressors).
	Forecast(state State, steps int, futureExog []float64) ([]float64, error)
}

// exogCoeff is the single-regressor OLS coefficient used by the ARMA and RW
// adapters to partial the regressor out of the window before fitting, and to
// add its contribution back at forecast time. The structural adapter handles
// the regressor inside the state vector instead, but honors the same
// alignment contract.
func exogCoeff(values []float64, x []float64) float64 {
	n := len(values)
	if n == 0 || len(x) != n {
		return 0
	}
	var xMean, yMean float64
	for i := 0; i < n; i++ {
		xMean += x[i]
		yMean += values[i]
	}
	xMean /= float64(n)
	yMean /= float64(n)

	var sxx, sxy float64
	for i := 0; i < n; i++ {
		dx := x[i] - xMean
		sxx += dx * dx
		sxy += dx * (values[i] - yMean)
	}
	if sxx == 0 {
		return 0
	}
	return sxy / sxx
}

// adjustForExog returns values minus beta*x.
func adjustForExog(values []float64, x []float64, beta float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	if beta == 0 || len(x) != len(values) {
		return out
	}
	for i := range out {
		out[i] -= beta * x[i]
	}
	return out
}

// futureExogValue returns the regressor value for forecast step h (0-based),
// defaulting to zero when no future values were supplied.
func futureExogValue(futureExog []float64, h int) float64 {
	if h < len(futureExog) {
		return futureExog[h]
	}
	return 0
}
