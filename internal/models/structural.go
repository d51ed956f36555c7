package models

import (
	"fmt"

	"qeval/internal/statespace"
	"qeval/internal/timeseries"
)

// Structural wraps the state-space engine: local trend plus quarterly
// seasonal components estimated by Kalman smoothing, with the exogenous
// regressor carried as a fixed state. Fitting runs the variance MLE on the
// window; forecasting extends the window with explicit missing slots and
// re-smooths at the fitted variances, reading the point forecast off the
// extrapolated signal.
type Structural struct {
	estimateSlopeVariance bool
}

// NewStructural creates the structural adapter with a deterministic slope.
func NewStructural() *Structural {
	return &Structural{}
}

// NewStructuralWithStochasticSlope additionally estimates a slope process
// variance.
func NewStructuralWithStochasticSlope() *Structural {
	return &Structural{estimateSlopeVariance: true}
}

type structuralState struct {
	spec      statespace.Spec
	variances statespace.Variances
	values    []float64
	exog      []float64
}

// Name returns "Kalman".
func (*Structural) Name() string {
	return NameKalman
}

// Fit estimates the noise variances on the window by maximum likelihood.
// Optimizer non-convergence surfaces as an error; the evaluator skips the
// origin and continues.
func (m *Structural) Fit(window *timeseries.Series, exog *timeseries.Regressor) (State, error) {
	var exogValues []float64
	if exog != nil {
		if err := exog.Validate(window); err != nil {
			return nil, err
		}
		exogValues = append([]float64(nil), exog.Values...)
	}

	spec := statespace.DefaultSpec(exogValues != nil)
	spec.EstimateSlopeVariance = m.estimateSlopeVariance

	y := make([]statespace.Value, window.Len())
	for i := range y {
		y[i] = statespace.Observed(window.Value(i))
	}

	res, err := statespace.Fit(spec, y, exogValues)
	if err != nil {
		return nil, fmt.Errorf("structural fit: %w", err)
	}

	return &structuralState{
		spec:      spec,
		variances: res.Variances,
		values:    window.Values(),
		exog:      exogValues,
	}, nil
}

// Forecast re-smooths the window extended by `steps` missing observations.
func (*Structural) Forecast(state State, steps int, futureExog []float64) ([]float64, error) {
	st, ok := state.(*structuralState)
	if !ok {
		return nil, fmt.Errorf("state %T does not belong to the structural adapter", state)
	}
	if steps < 1 {
		return nil, fmt.Errorf("steps must be at least 1, got %d", steps)
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
		return nil, fmt.Errorf("structural forecast: %w", err)
	}

	out := make([]float64, steps)
	copy(out, res.Signal[n:])
	return out, nil
}
