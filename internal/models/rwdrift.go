package models

import (
	"fmt"

	"qeval/internal/timeseries"
)

// RandomWalkDrift is the ARIMA(0,1,0)-with-drift baseline. It degenerates to
// a closed-form deterministic-slope extrapolation from the last observed
// level, so fitting never involves an optimizer.
type RandomWalkDrift struct{}

// NewRandomWalkDrift creates the baseline adapter.
func NewRandomWalkDrift() *RandomWalkDrift {
	return &RandomWalkDrift{}
}

type rwState struct {
	last  float64
	drift float64
	beta  float64
}

// Name returns "RW".
func (*RandomWalkDrift) Name() string {
	return NameRW
}

// Fit computes the drift as the mean first difference of the window, after
// partialling out the exogenous regressor.
func (*RandomWalkDrift) Fit(window *timeseries.Series, exog *timeseries.Regressor) (State, error) {
	n := window.Len()
	if n < 2 {
		return nil, fmt.Errorf("random walk drift requires at least 2 observations, got %d", n)
	}

	values := window.Values()
	var beta float64
	if exog != nil {
		if err := exog.Validate(window); err != nil {
			return nil, err
		}
		beta = exogCoeff(values, exog.Values)
		values = adjustForExog(values, exog.Values, beta)
	}

	// Mean first difference telescopes to (last - first) / (n - 1).
	drift := (values[n-1] - values[0]) / float64(n-1)

	return &rwState{last: values[n-1], drift: drift, beta: beta}, nil
}

// Forecast extrapolates the deterministic slope h steps from the last level.
func (*RandomWalkDrift) Forecast(state State, steps int, futureExog []float64) ([]float64, error) {
	st, ok := state.(*rwState)
	if !ok {
		return nil, fmt.Errorf("state %T does not belong to the RW adapter", state)
	}
	if steps < 1 {
		return nil, fmt.Errorf("steps must be at least 1, got %d", steps)
	}

	out := make([]float64, steps)
	for h := 0; h < steps; h++ {
		out[h] = st.last + float64(h+1)*st.drift + st.beta*futureExogValue(futureExog, h)
	}
	return out, nil
}
