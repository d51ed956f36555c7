package statespace

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Result holds the fitted model and smoothed estimates for every index of
// the input, including any trailing missing (forecast) range.
type Result struct {
	Variances Variances
	LogLik    float64

	// Signal is the smoothed observation estimate z_t * a_t at each index:
	// the sum of all state components plus the regressor contribution. Over
	// the missing range this is the point forecast.
	Signal []float64

	// SignalVariance is the smoothed variance of Signal (state uncertainty
	// only, excluding observation noise), usable for interval construction.
	SignalVariance []float64

	// Level and Seasonal expose the smoothed structural components.
	Level    []float64
	Seasonal []float64
}

// Fit estimates the unknown variances of spec by maximum likelihood and
// returns smoothed state estimates. y may end with Missing slots to request
// forecasts; with a regressor, x must cover the full length of y (supply
// zeros for future periods of a one-off indicator).
//
// Fit fails with ErrNotConverged when the optimizer exhausts its iteration
// cap, and with ErrNotPositiveDefinite when the recursions degenerate.
// Callers are expected to skip the affected origin and continue.
func Fit(spec Spec, y []Value, x []float64) (*Result, error) {
	if spec.Period < 2 {
		return nil, fmt.Errorf("statespace: period must be at least 2, got %d", spec.Period)
	}
	if spec.HasRegressor && len(x) != len(y) {
		return nil, fmt.Errorf("statespace: regressor length %d does not match series length %d", len(x), len(y))
	}

	m := newModel(spec)

	nObs := 0
	for _, v := range y {
		if v.Observed {
			nObs++
		}
	}
	// The diffuse prior consumes dim innovations; a few full seasonal cycles
	// must remain to identify the variances.
	if nObs < m.dim+2*spec.Period {
		return nil, fmt.Errorf("statespace: %d observations insufficient for state dimension %d", nObs, m.dim)
	}

	sampleVar := observedVariance(y)
	if sampleVar <= 0 {
		sampleVar = 1
	}

	// Log-space parameterization enforces positivity; the initial guess
	// scales the sample variance down so the optimizer starts from a smooth
	// fit rather than a noise-dominated one.
	x0 := make([]float64, spec.nParams())
	for i := range x0 {
		x0[i] = math.Log(0.1 * sampleVar)
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			fo, err := m.filter(y, x, spec.variancesFrom(p))
			if err != nil {
				return math.Inf(1)
			}
			return -fo.logLik
		},
	}

	settings := &optimize.Settings{MajorIterations: spec.MaxIterations}
	res, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConverged, err)
	}
	if res.Status == optimize.IterationLimit || res.Status == optimize.Failure {
		return nil, fmt.Errorf("%w: status %v after %d iterations", ErrNotConverged, res.Status, spec.MaxIterations)
	}
	if math.IsNaN(res.F) || math.IsInf(res.F, 0) {
		return nil, fmt.Errorf("%w: degenerate likelihood", ErrNotConverged)
	}

	v := spec.variancesFrom(res.X)
	if !v.valid() {
		return nil, fmt.Errorf("%w: invalid variance estimates", ErrNotConverged)
	}

	return Smooth(spec, y, x, v)
}

// Smooth runs a single filter-and-smooth pass with fixed variances, without
// re-estimating anything. It backs forecast extrapolation: callers extend y
// with Missing slots and reuse the variances estimated by Fit on the
// observed window.
func Smooth(spec Spec, y []Value, x []float64, v Variances) (*Result, error) {
	if !v.valid() {
		return nil, fmt.Errorf("statespace: invalid variances for smoothing")
	}
	if spec.HasRegressor && len(x) != len(y) {
		return nil, fmt.Errorf("statespace: regressor length %d does not match series length %d", len(x), len(y))
	}

	m := newModel(spec)
	fo, err := m.filter(y, x, v)
	if err != nil {
		return nil, err
	}
	aS, pS, err := m.smooth(fo)
	if err != nil {
		return nil, err
	}

	n := len(y)
	out := &Result{
		Variances:      v,
		LogLik:         fo.logLik,
		Signal:         make([]float64, n),
		SignalVariance: make([]float64, n),
		Level:          make([]float64, n),
		Seasonal:       make([]float64, n),
	}
	for t := 0; t < n; t++ {
		xt := 0.0
		if spec.HasRegressor {
			xt = x[t]
		}
		z := m.designRow(xt)
		out.Signal[t] = mat.Dot(z, aS[t])
		out.SignalVariance[t] = quadForm(z, pS[t])
		out.Level[t] = aS[t].AtVec(0)
		out.Seasonal[t] = aS[t].AtVec(2)
	}
	return out, nil
}

// variancesFrom maps the free log-variance parameters onto Variances.
// Order: level, seasonal, observation, then slope when estimated.
func (s Spec) variancesFrom(p []float64) Variances {
	v := Variances{
		Level:       math.Exp(p[0]),
		Seasonal:    math.Exp(p[1]),
		Observation: math.Exp(p[2]),
	}
	if s.EstimateSlopeVariance && len(p) > 3 {
		v.Slope = math.Exp(p[3])
	}
	return v
}
