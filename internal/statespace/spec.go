// Package statespace implements a linear Gaussian state-space engine for a
// structural time-series model: a local trend (level plus slope), a quarterly
// dummy seasonal block, and an optional fixed regression effect, observed
// with noise. Unknown variances are estimated by maximizing the Gaussian
// log-likelihood; smoothed state estimates extrapolate across trailing
// missing observations, which is how multi-step forecasts are produced.
package statespace

import (
	"errors"
	"math"
)

// ErrNotConverged is returned when the variance optimizer hits its iteration
// cap or lands on a degenerate likelihood.
var ErrNotConverged = errors.New("statespace: likelihood optimization did not converge")

// ErrNotPositiveDefinite is returned when the filter or smoother encounters
// a covariance that is no longer positive definite.
var ErrNotPositiveDefinite = errors.New("statespace: covariance not positive definite")

// Value is a single observation slot. Forecast-range slots are explicitly
// marked missing; the filter propagates state through them without an
// innovation update.
type Value struct {
	F        float64
	Observed bool
}

// Observed wraps a realized observation.
func Observed(f float64) Value {
	return Value{F: f, Observed: true}
}

// Missing marks a slot with no realized observation.
func Missing() Value {
	return Value{}
}

// Spec fixes the structure of the state-space model. The state vector is
// [level, slope, s_1 .. s_{period-1}, beta], where beta is present only with
// a regressor; the seasonal states sum to zero by construction of the
// transition. Process noise enters the level, optionally the slope, and the
// leading seasonal state.
type Spec struct {
	// Period is the seasonal period (4 for quarterly data).
	Period int

	// EstimateSlopeVariance frees the slope process variance. When false the
	// slope is deterministic (variance fixed at zero), giving a local-level
	// trend with drift.
	EstimateSlopeVariance bool

	// HasRegressor adds a fixed regression coefficient state with zero
	// process noise.
	HasRegressor bool

	// MaxIterations caps the variance optimizer. Exceeding it is a hard fit
	// failure, never a silent partial result.
	MaxIterations int

	// DiffuseScale is the kappa multiplier for the diffuse prior covariance,
	// applied on top of the sample variance of the observed data. This is an
	// approximate diffuse prior, not an exact-diffuse (Koopman) recursion:
	// the filter keeps it stable with Joseph-form symmetric updates and by
	// excluding the first Dim() observed innovations from the likelihood.
	// Near-constant series could in principle still benefit from the exact
	// recursion if precision issues ever show up there.
	DiffuseScale float64
}

// DefaultSpec returns the structural specification used by the evaluation
// pipeline: quarterly seasonality, deterministic slope, diffuse prior.
func DefaultSpec(hasRegressor bool) Spec {
	return Spec{
		Period:        4,
		HasRegressor:  hasRegressor,
		MaxIterations: 400,
		DiffuseScale:  1e7,
	}
}

// Dim returns the state dimension implied by the spec.
func (s Spec) Dim() int {
	dim := 2 + (s.Period - 1)
	if s.HasRegressor {
		dim++
	}
	return dim
}

// nParams returns the number of free log-variance parameters.
func (s Spec) nParams() int {
	n := 3 // level, seasonal, observation
	if s.EstimateSlopeVariance {
		n++
	}
	return n
}

// Variances holds the noise variances of the model, estimated or fixed.
type Variances struct {
	Level       float64 `json:"level"`
	Slope       float64 `json:"slope"`
	Seasonal    float64 `json:"seasonal"`
	Observation float64 `json:"observation"`
}

// valid reports whether every variance is finite and non-negative, with a
// strictly positive observation variance.
func (v Variances) valid() bool {
	for _, f := range []float64{v.Level, v.Slope, v.Seasonal} {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return false
		}
	}
	return v.Observation > 0 && !math.IsInf(v.Observation, 0) && !math.IsNaN(v.Observation)
}
