package models

import (
	"fmt"
	"math"

	"qeval/internal/timeseries"
)

// seasonalPeriod is the fixed seasonal lag of the quarterly SARIMA adapter.
const seasonalPeriod = 4

// SARIMA is the fixed-order (1,1,1)(1,0,1)[4]-with-drift adapter. Parameters
// are re-estimated per origin by conditional sum of squares with a
// momentum gradient descent; the drift enters as the intercept of the
// differenced series.
type SARIMA struct {
	maxIter int
}

// NewSARIMA creates the seasonal ARIMA adapter.
func NewSARIMA() *SARIMA {
	return &SARIMA{maxIter: 200}
}

type sarimaState struct {
	ar, ma, sar, sma float64
	drift            float64
	variance         float64
	diff             []float64
	resid            []float64
	lastLevel        float64
	beta             float64
}

// Name returns "ARMA".
func (*SARIMA) Name() string {
	return NameARMA
}

// Fit estimates the four coefficients and the drift on the window, after
// partialling out the exogenous regressor.
func (m *SARIMA) Fit(window *timeseries.Series, exog *timeseries.Regressor) (State, error) {
	n := window.Len()
	if n < 3*seasonalPeriod {
		return nil, fmt.Errorf("sarima requires at least %d observations, got %d", 3*seasonalPeriod, n)
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

	// First difference; the intercept of the differenced series is the drift.
	w := make([]float64, n-1)
	for i := 1; i < n; i++ {
		w[i-1] = values[i] - values[i-1]
	}

	st := &sarimaState{
		lastLevel: values[n-1],
		beta:      beta,
		diff:      w,
	}

	var sum float64
	for _, v := range w {
		sum += v
	}
	st.drift = sum / float64(len(w))

	// Initial coefficients from the sample autocorrelations of the
	// differenced series, damped toward zero.
	st.ar = 0.5 * acfAtLag(w, 1)
	st.sar = 0.5 * acfAtLag(w, seasonalPeriod)
	st.ma = 0.1
	st.sma = 0.1

	if err := m.optimizeCSS(st); err != nil {
		return nil, err
	}
	return st, nil
}

// optimizeCSS minimizes the conditional sum of squares with momentum
// gradient descent, tracking the best coefficients seen and stopping early
// when no improvement accumulates.
func (m *SARIMA) optimizeCSS(st *sarimaState) error {
	w := st.diff
	n := len(w)
	startIdx := seasonalPeriod
	if n-startIdx < 2*seasonalPeriod {
		return fmt.Errorf("sarima: %d differenced observations leave too little for estimation", n)
	}

	learningRate := 0.005
	const (
		momentum  = 0.9
		decay     = 0.99
		tolerance = 1e-8
	)

	var arMom, maMom, sarMom, smaMom float64
	bestSSE := math.Inf(1)
	bestAR, bestMA, bestSAR, bestSMA := st.ar, st.ma, st.sar, st.sma
	noImprove := 0
	c := st.drift

	resid := make([]float64, n)
	for iter := 0; iter < m.maxIter; iter++ {
		sse := 0.0
		for t := startIdx; t < n; t++ {
			pred := c +
				st.ar*(w[t-1]-c) +
				st.sar*(w[t-seasonalPeriod]-c) +
				st.ma*resid[t-1] +
				st.sma*resid[t-seasonalPeriod]
			resid[t] = w[t] - pred
			sse += resid[t] * resid[t]
		}
		if math.IsNaN(sse) || math.IsInf(sse, 0) {
			return fmt.Errorf("sarima: conditional sum of squares diverged at iteration %d", iter)
		}

		if sse < bestSSE {
			if bestSSE-sse < tolerance && iter > 0 {
				bestSSE = sse
				bestAR, bestMA, bestSAR, bestSMA = st.ar, st.ma, st.sar, st.sma
				break
			}
			bestSSE = sse
			bestAR, bestMA, bestSAR, bestSMA = st.ar, st.ma, st.sar, st.sma
			noImprove = 0
		} else {
			noImprove++
			if noImprove > 20 {
				break
			}
		}

		var arGrad, maGrad, sarGrad, smaGrad float64
		for t := startIdx; t < n; t++ {
			arGrad -= 2 * resid[t] * (w[t-1] - c)
			sarGrad -= 2 * resid[t] * (w[t-seasonalPeriod] - c)
			maGrad -= 2 * resid[t] * resid[t-1]
			smaGrad -= 2 * resid[t] * resid[t-seasonalPeriod]
		}

		scale := learningRate / float64(n)
		arMom = momentum*arMom + scale*arGrad
		sarMom = momentum*sarMom + scale*sarGrad
		maMom = momentum*maMom + scale*maGrad
		smaMom = momentum*smaMom + scale*smaGrad

		st.ar = clampCoeff(st.ar - arMom)
		st.sar = clampCoeff(st.sar - sarMom)
		st.ma = clampCoeff(st.ma - maMom)
		st.sma = clampCoeff(st.sma - smaMom)

		learningRate *= decay
	}

	st.ar, st.ma, st.sar, st.sma = bestAR, bestMA, bestSAR, bestSMA

	// Final residual pass with the best coefficients.
	st.resid = make([]float64, n)
	sse := 0.0
	count := 0
	for t := startIdx; t < n; t++ {
		pred := c +
			st.ar*(w[t-1]-c) +
			st.sar*(w[t-seasonalPeriod]-c) +
			st.ma*st.resid[t-1] +
			st.sma*st.resid[t-seasonalPeriod]
		st.resid[t] = w[t] - pred
		sse += st.resid[t] * st.resid[t]
		count++
	}
	if math.IsNaN(sse) || math.IsInf(sse, 0) {
		return fmt.Errorf("sarima: non-finite residuals after optimization")
	}

	const nParams = 5 // ar, ma, sar, sma, drift
	if count > nParams {
		st.variance = sse / float64(count-nParams)
	} else {
		st.variance = sse / float64(count)
	}
	return nil
}

// Forecast iterates the fitted recursion over the differenced scale with
// future residuals at zero, then integrates back to levels from the last
// observed level.
func (*SARIMA) Forecast(state State, steps int, futureExog []float64) ([]float64, error) {
	st, ok := state.(*sarimaState)
	if !ok {
		return nil, fmt.Errorf("state %T does not belong to the SARIMA adapter", state)
	}
	if steps < 1 {
		return nil, fmt.Errorf("steps must be at least 1, got %d", steps)
	}

	nd := len(st.diff)
	wExt := make([]float64, nd+steps)
	copy(wExt, st.diff)
	eExt := make([]float64, nd+steps)
	copy(eExt, st.resid)

	c := st.drift
	for h := 0; h < steps; h++ {
		t := nd + h
		pred := c + st.ar*(wExt[t-1]-c) + st.sar*(wExt[t-seasonalPeriod]-c)
		if t-1 < nd {
			pred += st.ma * eExt[t-1]
		}
		if t-seasonalPeriod < nd {
			pred += st.sma * eExt[t-seasonalPeriod]
		}
		wExt[t] = pred
		eExt[t] = 0
	}

	out := make([]float64, steps)
	level := st.lastLevel
	for h := 0; h < steps; h++ {
		level += wExt[nd+h]
		out[h] = level + st.beta*futureExogValue(futureExog, h)
	}
	return out, nil
}

// acfAtLag returns the sample autocorrelation of w at the given lag.
func acfAtLag(w []float64, lag int) float64 {
	n := len(w)
	if lag <= 0 || lag >= n {
		return 0
	}
	var mean float64
	for _, v := range w {
		mean += v
	}
	mean /= float64(n)

	var num, den float64
	for t := lag; t < n; t++ {
		num += (w[t] - mean) * (w[t-lag] - mean)
	}
	for _, v := range w {
		den += (v - mean) * (v - mean)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func clampCoeff(v float64) float64 {
	if v < -0.99 {
		return -0.99
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}
