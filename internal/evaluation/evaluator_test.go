package evaluation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qeval/internal/models"
	"qeval/internal/timeseries"
)

var q1_2010 = time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

func quarterly(t *testing.T, values []float64) *timeseries.Series {
	t.Helper()
	s, err := timeseries.NewQuarterly(q1_2010, values)
	require.NoError(t, err)
	return s
}

func linear(n int, start, slope float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + slope*float64(i)
	}
	return out
}

// stubForecaster returns canned forecasts, optionally failing at chosen
// origin lengths, so protocol bookkeeping can be tested without numerics.
type stubForecaster struct {
	name       string
	failAtLens map[int]bool
}

type stubState struct {
	last   float64
	length int
}

func (s *stubForecaster) Name() string { return s.name }

func (s *stubForecaster) Fit(window *timeseries.Series, _ *timeseries.Regressor) (models.State, error) {
	if s.failAtLens[window.Len()] {
		return nil, errors.New("stub fit failure")
	}
	return &stubState{last: window.Last().Value, length: window.Len()}, nil
}

func (s *stubForecaster) Forecast(state models.State, steps int, _ []float64) ([]float64, error) {
	st := state.(*stubState)
	out := make([]float64, steps)
	for h := range out {
		out[h] = st.last
	}
	return out, nil
}

func TestOrigins(t *testing.T) {
	e, err := New(Config{MinTrain: 20, Horizon: 8}, []models.Forecaster{&stubForecaster{name: "stub"}}, nil)
	require.NoError(t, err)

	t.Run("boundary series length MinTrain+Horizon", func(t *testing.T) {
		// Exactly one historical origin plus one production origin.
		origins := e.Origins(28)
		assert.Equal(t, []int{19, 27}, origins)
	})

	t.Run("36 quarter series", func(t *testing.T) {
		origins := e.Origins(36)
		// t = 19..27 historical, then production at 35.
		require.Len(t, origins, 10)
		assert.Equal(t, 19, origins[0])
		assert.Equal(t, 27, origins[8])
		assert.Equal(t, 35, origins[9])
		// Origins advance one quarter at a time with none skipped.
		for i := 1; i < 9; i++ {
			assert.Equal(t, origins[i-1]+1, origins[i])
		}
	})
}

func TestRunEmitsExactHorizonCounts(t *testing.T) {
	series := quarterly(t, linear(28, 100, 1))
	stub := &stubForecaster{name: "stub"}
	e, err := New(Config{MinTrain: 20, Horizon: 8}, []models.Forecaster{stub}, discardLogger())
	require.NoError(t, err)

	res, err := e.Run(context.Background(), series, nil)
	require.NoError(t, err)

	// Two origins, eight records each, zero skips.
	assert.Len(t, res.Records, 16)
	assert.Empty(t, res.Skipped)

	byOrigin := make(map[time.Time]int)
	for _, rec := range res.Records {
		byOrigin[rec.Origin]++
		assert.Equal(t, rec.TargetDate, timeseries.AddQuarters(rec.Origin, rec.Horizon))
		assert.GreaterOrEqual(t, rec.Horizon, 1)
		assert.LessOrEqual(t, rec.Horizon, 8)
	}
	for origin, count := range byOrigin {
		assert.Equal(t, 8, count, "origin %s", timeseries.FormatQuarter(origin))
	}
}

func TestRunSkipsFailedFitsAndContinues(t *testing.T) {
	series := quarterly(t, linear(30, 100, 1))
	// Fail the fit when the window has exactly 21 observations (origin t=20).
	flaky := &stubForecaster{name: "flaky", failAtLens: map[int]bool{21: true}}
	solid := &stubForecaster{name: "solid"}

	e, err := New(Config{MinTrain: 20, Horizon: 8, Workers: 4}, []models.Forecaster{flaky, solid}, discardLogger())
	require.NoError(t, err)

	res, err := e.Run(context.Background(), series, nil)
	require.NoError(t, err)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "flaky", res.Skipped[0].Model)
	assert.Equal(t, timeseries.AddQuarters(q1_2010, 20), res.Skipped[0].Origin)

	// 3 historical + 1 production origin per model; flaky lost one pair.
	assert.Len(t, res.Records, 8*(4+4-1))

	// No partial horizon set exists for the failed pair.
	for _, rec := range res.Records {
		if rec.Model == "flaky" {
			assert.NotEqual(t, timeseries.AddQuarters(q1_2010, 20), rec.Origin)
		}
	}
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	series := quarterly(t, linear(30, 100, 1))
	build := func(workers int) *RunResult {
		e, err := New(Config{MinTrain: 20, Horizon: 4, Workers: workers},
			[]models.Forecaster{&stubForecaster{name: "a"}, &stubForecaster{name: "b"}}, discardLogger())
		require.NoError(t, err)
		res, err := e.Run(context.Background(), series, nil)
		require.NoError(t, err)
		return res
	}

	sequential := build(1)
	parallel := build(8)
	assert.Equal(t, sequential.Records, parallel.Records)
}

func TestRunSeriesTooShort(t *testing.T) {
	series := quarterly(t, linear(10, 100, 1))
	e, err := New(Config{MinTrain: 20, Horizon: 4}, []models.Forecaster{&stubForecaster{name: "stub"}}, discardLogger())
	require.NoError(t, err)

	_, err = e.Run(context.Background(), series, nil)
	require.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	_, err := New(Config{MinTrain: 1, Horizon: 4}, []models.Forecaster{&stubForecaster{name: "s"}}, nil)
	assert.Error(t, err)
	_, err = New(Config{MinTrain: 8, Horizon: 0}, []models.Forecaster{&stubForecaster{name: "s"}}, nil)
	assert.Error(t, err)
	_, err = New(Config{MinTrain: 8, Horizon: 4}, nil, nil)
	assert.Error(t, err)
}

// TestStructuralBeatsRandomWalkOnSeasonalData is the model-discrimination
// sanity check: on data generated with true quarterly seasonality, the
// structural model's 1-step RMSE must undercut the random-walk baseline's.
func TestStructuralBeatsRandomWalkOnSeasonalData(t *testing.T) {
	if testing.Short() {
		t.Skip("repeated maximum-likelihood fits are slow")
	}

	seasonal := []float64{6.0, -3.0, -7.0, 4.0}
	values := make([]float64, 36)
	for i := range values {
		values[i] = 120 + 0.8*float64(i) + seasonal[i%4] + 0.4*float64(i%3)
	}
	series := quarterly(t, values)

	e, err := New(Config{MinTrain: 20, Horizon: 8, Workers: 4},
		[]models.Forecaster{models.NewStructural(), models.NewRandomWalkDrift()}, discardLogger())
	require.NoError(t, err)

	res, err := e.Run(context.Background(), series, nil)
	require.NoError(t, err)
	require.Empty(t, res.Skipped)

	aligned, err := Align(res.Records, series, 8)
	require.NoError(t, err)
	rows := Aggregate(aligned)

	rmse := func(model string, horizon int) float64 {
		for _, r := range rows {
			if r.Model == model && r.Horizon == horizon {
				return r.RMSE
			}
		}
		t.Fatalf("no metric row for %s horizon %d", model, horizon)
		return 0
	}

	assert.Less(t, rmse(models.NameKalman, 1), rmse(models.NameRW, 1))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ExampleEvaluator_Origins() {
	e, _ := New(Config{MinTrain: 20, Horizon: 8}, []models.Forecaster{&stubForecaster{name: "stub"}}, nil)
	fmt.Println(e.Origins(28))
	// Output: [19 27]
}
