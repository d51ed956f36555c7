// Package evaluation implements the rolling-origin out-of-sample protocol:
// repeated re-fits across expanding windows, forecast alignment against
// realized values, and per-horizon accuracy aggregation.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	qerrors "qeval/internal/errors"
	"qeval/internal/models"
	"qeval/internal/timeseries"
)

// Config parameterizes the rolling-origin protocol.
type Config struct {
	// MinTrain is the minimum training window length; the first historical
	// origin sits at the MinTrain-th observation.
	MinTrain int

	// Horizon is the number of quarters forecast from each origin.
	Horizon int

	// Workers bounds the fan-out across (model, origin) work items. Zero or
	// one runs sequentially.
	Workers int

	// FutureExogFromSeries feeds the known in-sample regressor values to
	// forecasts launched from historical origins; beyond the observed grid
	// (and for the production origin) the regressor defaults to zero.
	FutureExogFromSeries bool

	// IntervalConfidence is the confidence level for prediction intervals,
	// attached when an adapter supports them. Zero disables intervals.
	IntervalConfidence float64
}

// Validate checks the protocol parameters.
func (c Config) Validate() error {
	if c.MinTrain < 2 {
		return qerrors.NewConfigError(fmt.Sprintf("minimum training length must be at least 2, got %d", c.MinTrain), nil)
	}
	if c.Horizon < 1 {
		return qerrors.NewConfigError(fmt.Sprintf("horizon must be at least 1, got %d", c.Horizon), nil)
	}
	return nil
}

// ForecastRecord is one point forecast tagged by origin, target and model.
// TargetDate is exactly Horizon quarters after Origin; (Origin, TargetDate,
// Model) is unique across a run.
type ForecastRecord struct {
	Model      string     `json:"model"`
	Origin     time.Time  `json:"origin"`
	TargetDate time.Time  `json:"target_date"`
	Horizon    int        `json:"horizon"`
	Point      float64    `json:"point"`
	Lower      *float64   `json:"lower,omitempty"`
	Upper      *float64   `json:"upper,omitempty"`
}

// SkippedFit reports a (model, origin) pair whose fit failed and emitted no
// records.
type SkippedFit struct {
	Model  string    `json:"model"`
	Origin time.Time `json:"origin"`
	Reason string    `json:"reason"`
}

// RunResult carries the raw output of one evaluation pass.
type RunResult struct {
	Records []ForecastRecord `json:"records"`
	Skipped []SkippedFit     `json:"skipped"`
}

// Evaluator drives repeated fit+forecast cycles across historical origins
// plus one final production origin beyond the observed sample.
type Evaluator struct {
	cfg         Config
	forecasters []models.Forecaster
	logger      *slog.Logger
}

// New creates an evaluator over the given model adapters.
func New(cfg Config, forecasters []models.Forecaster, logger *slog.Logger) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(forecasters) == 0 {
		return nil, qerrors.NewConfigError("no model adapters configured", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{cfg: cfg, forecasters: forecasters, logger: logger}, nil
}

// Origins returns the 0-based origin indices for a series of length n:
// every index t with a window of at least MinTrain observations whose full
// horizon remains observable, followed by the production origin at the last
// observation. Origins advance one quarter at a time; none are skipped.
func (e *Evaluator) Origins(n int) []int {
	origins := make([]int, 0)
	for t := e.cfg.MinTrain - 1; t+e.cfg.Horizon <= n-1; t++ {
		origins = append(origins, t)
	}
	origins = append(origins, n-1)
	return origins
}

// workItem is one independent (model, origin) computation.
type workItem struct {
	modelIdx  int
	originIdx int
}

// itemResult is the deterministic slot a worker fills: either H records or a
// skip entry, never a partial horizon count.
type itemResult struct {
	records []ForecastRecord
	skipped *SkippedFit
}

// Run executes the full protocol. Fit failures are logged and skipped; any
// other error aborts the run.
func (e *Evaluator) Run(ctx context.Context, series *timeseries.Series, exog *timeseries.Regressor) (*RunResult, error) {
	n := series.Len()
	if n < e.cfg.MinTrain {
		return nil, qerrors.NewDataIntegrityError(
			fmt.Sprintf("series length %d is below the minimum training length %d", n, e.cfg.MinTrain), nil)
	}
	if exog != nil {
		if err := exog.Validate(series); err != nil {
			return nil, err
		}
	}

	origins := e.Origins(n)
	items := make([]workItem, 0, len(origins)*len(e.forecasters))
	for mi := range e.forecasters {
		for oi := range origins {
			items = append(items, workItem{modelIdx: mi, originIdx: oi})
		}
	}

	e.logger.InfoContext(ctx, "starting rolling-origin evaluation",
		slog.Int("series_length", n),
		slog.Int("origins", len(origins)),
		slog.Int("models", len(e.forecasters)),
		slog.Int("work_items", len(items)),
	)

	results := make([]itemResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	workers := e.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, item := range items {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = e.evaluateItem(gctx, series, exog, origins[item.originIdx], e.forecasters[item.modelIdx])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluation interrupted: %w", err)
	}

	// Merge in (model, origin) order so the output is deterministic
	// regardless of worker scheduling.
	out := &RunResult{}
	for _, r := range results {
		if r.skipped != nil {
			out.Skipped = append(out.Skipped, *r.skipped)
			continue
		}
		out.Records = append(out.Records, r.records...)
	}

	e.logger.InfoContext(ctx, "evaluation completed",
		slog.Int("records", len(out.Records)),
		slog.Int("skipped_fits", len(out.Skipped)),
	)
	return out, nil
}

// evaluateItem runs one fresh fit+forecast cycle. The window always spans
// [0, origin]; model state is discarded afterwards.
func (e *Evaluator) evaluateItem(ctx context.Context, series *timeseries.Series, exog *timeseries.Regressor, origin int, f models.Forecaster) itemResult {
	originDate := series.Date(origin)
	window := series.Window(origin)

	var exogWindow *timeseries.Regressor
	if exog != nil {
		exogWindow = exog.Window(origin)
	}

	state, err := f.Fit(window, exogWindow)
	if err != nil {
		fitErr := qerrors.NewFitFailureError(f.Name(), timeseries.FormatQuarter(originDate), err)
		e.logger.WarnContext(ctx, "model fit failed, skipping origin",
			slog.String("model", f.Name()),
			slog.String("origin", timeseries.FormatQuarter(originDate)),
			slog.Any("error", err),
		)
		return itemResult{skipped: &SkippedFit{
			Model:  f.Name(),
			Origin: originDate,
			Reason: fitErr.Error(),
		}}
	}

	futureExog := e.futureExog(exog, origin)

	var point, lower, upper []float64
	if iv, ok := f.(models.IntervalForecaster); ok && e.cfg.IntervalConfidence > 0 {
		point, lower, upper, err = iv.ForecastInterval(state, e.cfg.Horizon, futureExog, e.cfg.IntervalConfidence)
	} else {
		point, err = f.Forecast(state, e.cfg.Horizon, futureExog)
	}
	if err != nil {
		fitErr := qerrors.NewFitFailureError(f.Name(), timeseries.FormatQuarter(originDate), err)
		e.logger.WarnContext(ctx, "forecast failed, skipping origin",
			slog.String("model", f.Name()),
			slog.String("origin", timeseries.FormatQuarter(originDate)),
			slog.Any("error", err),
		)
		return itemResult{skipped: &SkippedFit{
			Model:  f.Name(),
			Origin: originDate,
			Reason: fitErr.Error(),
		}}
	}

	records := make([]ForecastRecord, e.cfg.Horizon)
	for h := 0; h < e.cfg.Horizon; h++ {
		rec := ForecastRecord{
			Model:      f.Name(),
			Origin:     originDate,
			TargetDate: timeseries.AddQuarters(originDate, h+1),
			Horizon:    h + 1,
			Point:      point[h],
		}
		if lower != nil {
			lo, up := lower[h], upper[h]
			rec.Lower, rec.Upper = &lo, &up
		}
		records[h] = rec
	}
	return itemResult{records: records}
}

// futureExog resolves the regressor values for the H quarters after origin:
// known in-sample values when configured, zero otherwise.
func (e *Evaluator) futureExog(exog *timeseries.Regressor, origin int) []float64 {
	if exog == nil || !e.cfg.FutureExogFromSeries {
		return nil
	}
	out := make([]float64, e.cfg.Horizon)
	for h := 0; h < e.cfg.Horizon; h++ {
		idx := origin + 1 + h
		if idx < len(exog.Values) {
			out[h] = exog.Values[idx]
		}
	}
	return out
}
