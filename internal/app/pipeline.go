package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"qeval/internal/config"
	"qeval/internal/evaluation"
	"qeval/internal/exporter"
	"qeval/internal/infrastructure"
	"qeval/internal/ingest"
	"qeval/internal/models"
	"qeval/internal/timeseries"
)

// GrowthActualSource tags the realized series in the growth table.
const GrowthActualSource = "actual"

// RunReport is the complete output of one pipeline run.
type RunReport struct {
	RunID        string                              `json:"run_id"`
	GeneratedAt  time.Time                           `json:"generated_at"`
	SeriesLen    int                                 `json:"series_len"`
	Metrics      []evaluation.MetricRow              `json:"metrics"`
	Aligned      []evaluation.AlignedRecord          `json:"forecasts"`
	Growth       map[string][]timeseries.GrowthPoint `json:"growth"`
	Skipped      []evaluation.SkippedFit             `json:"skipped"`
	MissingCells []evaluation.MissingCell            `json:"missing_cells,omitempty"`
}

// Pipeline wires ingest, evaluation and growth derivation into a single run.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a pipeline from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger}
}

// forecasters returns the three competing adapters in a fixed order.
func forecasters() []models.Forecaster {
	return []models.Forecaster{
		models.NewSARIMA(),
		models.NewRandomWalkDrift(),
		models.NewStructural(),
	}
}

// Run executes the full pipeline: load the series, run the rolling-origin
// evaluation, align forecasts to actuals, aggregate accuracy, and derive
// year-over-year growth for the realized series and each production path.
func (p *Pipeline) Run(ctx context.Context) (*RunReport, error) {
	runID := uuid.NewString()
	ctx = infrastructure.WithRunID(ctx, runID)
	logger := p.logger.With("run_id", runID)

	logger.InfoContext(ctx, "pipeline run starting",
		slog.String("input", p.cfg.Input.Path))

	ds, err := ingest.Load(p.cfg.Input.Path, ingest.Options{
		Sheet:           p.cfg.Input.Sheet,
		DateColumn:      p.cfg.Input.DateColumn,
		ValueColumn:     p.cfg.Input.ValueColumn,
		RegressorColumn: p.cfg.Input.RegressorColumn,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("input load failed: %w", err)
	}

	adapters := forecasters()
	evaluator, err := evaluation.New(evaluation.Config{
		MinTrain:             p.cfg.Evaluation.MinTrain,
		Horizon:              p.cfg.Evaluation.Horizon,
		Workers:              p.cfg.Evaluation.Workers,
		FutureExogFromSeries: p.cfg.Evaluation.FutureExogFromSeries,
		IntervalConfidence:   p.cfg.Evaluation.IntervalConfidence,
	}, adapters, logger)
	if err != nil {
		return nil, err
	}

	result, err := evaluator.Run(ctx, ds.Series, ds.Regressor)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}

	aligned, err := evaluation.Align(result.Records, ds.Series, p.cfg.Evaluation.Horizon)
	if err != nil {
		return nil, fmt.Errorf("alignment failed: %w", err)
	}

	metrics := evaluation.Aggregate(aligned)

	modelNames := make([]string, 0, len(adapters))
	for _, a := range adapters {
		modelNames = append(modelNames, a.Name())
	}
	missing := evaluation.MissingCells(metrics, modelNames, p.cfg.Evaluation.Horizon)
	for _, cell := range missing {
		logger.WarnContext(ctx, "metric cell has no realized comparisons",
			slog.String("model", cell.Model),
			slog.Int("horizon", cell.Horizon))
	}

	growth := p.deriveGrowth(ds.Series, aligned)

	logger.InfoContext(ctx, "pipeline run finished",
		slog.Int("forecast_records", len(aligned)),
		slog.Int("metric_rows", len(metrics)),
		slog.Int("skipped_fits", len(result.Skipped)))

	return &RunReport{
		RunID:        runID,
		GeneratedAt:  time.Now().UTC(),
		SeriesLen:    ds.Series.Len(),
		Metrics:      metrics,
		Aligned:      aligned,
		Growth:       growth,
		Skipped:      result.Skipped,
		MissingCells: missing,
	}, nil
}

// deriveGrowth builds the year-over-year growth table: the realized series
// plus each model's production path (forecasts issued from the final
// observation).
func (p *Pipeline) deriveGrowth(series *timeseries.Series, aligned []evaluation.AlignedRecord) map[string][]timeseries.GrowthPoint {
	policy := timeseries.GrowthPolicy{PreferActual: p.cfg.Growth.PreferActual}

	growth := map[string][]timeseries.GrowthPoint{
		GrowthActualSource: timeseries.YearOverYear(series),
	}

	productionOrigin := series.Last().Date
	paths := make(map[string][]timeseries.Observation)
	for _, rec := range aligned {
		if rec.Origin.Equal(productionOrigin) {
			paths[rec.Model] = append(paths[rec.Model],
				timeseries.Observation{Date: rec.TargetDate, Value: rec.Point})
		}
	}
	for model, path := range paths {
		growth[model] = timeseries.ForecastYearOverYear(path, series, policy)
	}
	return growth
}

// Export writes the run artifacts as CSV files to the configured output
// directory.
func (p *Pipeline) Export(report *RunReport) error {
	w := exporter.NewCSVWriter(p.cfg.Output.Dir, p.cfg.Output.WithBOM, p.logger)

	if err := w.WriteMetrics(report.Metrics); err != nil {
		return err
	}
	if err := w.WriteForecasts(report.Aligned); err != nil {
		return err
	}
	if err := w.WriteGrowth(report.Growth); err != nil {
		return err
	}
	return w.WriteSkipped(report.Skipped)
}
