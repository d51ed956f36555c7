package exporter

import (
	"sort"
	"strconv"

	"qeval/internal/evaluation"
	"qeval/internal/timeseries"
)

// File names of the run artifacts.
const (
	MetricsFile   = "metrics.csv"
	ForecastsFile = "forecasts.csv"
	GrowthFile    = "growth.csv"
	SkippedFile   = "skipped_fits.csv"
)

// WriteMetrics exports per-(model, horizon) accuracy rows.
func (w *CSVWriter) WriteMetrics(rows []evaluation.MetricRow) error {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			row.Model,
			strconv.Itoa(row.Horizon),
			formatFloat(row.RMSE),
			strconv.Itoa(row.N),
		})
	}
	return w.writeFile(MetricsFile, []string{"model", "horizon", "rmse", "n"}, records)
}

// WriteForecasts exports the full aligned forecast table. The actual column
// is empty for target dates beyond the observed sample, as are the interval
// columns for models that do not report intervals.
func (w *CSVWriter) WriteForecasts(aligned []evaluation.AlignedRecord) error {
	records := make([][]string, 0, len(aligned))
	for _, rec := range aligned {
		records = append(records, []string{
			rec.Model,
			timeseries.FormatQuarter(rec.Origin),
			timeseries.FormatQuarter(rec.TargetDate),
			strconv.Itoa(rec.Horizon),
			formatFloat(rec.Point),
			formatOptional(rec.Lower),
			formatOptional(rec.Upper),
			formatOptional(rec.Actual),
		})
	}
	headers := []string{"model", "origin", "target", "horizon", "point", "lower", "upper", "actual"}
	return w.writeFile(ForecastsFile, headers, records)
}

// WriteGrowth exports year-over-year growth rates, tagged by source model
// ("actual" for the historical series).
func (w *CSVWriter) WriteGrowth(growth map[string][]timeseries.GrowthPoint) error {
	var records [][]string
	for _, source := range sortedKeys(growth) {
		for _, pt := range growth[source] {
			records = append(records, []string{
				source,
				timeseries.FormatQuarter(pt.Date),
				formatFloat(pt.Rate),
			})
		}
	}
	return w.writeFile(GrowthFile, []string{"source", "quarter", "yoy_rate"}, records)
}

// WriteSkipped exports the (model, origin) pairs whose fit failed.
func (w *CSVWriter) WriteSkipped(skipped []evaluation.SkippedFit) error {
	records := make([][]string, 0, len(skipped))
	for _, s := range skipped {
		records = append(records, []string{
			s.Model,
			timeseries.FormatQuarter(s.Origin),
			s.Reason,
		})
	}
	return w.writeFile(SkippedFile, []string{"model", "origin", "reason"}, records)
}

func sortedKeys(m map[string][]timeseries.GrowthPoint) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
