package evaluation

import (
	"math"
	"sort"
)

// MetricRow is one per-(model, horizon) accuracy summary. Rows are computed
// once per run and never mutated; a (model, horizon) group with no realized
// comparisons emits no row at all.
type MetricRow struct {
	Model   string  `json:"model"`
	Horizon int     `json:"horizon"`
	RMSE    float64 `json:"rmse"`
	N       int     `json:"n"`
}

// metricKey groups aligned records.
type metricKey struct {
	model   string
	horizon int
}

// Aggregate computes RMSE per (model, horizon) over aligned records with a
// realized value. Output is sorted by model name, then horizon.
func Aggregate(aligned []AlignedRecord) []MetricRow {
	sums := make(map[metricKey]*struct {
		sqErr float64
		n     int
	})

	for _, rec := range aligned {
		if rec.Actual == nil {
			continue
		}
		key := metricKey{model: rec.Model, horizon: rec.Horizon}
		s, ok := sums[key]
		if !ok {
			s = &struct {
				sqErr float64
				n     int
			}{}
			sums[key] = s
		}
		diff := rec.Point - *rec.Actual
		s.sqErr += diff * diff
		s.n++
	}

	rows := make([]MetricRow, 0, len(sums))
	for key, s := range sums {
		rows = append(rows, MetricRow{
			Model:   key.model,
			Horizon: key.horizon,
			RMSE:    math.Sqrt(s.sqErr / float64(s.n)),
			N:       s.n,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Model != rows[j].Model {
			return rows[i].Model < rows[j].Model
		}
		return rows[i].Horizon < rows[j].Horizon
	})
	return rows
}

// MissingCell identifies a (model, horizon) combination with no metric row.
type MissingCell struct {
	Model   string `json:"model"`
	Horizon int    `json:"horizon"`
}

// MissingCells reports (model, horizon) combinations expected from the model
// roster but absent from the rows, so reports can surface gaps caused by
// skipped fits instead of printing misleading zeros.
func MissingCells(rows []MetricRow, modelNames []string, maxHorizon int) []MissingCell {
	present := make(map[metricKey]bool, len(rows))
	for _, r := range rows {
		present[metricKey{model: r.Model, horizon: r.Horizon}] = true
	}

	var missing []MissingCell
	for _, name := range modelNames {
		for h := 1; h <= maxHorizon; h++ {
			if !present[metricKey{model: name, horizon: h}] {
				missing = append(missing, MissingCell{Model: name, Horizon: h})
			}
		}
	}
	return missing
}
