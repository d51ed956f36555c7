package evaluation

import (
	"fmt"
	"time"

	qerrors "qeval/internal/errors"
	"qeval/internal/timeseries"
)

// AlignedRecord joins a forecast to its realized value. Actual is nil for
// target dates beyond the observed sample; such records are retained but
// excluded from metric computation.
type AlignedRecord struct {
	ForecastRecord
	Actual *float64 `json:"actual,omitempty"`
}

// alignKey is the uniqueness key of the forecast table.
type alignKey struct {
	model  string
	origin time.Time
	target time.Time
}

// Align joins forecast records to realized values by target date. The
// horizon is recomputed from the quarter count between origin and target and
// must equal the stored horizon; a mismatch or a duplicate key is a fatal
// consistency error, since it can only come from a logic defect upstream.
// Horizons outside [1, maxHorizon] are dropped.
func Align(records []ForecastRecord, actuals *timeseries.Series, maxHorizon int) ([]AlignedRecord, error) {
	seen := make(map[alignKey]struct{}, len(records))
	out := make([]AlignedRecord, 0, len(records))

	for _, rec := range records {
		key := alignKey{model: rec.Model, origin: rec.Origin, target: rec.TargetDate}
		if _, dup := seen[key]; dup {
			return nil, qerrors.NewAlignmentError(
				fmt.Sprintf("duplicate forecast for model %s, origin %s, target %s",
					rec.Model,
					timeseries.FormatQuarter(rec.Origin),
					timeseries.FormatQuarter(rec.TargetDate)), nil)
		}
		seen[key] = struct{}{}

		recomputed := timeseries.QuartersBetween(rec.Origin, rec.TargetDate)
		if recomputed != rec.Horizon {
			return nil, qerrors.NewAlignmentError(
				fmt.Sprintf("declared horizon %d disagrees with quarter count %d for model %s, origin %s, target %s",
					rec.Horizon, recomputed, rec.Model,
					timeseries.FormatQuarter(rec.Origin),
					timeseries.FormatQuarter(rec.TargetDate)), nil)
		}

		if rec.Horizon < 1 || rec.Horizon > maxHorizon {
			continue
		}

		aligned := AlignedRecord{ForecastRecord: rec}
		if v, ok := actuals.ValueAt(rec.TargetDate); ok {
			aligned.Actual = &v
		}
		out = append(out, aligned)
	}

	return out, nil
}
