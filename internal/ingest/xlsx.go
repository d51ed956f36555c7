package ingest

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	apperrors "qeval/internal/errors"
	"qeval/internal/timeseries"
)

// Options selects the sheet and columns to read from a workbook or CSV file.
type Options struct {
	Sheet           string
	DateColumn      string
	ValueColumn     string
	RegressorColumn string
}

// Dataset is a parsed observation series plus its optional regressor.
type Dataset struct {
	Series    *timeseries.Series
	Regressor *timeseries.Regressor
}

// LoadXLSX reads a quarterly series from an Excel workbook. The first row of
// the selected sheet must be a header naming the configured columns; rows
// below it are observations in chronological order.
func LoadXLSX(filePath string, opts Options, logger *slog.Logger) (*Dataset, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to open workbook", err)
	}
	defer f.Close()

	rows, err := f.GetRows(opts.Sheet)
	if err != nil {
		// Fall back to scanning for a sheet whose header carries the
		// configured columns.
		var found bool
		for _, name := range f.GetSheetList() {
			if testRows, testErr := f.GetRows(name); testErr == nil && len(testRows) > 1 {
				header := strings.ToLower(strings.Join(testRows[0], " "))
				if strings.Contains(header, strings.ToLower(opts.DateColumn)) &&
					strings.Contains(header, strings.ToLower(opts.ValueColumn)) {
					rows = testRows
					found = true
					logger.Info("sheet fallback matched", slog.String("sheet", name))
					break
				}
			}
		}
		if !found {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("sheet %q not found and no sheet carries the configured columns", opts.Sheet), err)
		}
	}

	ds, err := fromRows(rows, opts)
	if err != nil {
		return nil, err
	}

	logger.Info("workbook loaded",
		slog.String("file", filePath),
		slog.Int("observations", ds.Series.Len()),
		slog.Bool("has_regressor", ds.Regressor != nil))
	return ds, nil
}

// fromRows builds a Dataset from a header row plus data rows.
func fromRows(rows [][]string, opts Options) (*Dataset, error) {
	if len(rows) < 2 {
		return nil, apperrors.NewParsingError("input has no data rows", nil)
	}

	cols, err := mapColumns(rows[0], opts)
	if err != nil {
		return nil, err
	}

	var (
		obs  []timeseries.Observation
		exog []float64
	)
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		if cols.date >= len(row) || cols.value >= len(row) {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("row %d is missing the date or value cell", i+2), nil)
		}

		date, err := ParseQuarterLabel(row[cols.date])
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("row %d has an unparseable date %q", i+2, row[cols.date]), err)
		}
		value, err := parseNumber(row[cols.value])
		if err != nil {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("row %d has an unparseable value %q", i+2, row[cols.value]), err)
		}
		obs = append(obs, timeseries.Observation{Date: date, Value: value})

		if cols.regressor >= 0 {
			if cols.regressor >= len(row) {
				return nil, apperrors.NewParsingError(
					fmt.Sprintf("row %d is missing the regressor cell", i+2), nil)
			}
			x, err := parseNumber(row[cols.regressor])
			if err != nil {
				return nil, apperrors.NewParsingError(
					fmt.Sprintf("row %d has an unparseable regressor %q", i+2, row[cols.regressor]), err)
			}
			exog = append(exog, x)
		}
	}

	series, err := timeseries.FromObservations(obs)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Series: series}
	if cols.regressor >= 0 {
		reg := &timeseries.Regressor{Name: opts.RegressorColumn, Values: exog}
		if err := reg.Validate(series); err != nil {
			return nil, err
		}
		ds.Regressor = reg
	}
	return ds, nil
}

type columnIndexes struct {
	date      int
	value     int
	regressor int
}

// mapColumns resolves header names to column positions, case-insensitively.
func mapColumns(header []string, opts Options) (columnIndexes, error) {
	cols := columnIndexes{date: -1, value: -1, regressor: -1}
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case name == strings.ToLower(opts.DateColumn):
			cols.date = i
		case name == strings.ToLower(opts.ValueColumn):
			cols.value = i
		case opts.RegressorColumn != "" && name == strings.ToLower(opts.RegressorColumn):
			cols.regressor = i
		}
	}
	if cols.date < 0 || cols.value < 0 {
		return cols, apperrors.NewParsingError(
			fmt.Sprintf("header is missing column %q or %q", opts.DateColumn, opts.ValueColumn), nil)
	}
	if opts.RegressorColumn != "" && cols.regressor < 0 {
		return cols, apperrors.NewParsingError(
			fmt.Sprintf("header is missing regressor column %q", opts.RegressorColumn), nil)
	}
	return cols, nil
}

// ParseQuarterLabel accepts the quarter spellings seen in source workbooks:
// "2015Q1", "2015-Q1", "Q1 2015", and plain dates like "2015-01-02" or
// "01/02/2015", which are snapped to the start of their quarter.
func ParseQuarterLabel(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date cell")
	}

	upper := strings.ToUpper(s)
	if year, quarter, ok := splitQuarterLabel(upper); ok {
		if quarter < 1 || quarter > timeseries.QuartersPerYear {
			return time.Time{}, fmt.Errorf("quarter %d out of range", quarter)
		}
		month := time.Month((quarter-1)*3 + 1)
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC), nil
	}

	for _, layout := range []string{"2006-01-02", "01/02/2006", "1/2/2006", "2006-01", "Jan-2006", "Jan-06", "January 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return timeseries.QuarterStart(t.UTC()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}

// splitQuarterLabel handles "2015Q1", "2015-Q1", "2015 Q1" and "Q1 2015".
func splitQuarterLabel(s string) (year, quarter int, ok bool) {
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.TrimSpace(s)

	var yearPart, quarterPart string
	switch {
	case strings.HasPrefix(s, "Q"):
		fields := strings.Fields(s)
		if len(fields) != 2 {
			return 0, 0, false
		}
		quarterPart, yearPart = strings.TrimPrefix(fields[0], "Q"), fields[1]
	case strings.Contains(s, "Q"):
		idx := strings.Index(s, "Q")
		yearPart = strings.TrimSpace(s[:idx])
		quarterPart = strings.TrimSpace(s[idx+1:])
	default:
		return 0, 0, false
	}

	y, err := strconv.Atoi(yearPart)
	if err != nil {
		return 0, 0, false
	}
	q, err := strconv.Atoi(quarterPart)
	if err != nil {
		return 0, 0, false
	}
	return y, q, true
}

// parseNumber parses a cell value, tolerating thousands separators.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, fmt.Errorf("empty numeric cell")
	}
	return strconv.ParseFloat(s, 64)
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
