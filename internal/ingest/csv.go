package ingest

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "qeval/internal/errors"
)

// Load dispatches to the XLSX or CSV reader based on the file extension.
func Load(filePath string, opts Options, logger *slog.Logger) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(filePath, opts, logger)
	case ".csv":
		return LoadCSV(filePath, opts, logger)
	default:
		return nil, apperrors.NewParsingError("unsupported input format "+filepath.Ext(filePath), nil)
	}
}

// LoadCSV reads a quarterly series from a headered CSV file using the same
// column conventions as LoadXLSX.
func LoadCSV(filePath string, opts Options, logger *slog.Logger) (*Dataset, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to open csv file", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read csv file", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		// Strip a UTF-8 BOM left by spreadsheet exports.
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\uFEFF")
	}

	ds, err := fromRows(rows, opts)
	if err != nil {
		return nil, err
	}

	logger.Info("csv loaded",
		slog.String("file", filePath),
		slog.Int("observations", ds.Series.Len()),
		slog.Bool("has_regressor", ds.Regressor != nil))
	return ds, nil
}
