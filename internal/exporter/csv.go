package exporter

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	apperrors "qeval/internal/errors"
)

// CSVWriter writes run artifacts as CSV files under a single output
// directory.
type CSVWriter struct {
	dir     string
	withBOM bool
	logger  *slog.Logger
}

// NewCSVWriter creates a new CSV writer rooted at dir. With withBOM set,
// every file starts with a UTF-8 BOM so Excel detects the encoding.
func NewCSVWriter(dir string, withBOM bool, logger *slog.Logger) *CSVWriter {
	return &CSVWriter{dir: dir, withBOM: withBOM, logger: logger}
}

// writeFile writes one headered CSV file, creating the directory as needed.
func (w *CSVWriter) writeFile(name string, headers []string, records [][]string) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return apperrors.NewExportError("failed to create output directory", err)
	}

	fullPath := filepath.Join(w.dir, name)
	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return apperrors.NewExportError("failed to open "+name, err)
	}
	defer file.Close()

	if w.withBOM {
		if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return apperrors.NewExportError("failed to write BOM", err)
		}
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(headers); err != nil {
		return apperrors.NewExportError("failed to write headers", err)
	}
	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return apperrors.NewExportError(fmt.Sprintf("failed to write record %d", i), err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return apperrors.NewExportError("failed to flush "+name, err)
	}

	w.logger.Info("csv written",
		slog.String("file", fullPath),
		slog.Int("record_count", len(records)))
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
