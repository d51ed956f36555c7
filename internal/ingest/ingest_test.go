package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apperrors "qeval/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseQuarterLabel(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2015Q1", time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2015-Q2", time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"2015 Q3", time.Date(2015, 7, 1, 0, 0, 0, 0, time.UTC)},
		{"Q4 2015", time.Date(2015, 10, 1, 0, 0, 0, 0, time.UTC)},
		{"q1 2016", time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"2015-05-15", time.Date(2015, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"10/01/2015", time.Date(2015, 10, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseQuarterLabel(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}
}

func TestParseQuarterLabel_Invalid(t *testing.T) {
	for _, input := range []string{"", "Q5 2015", "2015Q0", "quarterly", "2015QQ1"} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			_, err := ParseQuarterLabel(input)
			assert.Error(t, err)
		})
	}
}

// writeWorkbook builds a small xlsx fixture with the given rows on Sheet1.
func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		for j, cell := range row {
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", ref, cell))
		}
	}

	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func defaultOptions() Options {
	return Options{Sheet: "Sheet1", DateColumn: "Date", ValueColumn: "Value"}
}

func TestLoadXLSX(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Date", "Value", "OilPrice"},
		{"2015Q1", "100.5", "48.2"},
		{"2015Q2", "101.25", "55.0"},
		{"2015Q3", "1,020.75", "44.1"},
		{"2015Q4", "103", "37.9"},
	})

	opts := defaultOptions()
	opts.RegressorColumn = "OilPrice"

	ds, err := LoadXLSX(path, opts, discardLogger())
	require.NoError(t, err)

	require.Equal(t, 4, ds.Series.Len())
	assert.Equal(t, 100.5, ds.Series.Value(0))
	assert.Equal(t, 1020.75, ds.Series.Value(2))
	assert.Equal(t, time.Date(2015, 10, 1, 0, 0, 0, 0, time.UTC), ds.Series.Date(3))

	require.NotNil(t, ds.Regressor)
	assert.Equal(t, "OilPrice", ds.Regressor.Name)
	assert.Equal(t, []float64{48.2, 55.0, 44.1, 37.9}, ds.Regressor.Values)
}

func TestLoadXLSX_SheetFallback(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("GDP")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("GDP", "A1", &[]any{"Date", "Value"}))
	require.NoError(t, f.SetSheetRow("GDP", "A2", &[]any{"2015Q1", "100"}))
	require.NoError(t, f.SetSheetRow("GDP", "A3", &[]any{"2015Q2", "101"}))

	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, f.SaveAs(path))

	opts := defaultOptions()
	opts.Sheet = "DoesNotExist"

	ds, err := LoadXLSX(path, opts, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Series.Len())
}

func TestLoadXLSX_Errors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
		opts func(*Options)
	}{
		{
			name: "missing value column",
			rows: [][]any{{"Date", "GDP"}, {"2015Q1", "100"}},
		},
		{
			name: "missing regressor column",
			rows: [][]any{{"Date", "Value"}, {"2015Q1", "100"}},
			opts: func(o *Options) { o.RegressorColumn = "OilPrice" },
		},
		{
			name: "unparseable value",
			rows: [][]any{{"Date", "Value"}, {"2015Q1", "n/a"}},
		},
		{
			name: "unparseable date",
			rows: [][]any{{"Date", "Value"}, {"sometime", "100"}},
		},
		{
			name: "no data rows",
			rows: [][]any{{"Date", "Value"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeWorkbook(t, tt.rows)
			opts := defaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			_, err := LoadXLSX(path, opts, discardLogger())
			require.Error(t, err)
			assert.True(t, apperrors.GetType(err) == apperrors.ErrTypeParsing ||
				apperrors.IsDataIntegrity(err))
		})
	}
}

func TestLoadXLSX_QuarterGapRejected(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Date", "Value"},
		{"2015Q1", "100"},
		{"2015Q3", "102"},
	})

	_, err := LoadXLSX(path, defaultOptions(), discardLogger())
	require.Error(t, err)
	assert.True(t, apperrors.IsDataIntegrity(err))
}

func TestLoadCSV(t *testing.T) {
	content := "\uFEFFDate,Value\n2015Q1,100\n2015Q2,101.5\n2015Q3,99.25\n"
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ds, err := LoadCSV(path, defaultOptions(), discardLogger())
	require.NoError(t, err)
	require.Equal(t, 3, ds.Series.Len())
	assert.Equal(t, 101.5, ds.Series.Value(1))
	assert.Nil(t, ds.Regressor)
}

func TestLoad_DispatchesByExtension(t *testing.T) {
	content := "Date,Value\n2015Q1,100\n2015Q2,101\n"
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ds, err := Load(path, defaultOptions(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Series.Len())

	_, err = Load("input.parquet", defaultOptions(), discardLogger())
	assert.Error(t, err)
}
