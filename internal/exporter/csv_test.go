package exporter

import (
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qeval/internal/evaluation"
	"qeval/internal/timeseries"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "\uFEFF")))
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	return rows
}

func q(year, quarter int) time.Time {
	return time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

func TestWriteMetrics(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, false, discardLogger())

	err := w.WriteMetrics([]evaluation.MetricRow{
		{Model: "Kalman", Horizon: 1, RMSE: 1.25, N: 10},
		{Model: "RW", Horizon: 2, RMSE: 3.5, N: 9},
	})
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(dir, MetricsFile))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"model", "horizon", "rmse", "n"}, rows[0])
	assert.Equal(t, []string{"Kalman", "1", "1.25", "10"}, rows[1])
	assert.Equal(t, []string{"RW", "2", "3.5", "9"}, rows[2])
}

func TestWriteForecasts(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, false, discardLogger())

	actual := 101.5
	lo, up := 99.0, 103.0
	err := w.WriteForecasts([]evaluation.AlignedRecord{
		{
			ForecastRecord: evaluation.ForecastRecord{
				Model: "ARMA", Origin: q(2020, 4), TargetDate: q(2021, 1),
				Horizon: 1, Point: 100.25, Lower: &lo, Upper: &up,
			},
			Actual: &actual,
		},
		{
			ForecastRecord: evaluation.ForecastRecord{
				Model: "RW", Origin: q(2020, 4), TargetDate: q(2021, 2),
				Horizon: 2, Point: 102.0,
			},
		},
	})
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(dir, ForecastsFile))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ARMA", "2020Q4", "2021Q1", "1", "100.25", "99", "103", "101.5"}, rows[1])
	// No interval, no realized actual: columns stay empty.
	assert.Equal(t, []string{"RW", "2020Q4", "2021Q2", "2", "102", "", "", ""}, rows[2])
}

func TestWriteGrowth_SortedBySource(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, false, discardLogger())

	err := w.WriteGrowth(map[string][]timeseries.GrowthPoint{
		"RW":     {{Date: q(2021, 1), Rate: 0.02}},
		"actual": {{Date: q(2020, 4), Rate: 0.015}},
	})
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(dir, GrowthFile))
	require.Len(t, rows, 3)
	assert.Equal(t, "RW", rows[1][0])
	assert.Equal(t, "actual", rows[2][0])
	assert.Equal(t, []string{"actual", "2020Q4", "0.015"}, rows[2])
}

func TestWriteSkipped(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, false, discardLogger())

	err := w.WriteSkipped([]evaluation.SkippedFit{
		{Model: "Kalman", Origin: q(2019, 3), Reason: "optimizer did not converge"},
	})
	require.NoError(t, err)

	rows := readCSV(t, filepath.Join(dir, SkippedFile))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Kalman", "2019Q3", "optimizer did not converge"}, rows[1])
}

func TestWriteMetrics_BOM(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(dir, true, discardLogger())

	require.NoError(t, w.WriteMetrics(nil))

	data, err := os.ReadFile(filepath.Join(dir, MetricsFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\uFEFF"))
}

func TestWriteMetrics_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w := NewCSVWriter(dir, false, discardLogger())

	require.NoError(t, w.WriteMetrics(nil))
	_, err := os.Stat(filepath.Join(dir, MetricsFile))
	assert.NoError(t, err)
}
