package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qeval/internal/errors"
)

func q(year, quarter int) time.Time {
	return time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

func TestFromObservations(t *testing.T) {
	t.Run("valid quarterly grid", func(t *testing.T) {
		s, err := FromObservations([]Observation{
			{Date: q(2020, 1), Value: 100},
			{Date: q(2020, 2), Value: 101},
			{Date: q(2020, 3), Value: 102},
			{Date: q(2020, 4), Value: 103},
			{Date: q(2021, 1), Value: 104},
		})
		require.NoError(t, err)
		assert.Equal(t, 5, s.Len())
		assert.Equal(t, q(2021, 1), s.Date(4))
		assert.Equal(t, 104.0, s.Value(4))
	})

	t.Run("mid-quarter dates normalize to quarter start", func(t *testing.T) {
		s, err := FromObservations([]Observation{
			{Date: time.Date(2020, 2, 15, 10, 0, 0, 0, time.UTC), Value: 1},
			{Date: time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC), Value: 2},
		})
		require.NoError(t, err)
		assert.Equal(t, q(2020, 1), s.Date(0))
		assert.Equal(t, q(2020, 2), s.Date(1))
	})

	t.Run("gap is fatal", func(t *testing.T) {
		_, err := FromObservations([]Observation{
			{Date: q(2020, 1), Value: 100},
			{Date: q(2020, 3), Value: 102}, // 2020Q2 missing
		})
		require.Error(t, err)
		assert.True(t, errors.IsDataIntegrity(err))
	})

	t.Run("out of order is fatal", func(t *testing.T) {
		_, err := FromObservations([]Observation{
			{Date: q(2020, 2), Value: 100},
			{Date: q(2020, 1), Value: 99},
		})
		require.Error(t, err)
		assert.True(t, errors.IsDataIntegrity(err))
	})

	t.Run("empty series is fatal", func(t *testing.T) {
		_, err := FromObservations(nil)
		require.Error(t, err)
		assert.True(t, errors.IsDataIntegrity(err))
	})
}

func TestQuarterArithmetic(t *testing.T) {
	tests := []struct {
		name string
		a, b time.Time
		want int
	}{
		{"same quarter", q(2020, 1), q(2020, 1), 0},
		{"one ahead", q(2020, 1), q(2020, 2), 1},
		{"year boundary", q(2019, 4), q(2020, 1), 1},
		{"two years", q(2018, 3), q(2020, 3), 8},
		{"backwards", q(2020, 2), q(2019, 2), -4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuartersBetween(tt.a, tt.b))
			assert.Equal(t, QuarterStart(tt.b), AddQuarters(tt.a, tt.want))
		})
	}
}

func TestWindowSharesGrid(t *testing.T) {
	s, err := NewQuarterly(q(2019, 1), []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)

	w := s.Window(3)
	assert.Equal(t, 4, w.Len())
	assert.Equal(t, q(2019, 4), w.Last().Date)
	assert.Equal(t, 4.0, w.Last().Value)
	// The parent is untouched.
	assert.Equal(t, 6, s.Len())
}

func TestValueAt(t *testing.T) {
	s, err := NewQuarterly(q(2020, 1), []float64{10, 20, 30})
	require.NoError(t, err)

	v, ok := s.ValueAt(q(2020, 2))
	require.True(t, ok)
	assert.Equal(t, 20.0, v)

	_, ok = s.ValueAt(q(2019, 4))
	assert.False(t, ok)
	_, ok = s.ValueAt(q(2020, 4))
	assert.False(t, ok)
}

func TestRegressorValidate(t *testing.T) {
	s, err := NewQuarterly(q(2020, 1), []float64{1, 2, 3})
	require.NoError(t, err)

	ok := &Regressor{Name: "crisis", Values: []float64{0, 1, 0}}
	assert.NoError(t, ok.Validate(s))

	short := &Regressor{Name: "crisis", Values: []float64{0, 1}}
	err = short.Validate(s)
	require.Error(t, err)
	assert.True(t, errors.IsDataIntegrity(err))
}

func TestFormatQuarter(t *testing.T) {
	assert.Equal(t, "2021Q3", FormatQuarter(q(2021, 3)))
	assert.Equal(t, "1999Q1", FormatQuarter(time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)))
}
