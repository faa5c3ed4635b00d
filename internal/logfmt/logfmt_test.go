package logfmt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

func TestFormatLine(t *testing.T) {
	testCases := []struct {
		name string
		rec  model.AggregateRecord
		want string
	}{
		{
			name: "fractional",
			rec:  model.AggregateRecord{Granularity: model.Minute, Average: 150.0125, Max: 150.05, Min: 149.98},
			want: "MINUTE: Average=150.0125, Max=150.05, Min=149.98",
		},
		{
			name: "integral values keep legacy suffix",
			rec:  model.AggregateRecord{Granularity: model.FifteenMinutes, Average: 150, Max: 151, Min: 0},
			want: "FIFTEEN_MINUTES: Average=150.0, Max=151.0, Min=0.0",
		},
		{
			name: "non-finite values",
			rec:  model.AggregateRecord{Granularity: model.Day, Average: math.NaN(), Max: math.Inf(1), Min: math.Inf(-1)},
			want: "DAY: Average=NaN, Max=Infinity, Min=-Infinity",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatLine(tc.rec))
		})
	}
}

func TestParseLine(t *testing.T) {
	testCases := []struct {
		name   string
		line   string
		want   model.AggregateRecord
		wantOK bool
	}{
		{
			name:   "legacy line",
			line:   "HOUR: Average=750.25, Max=751.5, Min=749.0",
			want:   model.AggregateRecord{Granularity: model.Hour, Average: 750.25, Max: 751.5, Min: 749},
			wantOK: true,
		},
		{
			name:   "surrounding whitespace",
			line:   "  MINUTE: Average=1.0, Max=2.0, Min=0.5\r",
			want:   model.AggregateRecord{Granularity: model.Minute, Average: 1, Max: 2, Min: 0.5},
			wantOK: true,
		},
		{
			name:   "scientific notation",
			line:   "DAY: Average=1.0E-4, Max=2.5E3, Min=-1.0E-4",
			want:   model.AggregateRecord{Granularity: model.Day, Average: 1e-4, Max: 2500, Min: -1e-4},
			wantOK: true,
		},
		{name: "empty", line: "", wantOK: false},
		{name: "unknown granularity", line: "WEEK: Average=1.0, Max=1.0, Min=1.0", wantOK: false},
		{name: "missing min", line: "MINUTE: Average=1.0, Max=1.0", wantOK: false},
		{name: "garbage value", line: "MINUTE: Average=abc, Max=1.0, Min=1.0", wantOK: false},
		{name: "no prefix", line: "Average=1.0, Max=1.0, Min=1.0", wantOK: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseLine(tc.line)
			require.Equal(t, tc.wantOK, ok)
			if ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestParseLine_NonFinite(t *testing.T) {
	got, ok := ParseLine("DAY: Average=NaN, Max=Infinity, Min=-Infinity")
	require.True(t, ok)
	assert.True(t, math.IsNaN(got.Average))
	assert.True(t, math.IsInf(got.Max, 1))
	assert.True(t, math.IsInf(got.Min, -1))
}

func TestGranularity(t *testing.T) {
	g, ok := Granularity("FIFTEEN_MINUTES: Average=1.0, Max=1.0, Min=1.0")
	require.True(t, ok)
	assert.Equal(t, model.FifteenMinutes, g)

	_, ok = Granularity("not a record")
	assert.False(t, ok)
}

func TestFormatParse_RoundTrip(t *testing.T) {
	rec := model.AggregateRecord{Granularity: model.Hour, Average: 0.1 + 0.2, Max: 1.0 / 3.0, Min: -123456.789}

	got, ok := ParseLine(FormatLine(rec))
	require.True(t, ok)
	assert.Equal(t, rec, got)
}
