package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestGranularity_Names(t *testing.T) {
	tests := []struct {
		g    Granularity
		want string
	}{
		{Minute, "MINUTE"},
		{FifteenMinutes, "FIFTEEN_MINUTES"},
		{Hour, "HOUR"},
		{Day, "DAY"},
		{Granularity(9), "Granularity(9)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.g.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGranularity_Periods(t *testing.T) {
	tests := []struct {
		g          Granularity
		period     int64
		window     int
		finer      Granularity
		finerFound bool
	}{
		{Minute, 60, 60, Minute, false},
		{FifteenMinutes, 900, 15, Minute, true},
		{Hour, 3600, 4, FifteenMinutes, true},
		{Day, 86400, 24, Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.g.String(), func(t *testing.T) {
			if got := tt.g.Period(); got != tt.period {
				t.Errorf("Period() = %d, want %d", got, tt.period)
			}
			if got := tt.g.WindowSize(); got != tt.window {
				t.Errorf("WindowSize() = %d, want %d", got, tt.window)
			}
			finer, ok := tt.g.Finer()
			if ok != tt.finerFound {
				t.Fatalf("Finer() ok = %v, want %v", ok, tt.finerFound)
			}
			if ok && finer != tt.finer {
				t.Errorf("Finer() = %v, want %v", finer, tt.finer)
			}
		})
	}
}

// Each coarser bucket must be exactly WindowSize finer buckets long.
func TestGranularity_PeriodsNest(t *testing.T) {
	for _, g := range Granularities[1:] {
		finer, _ := g.Finer()
		if got := finer.Period() * int64(g.WindowSize()); got != g.Period() {
			t.Errorf("%v: finer period * window = %d, want %d", g, got, g.Period())
		}
	}
}

func TestParseGranularity(t *testing.T) {
	tests := []struct {
		in      string
		want    Granularity
		wantErr bool
	}{
		{"MINUTE", Minute, false},
		{"minute", Minute, false},
		{" fifteen_minutes ", FifteenMinutes, false},
		{"Hour", Hour, false},
		{"day", Day, false},
		{"week", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGranularity(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownGranularity) {
					t.Errorf("ParseGranularity(%q) error = %v, want ErrUnknownGranularity", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseGranularity(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseGranularity(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestGranularity_JSON(t *testing.T) {
	rec := AggregateRecord{Granularity: Hour, Average: 1.5, Max: 2, Min: 1, Seq: 7}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var got AggregateRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got != rec {
		t.Errorf("round trip = %+v, want %+v", got, rec)
	}

	if _, err := json.Marshal(Granularity(-1)); err == nil {
		t.Error("expected error marshalling invalid granularity")
	}
}

// TestZeroValues tests that zero values are handled correctly.
func TestZeroValues(t *testing.T) {
	var rec AggregateRecord
	if rec.Granularity != Minute {
		t.Errorf("zero AggregateRecord.Granularity = %v, want MINUTE", rec.Granularity)
	}
	if rec.Average != 0 || rec.Max != 0 || rec.Min != 0 {
		t.Errorf("zero AggregateRecord stats = %+v, want all zero", rec)
	}

	var s PriceSample
	if s.Timestamp != 0 || s.Price != 0 {
		t.Errorf("zero PriceSample = %+v, want zero", s)
	}
}
