package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownGranularity is returned when a granularity name cannot be parsed.
var ErrUnknownGranularity = errors.New("unknown granularity")

// -----------------------------------------------------------------------------
// Granularity
// -----------------------------------------------------------------------------

// Granularity is one of the four fixed aggregation bucket sizes, ordered
// from finest to coarsest.
type Granularity int

const (
	Minute Granularity = iota
	FifteenMinutes
	Hour
	Day
)

// Granularities lists every granularity from finest to coarsest.
var Granularities = []Granularity{Minute, FifteenMinutes, Hour, Day}

var granularityNames = [...]string{
	Minute:         "MINUTE",
	FifteenMinutes: "FIFTEEN_MINUTES",
	Hour:           "HOUR",
	Day:            "DAY",
}

// Ticks per bucket (one tick = one simulated second).
var granularityPeriods = [...]int64{
	Minute:         60,
	FifteenMinutes: 15 * 60,
	Hour:           60 * 60,
	Day:            24 * 60 * 60,
}

// Number of finer inputs feeding one bucket. MINUTE counts raw samples.
var granularityWindows = [...]int{
	Minute:         60,
	FifteenMinutes: 15,
	Hour:           4,
	Day:            24,
}

// Valid reports whether g is one of the four known granularities.
func (g Granularity) Valid() bool {
	return g >= Minute && g <= Day
}

// String returns the legacy upper-case name (e.g. "FIFTEEN_MINUTES").
func (g Granularity) String() string {
	if !g.Valid() {
		return fmt.Sprintf("Granularity(%d)", int(g))
	}
	return granularityNames[g]
}

// Period returns the bucket length in ticks.
func (g Granularity) Period() int64 {
	if !g.Valid() {
		return 0
	}
	return granularityPeriods[g]
}

// WindowSize returns how many finer inputs are aggregated into one record.
func (g Granularity) WindowSize() int {
	if !g.Valid() {
		return 0
	}
	return granularityWindows[g]
}

// Finer returns the granularity whose records feed g.
// MINUTE has no finer granularity; it reads raw samples.
func (g Granularity) Finer() (Granularity, bool) {
	if g <= Minute || !g.Valid() {
		return Minute, false
	}
	return g - 1, true
}

// MarshalText implements encoding.TextMarshaler.
func (g Granularity) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownGranularity, int(g))
	}
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Granularity) UnmarshalText(text []byte) error {
	parsed, err := ParseGranularity(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// ParseGranularity parses a granularity name case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, g := range Granularities {
		if granularityNames[g] == name {
			return g, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
}

// -----------------------------------------------------------------------------
// Registry Types
// -----------------------------------------------------------------------------

// Instrument is a simulated stock.
type Instrument struct {
	Ticker      string  // Unique identifier (e.g., "AAPL")
	Group       string  // Owning group name (e.g., "S&P500")
	Nationality string  // Listing country (e.g., "USA")
	BasePrice   float64 // Price at process start
}

// Group is a named, ordered list of tickers.
type Group struct {
	Name    string
	Tickers []string
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// PriceSample is one simulated price observation.
type PriceSample struct {
	Timestamp int64   // Tick number that produced the sample
	Price     float64 // Price after applying the tick's delta
}

// AggregateRecord is one rolled-up (average, max, min) summary.
type AggregateRecord struct {
	Granularity Granularity
	Average     float64
	Max         float64
	Min         float64
	Seq         int64 // Position in the partition, 1-based, never reused
}
