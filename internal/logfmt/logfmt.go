// Package logfmt encodes aggregate records in the line-oriented text format
// of the legacy per-ticker files:
//
//	MINUTE: Average=150.0123, Max=150.05, Min=149.98
//
// Lines are parsed leniently. Anything that does not yield a known
// granularity and three floats is rejected so loaders can skip it.
package logfmt

import (
	"math"
	"strconv"
	"strings"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

const (
	averageKey = "Average="
	maxKey     = "Max="
	minKey     = "Min="
)

// FormatLine renders rec without a trailing newline. Seq is not encoded;
// the position in the file carries it.
func FormatLine(rec model.AggregateRecord) string {
	var b strings.Builder
	b.WriteString(rec.Granularity.String())
	b.WriteString(": ")
	b.WriteString(averageKey)
	b.WriteString(FormatFloat(rec.Average))
	b.WriteString(", ")
	b.WriteString(maxKey)
	b.WriteString(FormatFloat(rec.Max))
	b.WriteString(", ")
	b.WriteString(minKey)
	b.WriteString(FormatFloat(rec.Min))
	return b.String()
}

// ParseLine decodes a line written by FormatLine or by the legacy writer.
func ParseLine(line string) (model.AggregateRecord, bool) {
	line = strings.TrimSpace(line)
	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		return model.AggregateRecord{}, false
	}

	g, err := model.ParseGranularity(name)
	if err != nil {
		return model.AggregateRecord{}, false
	}

	avg, ok := field(rest, averageKey)
	if !ok {
		return model.AggregateRecord{}, false
	}
	maxVal, ok := field(rest, maxKey)
	if !ok {
		return model.AggregateRecord{}, false
	}
	minVal, ok := field(rest, minKey)
	if !ok {
		return model.AggregateRecord{}, false
	}

	return model.AggregateRecord{
		Granularity: g,
		Average:     avg,
		Max:         maxVal,
		Min:         minVal,
	}, true
}

// Granularity returns the granularity prefix of a line without parsing the
// values.
func Granularity(line string) (model.Granularity, bool) {
	name, _, ok := strings.Cut(strings.TrimSpace(line), ":")
	if !ok {
		return 0, false
	}
	g, err := model.ParseGranularity(name)
	return g, err == nil
}

// FormatFloat renders f the way the legacy writer did: integral values keep
// a ".0" suffix and infinities are spelled out.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// field extracts the float following key up to the next comma.
func field(s, key string) (float64, bool) {
	_, after, ok := strings.Cut(s, key)
	if !ok {
		return 0, false
	}
	raw, _, _ := strings.Cut(after, ",")
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
