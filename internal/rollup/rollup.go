// Package rollup computes (average, max, min) summaries over windows of
// raw prices or previously aggregated records, and decides which
// granularities are due on a given tick.
package rollup

import (
	"fmt"

	"github.com/VictorJustesen/Stocksimulatedapi/internal/model"
)

// Stats is the (average, max, min) triple of one aggregation.
type Stats struct {
	Average float64
	Max     float64
	Min     float64
}

// Extremes selects how max/min of a coarser record are derived from the
// finer records feeding it.
type Extremes string

const (
	// ExtremesAverages takes max/min over the finer records' averages.
	ExtremesAverages Extremes = "averages"

	// ExtremesHierarchical takes the max of finer maxima and the min of
	// finer minima.
	ExtremesHierarchical Extremes = "hierarchical"
)

// ParseExtremes validates a configured extremes mode. Empty selects
// ExtremesAverages.
func ParseExtremes(s string) (Extremes, error) {
	switch Extremes(s) {
	case "", ExtremesAverages:
		return ExtremesAverages, nil
	case ExtremesHierarchical:
		return ExtremesHierarchical, nil
	default:
		return "", fmt.Errorf("unknown extremes mode %q", s)
	}
}

// Aggregate returns the plain unweighted mean, maximum and minimum of
// values. An empty window yields all zeros.
func Aggregate(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	stats := Stats{Max: values[0], Min: values[0]}
	var sum float64
	for _, v := range values {
		sum += v
		if v > stats.Max {
			stats.Max = v
		}
		if v < stats.Min {
			stats.Min = v
		}
	}
	stats.Average = sum / float64(len(values))
	return stats
}

// Rollup aggregates finer records into one coarser summary. The average
// is always the mean of the finer averages.
func Rollup(records []model.AggregateRecord, mode Extremes) Stats {
	if len(records) == 0 {
		return Stats{}
	}

	averages := make([]float64, len(records))
	for i, r := range records {
		averages[i] = r.Average
	}
	stats := Aggregate(averages)

	if mode == ExtremesHierarchical {
		stats.Max, stats.Min = records[0].Max, records[0].Min
		for _, r := range records[1:] {
			if r.Max > stats.Max {
				stats.Max = r.Max
			}
			if r.Min < stats.Min {
				stats.Min = r.Min
			}
		}
	}
	return stats
}

// IsDue reports whether granularity g closes a bucket on tick t.
// Ticks are 1-indexed; tick 0 and negative ticks are never due.
func IsDue(g model.Granularity, t int64) bool {
	period := g.Period()
	return t > 0 && period > 0 && t%period == 0
}

// Due returns the granularities due on tick t, finest first.
func Due(t int64) []model.Granularity {
	var due []model.Granularity
	for _, g := range model.Granularities {
		if IsDue(g, t) {
			due = append(due, g)
		}
	}
	return due
}
