// Package engine drives the simulation.
//
// Each tick (one simulated second) the Engine:
//   - Draws a price delta per instrument from the PriceSource
//   - Appends the resulting sample to the instrument's price series
//   - Rolls up every granularity whose bucket closes on this tick,
//     finest first, into the aggregate store
//   - Applies retention to every partition when the DAY bucket closes
//
// Ticks never overlap. The timer driver runs in gocron singleton mode and
// Tick itself is serialized, so manual and timed ticks can be mixed.
package engine
