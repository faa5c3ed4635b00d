// Package model defines shared data types used across the simulator.
//
// Conventions:
//   - Prices: float64, unvalidated (negative and NaN values pass through)
//   - Timestamps: int64 simulated seconds, i.e. the tick number that produced the sample
//   - Partitions: one record log per (ticker, granularity) pair
package model
