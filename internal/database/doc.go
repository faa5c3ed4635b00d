// Package database manages the PostgreSQL connection pool and schema used by
// the postgres journal backend.
//
// The aggregates table is an append log keyed by (ticker, granularity, seq).
// Retention trims delete the oldest rows of a partition.
package database
